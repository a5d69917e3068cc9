package lifecycle

import "context"

// Tx runs fn inside one transaction boundary. Stores participating in the
// commit read the transaction from the context (pkg/platform/tx), so the
// record CAS and its audit entries land atomically or not at all.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PassthroughTx runs fn without a transaction. It backs the in-memory
// stores, whose single-writer mutations don't need one.
type PassthroughTx struct{}

func (PassthroughTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
