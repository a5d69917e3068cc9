package record

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Expected is the compare-and-swap predicate for Update. A transition only
// commits when the stored status and attempt count still match what the
// caller read; a losing writer gets sentinel.ErrConflict and must re-read.
type Expected struct {
	Status   Status
	Attempts int
}

// Store is the durable keyed storage for training records. Implementations
// must honor:
//   - Create: sentinel.ErrConflict when a record for the same (user, training)
//     pairing already exists.
//   - UpdateIfCurrent: atomic compare-and-swap on (id, status, attempts);
//     sentinel.ErrConflict on a stale expectation, sentinel.ErrNotFound when
//     the record does not exist. Certificate columns are write-once: an update
//     never clears or replaces a previously written certificate pair.
//   - List* sweep queries exclude already-derived rows, which is what makes
//     re-running the sweep idempotent (the persisted status is the watermark).
type Store interface {
	Create(ctx context.Context, rec *TrainingRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*TrainingRecord, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*TrainingRecord, error)
	UpdateIfCurrent(ctx context.Context, rec *TrainingRecord, expected Expected) error

	// ListOverdueCandidates returns PENDING/IN_PROGRESS records whose due date
	// has passed, oldest first.
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*TrainingRecord, error)

	// ListExpiryCandidates returns COMPLETED records whose certificate expiry
	// has passed, oldest first.
	ListExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*TrainingRecord, error)
}
