package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows a trail read. Zero values mean "any". From is inclusive,
// To exclusive.
type Filter struct {
	UserID     *uuid.UUID
	TrainingID *uuid.UUID
	RecordID   *uuid.UUID
	EventType  EventType
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Store is the append-only sink. Append assigns the entry id when unset and
// must be tx-aware so the lifecycle engine can commit an entry atomically
// with the state mutation it documents. There is deliberately no update or
// delete in this interface.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]*Entry, error)
}
