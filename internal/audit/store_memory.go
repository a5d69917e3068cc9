package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore keeps the trail in an append-only slice.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := entry.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
		entry.ID = stored.ID
	}
	s.entries = append(s.entries, stored)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Entry
	for _, e := range s.entries {
		if !matches(e, filter) {
			continue
		}
		matched = append(matched, e.Clone())
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].SystemTimestamp.Before(matched[j].SystemTimestamp)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func matches(e *Entry, f Filter) bool {
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	if f.TrainingID != nil && (e.TrainingID == nil || *e.TrainingID != *f.TrainingID) {
		return false
	}
	if f.RecordID != nil && (e.RecordID == nil || *e.RecordID != *f.RecordID) {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.From.IsZero() && e.SystemTimestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.SystemTimestamp.Before(f.To) {
		return false
	}
	return true
}
