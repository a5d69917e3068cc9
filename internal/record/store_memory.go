package record

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"traincheck/pkg/platform/sentinel"
)

type pairKey struct {
	user     uuid.UUID
	training uuid.UUID
}

// InMemoryStore keeps records in a mutex-guarded map. It backs unit tests and
// implements the same CAS semantics as the postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*TrainingRecord
	byPair  map[pairKey]uuid.UUID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[uuid.UUID]*TrainingRecord),
		byPair:  make(map[pairKey]uuid.UUID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, rec *TrainingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{user: rec.UserID, training: rec.TrainingID}
	if _, exists := s.byPair[key]; exists {
		return fmt.Errorf("record for user %s training %s: %w", rec.UserID, rec.TrainingID, sentinel.ErrConflict)
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrConflict)
	}
	s.records[rec.ID] = rec.Clone()
	s.byPair[key] = rec.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TrainingRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedDate.Before(out[j].AssignedDate) })
	return out, nil
}

func (s *InMemoryStore) UpdateIfCurrent(_ context.Context, rec *TrainingRecord, expected Expected) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ID]
	if !ok {
		return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrNotFound)
	}
	if current.Status != expected.Status || current.AssessmentAttempts != expected.Attempts {
		return fmt.Errorf("record %s stale (have %s/%d, expected %s/%d): %w",
			rec.ID, current.Status, current.AssessmentAttempts, expected.Status, expected.Attempts, sentinel.ErrConflict)
	}

	next := rec.Clone()
	// Certificate fields are write-once: a committed pair survives any
	// later update that omits or changes it.
	if current.HasCertificate() {
		next.CertificateID = current.CertificateID
		next.CertificateURL = current.CertificateURL
	}
	s.records[rec.ID] = next
	return nil
}

func (s *InMemoryStore) ListOverdueCandidates(_ context.Context, now time.Time, limit int) ([]*TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TrainingRecord
	for _, rec := range s.records {
		if (rec.Status == StatusPending || rec.Status == StatusInProgress) && now.After(rec.DueDate) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListExpiryCandidates(_ context.Context, now time.Time, limit int) ([]*TrainingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TrainingRecord
	for _, rec := range s.records {
		if rec.Status == StatusCompleted && rec.ExpiryDate != nil && now.After(*rec.ExpiryDate) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return (*out[i].ExpiryDate).Before(*out[j].ExpiryDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
