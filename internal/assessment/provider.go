package assessment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"traincheck/pkg/platform/sentinel"
)

// Provider is the contract consumed from the assessment configuration
// collaborator: a read-only snapshot per training, plus the lock signal the
// engine sends the first time any user starts an attempt.
type Provider interface {
	Snapshot(ctx context.Context, trainingID uuid.UUID) (*Assessment, error)
	MarkLocked(ctx context.Context, trainingID uuid.UUID) error
}

// MemoryProvider is an in-process Provider used in tests and single-node
// deployments seeded from configuration.
type MemoryProvider struct {
	mu          sync.RWMutex
	assessments map[uuid.UUID]*Assessment
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{assessments: make(map[uuid.UUID]*Assessment)}
}

// Put installs or replaces a training's assessment configuration. Once an
// assessment is locked its question set and thresholds are immutable, so Put
// refuses to touch it.
func (p *MemoryProvider) Put(a *Assessment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.assessments[a.TrainingID]; ok && existing.IsLocked {
		return fmt.Errorf("assessment for training %s is locked: %w", a.TrainingID, sentinel.ErrConflict)
	}
	p.assessments[a.TrainingID] = a.Clone()
	return nil
}

func (p *MemoryProvider) Snapshot(_ context.Context, trainingID uuid.UUID) (*Assessment, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	a, ok := p.assessments[trainingID]
	if !ok {
		return nil, fmt.Errorf("assessment for training %s: %w", trainingID, sentinel.ErrNotFound)
	}
	return a.Clone(), nil
}

func (p *MemoryProvider) MarkLocked(_ context.Context, trainingID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.assessments[trainingID]
	if !ok {
		return fmt.Errorf("assessment for training %s: %w", trainingID, sentinel.ErrNotFound)
	}
	a.IsLocked = true
	return nil
}
