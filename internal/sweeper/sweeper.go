// Package sweeper runs the periodic derivation pass: records awaiting
// completion past their due date become OVERDUE, completed records past
// their certificate expiry become EXPIRED. The persisted status doubles as
// the watermark, so every pass only sees records not yet derived and
// re-running after a crash repeats no work.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"traincheck/internal/lifecycle"
	"traincheck/internal/record"
	"traincheck/pkg/clock"
	dErrors "traincheck/pkg/domain-errors"
)

// Engine is the slice of the lifecycle service the sweeper drives.
type Engine interface {
	MarkOverdue(ctx context.Context, recordID uuid.UUID, meta lifecycle.Meta) error
	MarkExpired(ctx context.Context, recordID uuid.UUID) error
}

// CandidateSource lists records eligible for derivation.
type CandidateSource interface {
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*record.TrainingRecord, error)
	ListExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*record.TrainingRecord, error)
}

type Metrics struct {
	sweeps    *prometheus.CounterVec
	derived   *prometheus.CounterVec
	conflicts prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		sweeps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traincheck",
			Subsystem: "sweeper",
			Name:      "passes_total",
			Help:      "Sweep passes by outcome.",
		}, []string{"outcome"}),
		derived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "traincheck",
			Subsystem: "sweeper",
			Name:      "derived_total",
			Help:      "Records derived by kind.",
		}, []string{"kind"}),
		conflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "traincheck",
			Subsystem: "sweeper",
			Name:      "conflicts_total",
			Help:      "Candidates skipped because a user action won the race.",
		}),
	}
}

func (m *Metrics) incPass(outcome string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incDerived(kind string) {
	if m == nil {
		return
	}
	m.derived.WithLabelValues(kind).Inc()
}

func (m *Metrics) incConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 500
	sweeperSource    = "sweeper"
)

type Sweeper struct {
	engine     Engine
	candidates CandidateSource
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *Metrics
	interval   time.Duration
	batchSize  int
}

type Config struct {
	Engine     Engine
	Candidates CandidateSource
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *Metrics
	Interval   time.Duration
	BatchSize  int
}

func New(cfg Config) *Sweeper {
	s := &Sweeper{
		engine:     cfg.Engine,
		candidates: cfg.Candidates,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	return s
}

// Run sweeps once immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep pass failed", "error", err)
			s.metrics.incPass("error")
		} else {
			s.metrics.incPass("ok")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep runs one full derivation pass. A candidate that loses its CAS to a
// concurrent user action is skipped; the next pass re-evaluates it against
// whatever state won.
func (s *Sweeper) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	overdue, err := s.candidates.ListOverdueCandidates(ctx, now, s.batchSize)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list overdue candidates")
	}
	for _, rec := range overdue {
		if err := s.engine.MarkOverdue(ctx, rec.ID, lifecycle.Meta{Source: sweeperSource}); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				s.metrics.incConflict()
				continue
			}
			return err
		}
		s.metrics.incDerived("overdue")
	}

	expired, err := s.candidates.ListExpiryCandidates(ctx, now, s.batchSize)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list expiry candidates")
	}
	for _, rec := range expired {
		if err := s.engine.MarkExpired(ctx, rec.ID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) {
				s.metrics.incConflict()
				continue
			}
			return err
		}
		s.metrics.incDerived("expired")
	}

	if n := len(overdue) + len(expired); n > 0 {
		s.logger.InfoContext(ctx, "sweep pass complete",
			"overdue_candidates", len(overdue),
			"expiry_candidates", len(expired),
		)
	}
	return nil
}
