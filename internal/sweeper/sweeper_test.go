package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"traincheck/internal/assessment"
	"traincheck/internal/audit"
	"traincheck/internal/certificate"
	"traincheck/internal/lifecycle"
	"traincheck/internal/record"
	"traincheck/pkg/clock"
)

// =============================================================================
// Sweeper Test Suite
// =============================================================================
// The sweeper is tested against the real engine and in-memory stores so the
// watermark property (persisted status keeps derived rows out of the next
// pass) is exercised end to end rather than against a stub.

type SweeperSuite struct {
	suite.Suite
	records  *record.InMemoryStore
	auditlog *audit.InMemoryStore
	provider *assessment.MemoryProvider
	clock    *clock.Fake
	engine   *lifecycle.Service
	sweeper  *Sweeper

	trainingID uuid.UUID
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.records = record.NewInMemoryStore()
	s.auditlog = audit.NewInMemoryStore()
	s.provider = assessment.NewMemoryProvider()
	s.clock = clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s.trainingID = uuid.New()

	s.Require().NoError(s.provider.Put(&assessment.Assessment{
		TrainingID:     s.trainingID,
		PassPercentage: 50,
		MaxAttempts:    3,
		Questions: []assessment.Question{
			{ID: "q1", Text: "Tailgating is fine.", Kind: assessment.KindTrueFalse, CorrectAnswer: "false"},
		},
	}))

	s.engine = lifecycle.New(lifecycle.Config{
		Records:             s.records,
		Audit:               s.auditlog,
		Assessments:         s.provider,
		Issuer:              certificate.NewHashIssuer(certificate.NewLocalArtifactStore("https://certs.example.com")),
		Clock:               s.clock,
		CertificateValidity: 30 * 24 * time.Hour,
	})
	s.sweeper = New(Config{
		Engine:     s.engine,
		Candidates: s.records,
		Clock:      s.clock,
		BatchSize:  10,
	})
}

func (s *SweeperSuite) assignDueIn(d time.Duration) *record.TrainingRecord {
	rec, err := s.engine.Assign(context.Background(), uuid.New(), s.trainingID, s.clock.Now().Add(d), lifecycle.Meta{})
	s.Require().NoError(err)
	return rec
}

func (s *SweeperSuite) complete(rec *record.TrainingRecord) {
	ctx := context.Background()
	_, err := s.engine.ViewDocument(ctx, rec.ID, lifecycle.Meta{})
	s.Require().NoError(err)
	_, err = s.engine.Acknowledge(ctx, rec.ID, lifecycle.Meta{})
	s.Require().NoError(err)
	_, err = s.engine.StartAssessment(ctx, rec.ID, lifecycle.Meta{})
	s.Require().NoError(err)
	_, err = s.engine.SubmitAssessment(ctx, rec.ID, map[string]string{"q1": "false"}, lifecycle.Meta{})
	s.Require().NoError(err)
}

func (s *SweeperSuite) overdueEvents(recID uuid.UUID) int {
	entries, err := s.auditlog.List(context.Background(), audit.Filter{RecordID: &recID, EventType: audit.EventTrainingOverdue})
	s.Require().NoError(err)
	return len(entries)
}

func (s *SweeperSuite) TestSweepDerivesOverdue() {
	ctx := context.Background()

	late := s.assignDueIn(24 * time.Hour)
	onTime := s.assignDueIn(14 * 24 * time.Hour)

	s.clock.Advance(48 * time.Hour)
	s.Require().NoError(s.sweeper.Sweep(ctx))

	stored, err := s.records.FindByID(ctx, late.ID)
	s.Require().NoError(err)
	s.Equal(record.StatusOverdue, stored.Status)
	s.Equal(1, s.overdueEvents(late.ID))

	stored, err = s.records.FindByID(ctx, onTime.ID)
	s.Require().NoError(err)
	s.Equal(record.StatusPending, stored.Status)
	s.Equal(0, s.overdueEvents(onTime.ID))
}

func (s *SweeperSuite) TestSweepIsIdempotent() {
	ctx := context.Background()
	late := s.assignDueIn(time.Hour)
	s.clock.Advance(2 * time.Hour)

	s.Require().NoError(s.sweeper.Sweep(ctx))
	firstPass := len(s.allEntries())

	// the derived status is the watermark: a second pass finds no candidates
	s.Require().NoError(s.sweeper.Sweep(ctx))
	s.Equal(firstPass, len(s.allEntries()))
	s.Equal(1, s.overdueEvents(late.ID))
}

func (s *SweeperSuite) TestSweepDerivesExpiry() {
	ctx := context.Background()

	rec := s.assignDueIn(7 * 24 * time.Hour)
	s.complete(rec)
	before := len(s.allEntries())

	s.clock.Advance(31 * 24 * time.Hour)
	s.Require().NoError(s.sweeper.Sweep(ctx))

	stored, err := s.records.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(record.StatusExpired, stored.Status)
	s.NotNil(stored.CertificateID)
	s.NotNil(stored.CompletedDate)

	// expiry derivation writes no audit entry
	s.Equal(before, len(s.allEntries()))

	// and the expired row never comes back as a candidate
	s.Require().NoError(s.sweeper.Sweep(ctx))
	stored, err = s.records.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(record.StatusExpired, stored.Status)
}

func (s *SweeperSuite) TestSweepHonorsBatchSize() {
	ctx := context.Background()
	small := New(Config{Engine: s.engine, Candidates: s.records, Clock: s.clock, BatchSize: 1})

	first := s.assignDueIn(time.Hour)
	second := s.assignDueIn(time.Hour)
	s.clock.Advance(2 * time.Hour)

	s.Require().NoError(small.Sweep(ctx))

	derived := 0
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		rec, err := s.records.FindByID(ctx, id)
		s.Require().NoError(err)
		if rec.Status == record.StatusOverdue {
			derived++
		}
	}
	s.Equal(1, derived, "one candidate per pass at batch size 1")

	// the remainder is picked up next pass
	s.Require().NoError(small.Sweep(ctx))
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		rec, err := s.records.FindByID(ctx, id)
		s.Require().NoError(err)
		s.Equal(record.StatusOverdue, rec.Status)
	}
}

func (s *SweeperSuite) TestRunStopsOnContextCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(Config{Engine: s.engine, Candidates: s.records, Interval: time.Hour}).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		s.Fail("sweeper did not stop")
	}
}

func (s *SweeperSuite) allEntries() []*audit.Entry {
	entries, err := s.auditlog.List(context.Background(), audit.Filter{})
	s.Require().NoError(err)
	return entries
}
