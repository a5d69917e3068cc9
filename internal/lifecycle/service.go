// Package lifecycle is the orchestrator for the training compliance state
// machine. Every user action and sweeper derivation flows through one commit
// path: validate guards against a fresh read, compute the next record,
// invoke scoring and certificate issuance, then commit the record CAS and
// its audit entries as a single transaction. A commit that loses the CAS is
// retried once against freshly read state; a second loss surfaces as a
// concurrent-modification conflict for the caller to retry.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"traincheck/internal/assessment"
	"traincheck/internal/audit"
	"traincheck/internal/certificate"
	"traincheck/internal/record"
	"traincheck/internal/record/cache"
	"traincheck/pkg/clock"
	dErrors "traincheck/pkg/domain-errors"
	"traincheck/pkg/platform/sentinel"
)

// Emitter receives committed audit entries for post-commit fan-out. It must
// never block.
type Emitter interface {
	Emit(entry *audit.Entry)
}

type nopEmitter struct{}

func (nopEmitter) Emit(*audit.Entry) {}

// Meta carries request context recorded on audit entries.
type Meta struct {
	Source    string
	IPAddress string
	ActorID   string
}

const defaultCertificateValidity = 365 * 24 * time.Hour

type Config struct {
	Records     record.Store
	Audit       audit.Store
	Tx          Tx
	Assessments assessment.Provider
	Issuer      certificate.Issuer
	Emitter     Emitter
	StatusCache *cache.StatusCache
	Clock       clock.Clock
	Logger      *slog.Logger
	Metrics     *Metrics

	// CertificateValidity bounds how long an issued certificate stays
	// compliant; expiry derivation reads the resulting ExpiryDate.
	CertificateValidity time.Duration
}

type Service struct {
	records     record.Store
	auditlog    audit.Store
	tx          Tx
	assessments assessment.Provider
	issuer      certificate.Issuer
	emitter     Emitter
	statusCache *cache.StatusCache
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
	validity    time.Duration
}

func New(cfg Config) *Service {
	s := &Service{
		records:     cfg.Records,
		auditlog:    cfg.Audit,
		tx:          cfg.Tx,
		assessments: cfg.Assessments,
		issuer:      cfg.Issuer,
		emitter:     cfg.Emitter,
		statusCache: cfg.StatusCache,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      otel.Tracer("traincheck/lifecycle"),
		validity:    cfg.CertificateValidity,
	}
	if s.tx == nil {
		s.tx = PassthroughTx{}
	}
	if s.emitter == nil {
		s.emitter = nopEmitter{}
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.validity == 0 {
		s.validity = defaultCertificateValidity
	}
	return s
}

// Assign creates a new PENDING record for a (user, training) pairing.
func (s *Service) Assign(ctx context.Context, userID, trainingID uuid.UUID, dueDate time.Time, meta Meta) (*record.TrainingRecord, error) {
	if userID == uuid.Nil || trainingID == uuid.Nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id and training id are required")
	}
	if dueDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "due date is required")
	}

	now := s.clock.Now()
	rec := &record.TrainingRecord{
		ID:           uuid.New(),
		UserID:       userID,
		TrainingID:   trainingID,
		AssignedDate: now,
		DueDate:      dueDate,
		Status:       record.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := s.entryFor(rec, audit.EventAssignTraining, "", record.StatusPending, meta, map[string]string{
		"due_date": dueDate.UTC().Format(time.RFC3339),
	})

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.records.Create(txCtx, rec); err != nil {
			return err
		}
		return s.auditlog.Append(txCtx, entry)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "training already assigned to user")
		}
		return nil, s.translate(err, "assign training")
	}

	s.emitter.Emit(entry)
	s.metrics.IncTransition("assign", "committed")
	return rec, nil
}

// ViewDocument marks the training document as viewed. Repeat views are
// accepted without producing a new state change or audit entry.
func (s *Service) ViewDocument(ctx context.Context, recordID uuid.UUID, meta Meta) (*record.TrainingRecord, error) {
	return s.commit(ctx, recordID, "view_document", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		if err := requireLive(rec); err != nil {
			return nil, nil, err
		}
		if rec.DocumentViewed {
			return nil, nil, nil
		}
		next := rec.Clone()
		next.DocumentViewed = true
		entry := s.entryFor(rec, audit.EventDocumentViewed, rec.Status, next.Status, meta, nil)
		return next, []*audit.Entry{entry}, nil
	})
}

// Acknowledge records the employee's acknowledgment of the document and
// moves a PENDING record into IN_PROGRESS.
func (s *Service) Acknowledge(ctx context.Context, recordID uuid.UUID, meta Meta) (*record.TrainingRecord, error) {
	return s.commit(ctx, recordID, "acknowledge", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		if err := requireLive(rec); err != nil {
			return nil, nil, err
		}
		if !rec.DocumentViewed {
			return nil, nil, dErrors.New(dErrors.CodeInvalidState, "document must be viewed before acknowledging")
		}
		if rec.DocumentAcknowledged {
			return nil, nil, nil
		}
		next := rec.Clone()
		next.DocumentAcknowledged = true
		if next.Status == record.StatusPending {
			next.Status = record.StatusInProgress
		}
		entry := s.entryFor(rec, audit.EventDocumentAcknowledged, rec.Status, next.Status, meta, nil)
		return next, []*audit.Entry{entry}, nil
	})
}

// StartAssessment opens an attempt. The first start against a training locks
// its assessment configuration with the collaborator.
func (s *Service) StartAssessment(ctx context.Context, recordID uuid.UUID, meta Meta) (*record.TrainingRecord, error) {
	return s.commit(ctx, recordID, "start_assessment", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		if rec.Status == record.StatusLocked {
			return nil, nil, dErrors.New(dErrors.CodeAttemptsExhausted, "assessment attempts exhausted")
		}
		if !rec.Status.AcceptsAssessment() {
			return nil, nil, dErrors.Newf(dErrors.CodeInvalidState, "cannot start assessment in status %s", rec.Status)
		}
		if !rec.DocumentAcknowledged {
			return nil, nil, dErrors.New(dErrors.CodeInvalidState, "document must be acknowledged before the assessment")
		}

		if err := s.assessments.MarkLocked(ctx, rec.TrainingID); err != nil {
			return nil, nil, s.translate(err, "lock assessment configuration")
		}

		next := rec.Clone()
		entry := s.entryFor(rec, audit.EventAssessmentStarted, rec.Status, next.Status, meta, map[string]string{
			"attempt": strconv.Itoa(rec.AssessmentAttempts + 1),
		})
		return next, []*audit.Entry{entry}, nil
	})
}

// SubmitResult is what an accepted submission returns to the caller.
type SubmitResult struct {
	Status             record.Status
	Score              int
	Passed             bool
	AssessmentAttempts int
	CompletedLate      bool
	CertificateID      *string
	CertificateURL     *string
	ExpiryDate         *time.Time
	PerQuestion        []assessment.QuestionResult
}

// SubmitAssessment scores a full submission and commits the resulting
// transition: COMPLETED with a certificate on a pass, LOCKED when a failure
// exhausts the final attempt, otherwise the record keeps its status with the
// attempt counted. Rejected submissions (exhausted attempts, wrong state,
// incomplete answers) change nothing and write no audit entry.
func (s *Service) SubmitAssessment(ctx context.Context, recordID uuid.UUID, answers map[string]string, meta Meta) (*SubmitResult, error) {
	var result *SubmitResult

	_, err := s.commit(ctx, recordID, "submit_assessment", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		result = nil

		if rec.Status == record.StatusLocked {
			return nil, nil, dErrors.New(dErrors.CodeAttemptsExhausted, "assessment attempts exhausted")
		}
		if !rec.Status.AcceptsAssessment() {
			return nil, nil, dErrors.Newf(dErrors.CodeInvalidState, "cannot submit assessment in status %s", rec.Status)
		}
		if !rec.DocumentAcknowledged {
			return nil, nil, dErrors.New(dErrors.CodeInvalidState, "document must be acknowledged before the assessment")
		}

		snapshot, err := s.assessments.Snapshot(ctx, rec.TrainingID)
		if err != nil {
			return nil, nil, s.translate(err, "load assessment configuration")
		}
		if rec.AssessmentAttempts >= snapshot.MaxAttempts {
			return nil, nil, dErrors.New(dErrors.CodeAttemptsExhausted, "assessment attempts exhausted")
		}

		scored, err := assessment.Score(snapshot, answers)
		if err != nil {
			return nil, nil, err
		}

		now := s.clock.Now()
		next := rec.Clone()
		next.AssessmentAttempts++
		next.Score = &scored.Score
		next.Passed = scored.Passed

		attempt := strconv.Itoa(next.AssessmentAttempts)
		scoreStr := strconv.Itoa(scored.Score)
		entries := []*audit.Entry{
			s.entryFor(rec, audit.EventAssessmentSubmitted, rec.Status, rec.Status, meta, map[string]string{
				"attempt": attempt,
				"score":   scoreStr,
			}),
		}

		if scored.Passed {
			completed := now
			next.Status = record.StatusCompleted
			next.CompletedDate = &completed
			next.CompletedLate = completed.After(rec.DueDate)

			cert, err := s.certificateFor(ctx, next, completed)
			if err != nil {
				return nil, nil, err
			}
			next.CertificateID = &cert.ID
			next.CertificateURL = &cert.URL
			expiry := cert.ExpiresAt
			next.ExpiryDate = &expiry

			entries = append(entries,
				s.entryFor(rec, audit.EventAssessmentPassed, rec.Status, next.Status, meta, map[string]string{
					"attempt": attempt,
					"score":   scoreStr,
				}),
				s.entryFor(rec, audit.EventCertificateIssued, next.Status, next.Status, meta, map[string]string{
					"certificate_id": cert.ID,
					"expiry_date":    expiry.UTC().Format(time.RFC3339),
				}),
			)
			if next.CompletedLate {
				entries = append(entries,
					s.entryFor(rec, audit.EventLateCompletion, next.Status, next.Status, meta, map[string]string{
						"due_date":       rec.DueDate.UTC().Format(time.RFC3339),
						"completed_date": completed.UTC().Format(time.RFC3339),
					}),
				)
			}
		} else {
			if next.AssessmentAttempts >= snapshot.MaxAttempts {
				next.Status = record.StatusLocked
			}
			entries = append(entries,
				s.entryFor(rec, audit.EventAssessmentFailed, rec.Status, next.Status, meta, map[string]string{
					"attempt":            attempt,
					"score":              scoreStr,
					"attempts_remaining": strconv.Itoa(snapshot.MaxAttempts - next.AssessmentAttempts),
				}),
			)
		}

		result = &SubmitResult{
			Status:             next.Status,
			Score:              scored.Score,
			Passed:             scored.Passed,
			AssessmentAttempts: next.AssessmentAttempts,
			CompletedLate:      next.CompletedLate,
			CertificateID:      next.CertificateID,
			CertificateURL:     next.CertificateURL,
			ExpiryDate:         next.ExpiryDate,
			PerQuestion:        scored.PerQuestion,
		}
		return next, entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// certificateFor reuses a previously committed certificate pair and issues a
// fresh one otherwise. Issuance failures abort the whole transition.
func (s *Service) certificateFor(ctx context.Context, rec *record.TrainingRecord, completed time.Time) (certificate.Certificate, error) {
	if rec.HasCertificate() {
		expiry := completed.Add(s.validity)
		if rec.ExpiryDate != nil {
			expiry = *rec.ExpiryDate
		}
		return certificate.Certificate{ID: *rec.CertificateID, URL: *rec.CertificateURL, ExpiresAt: expiry}, nil
	}
	cert, err := s.issuer.Issue(ctx, certificate.Request{
		RecordID:    rec.ID,
		Score:       *rec.Score,
		CompletedAt: completed,
		Validity:    s.validity,
	})
	if err != nil {
		return certificate.Certificate{}, s.translate(err, "issue certificate")
	}
	return cert, nil
}

// MarkOverdue derives OVERDUE for a record still awaiting completion past
// its due date. It is idempotent: records already derived, already resolved,
// or not yet due are skipped without error, which is what lets the sweeper
// re-run safely.
func (s *Service) MarkOverdue(ctx context.Context, recordID uuid.UUID, meta Meta) error {
	_, err := s.commit(ctx, recordID, "mark_overdue", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		if rec.Status != record.StatusPending && rec.Status != record.StatusInProgress {
			return nil, nil, nil
		}
		if !s.clock.Now().After(rec.DueDate) {
			return nil, nil, nil
		}
		next := rec.Clone()
		next.Status = record.StatusOverdue
		entry := s.entryFor(rec, audit.EventTrainingOverdue, rec.Status, next.Status, meta, map[string]string{
			"due_date": rec.DueDate.UTC().Format(time.RFC3339),
		})
		return next, []*audit.Entry{entry}, nil
	})
	return err
}

// MarkExpired derives EXPIRED for a COMPLETED record past its certificate
// expiry. The label changes; score, certificate, and completion date are
// untouched and no audit event exists for expiry.
func (s *Service) MarkExpired(ctx context.Context, recordID uuid.UUID) error {
	_, err := s.commit(ctx, recordID, "mark_expired", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		if rec.Status != record.StatusCompleted || rec.ExpiryDate == nil {
			return nil, nil, nil
		}
		if !s.clock.Now().After(*rec.ExpiryDate) {
			return nil, nil, nil
		}
		next := rec.Clone()
		next.Status = record.StatusExpired
		return next, nil, nil
	})
	return err
}

// AdminOverride is the audited correction path that replaces out-of-band
// database edits. It may reclassify a record but can never fabricate a
// completion (COMPLETED requires an already-issued certificate) and never
// touches certificate fields or the attempt counter.
func (s *Service) AdminOverride(ctx context.Context, recordID uuid.UUID, newStatus record.Status, reason string, meta Meta) (*record.TrainingRecord, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "override reason is required")
	}
	if !newStatus.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown status %q", newStatus)
	}

	return s.commit(ctx, recordID, "admin_override", func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error) {
		if rec.Status == newStatus {
			return nil, nil, dErrors.Newf(dErrors.CodeBadRequest, "record already in status %s", newStatus)
		}
		if newStatus == record.StatusCompleted && !rec.HasCertificate() {
			return nil, nil, dErrors.New(dErrors.CodeInvariantViolation, "cannot override to COMPLETED without an issued certificate")
		}
		next := rec.Clone()
		next.Status = newStatus
		entry := s.entryFor(rec, audit.EventAdminOverride, rec.Status, newStatus, meta, map[string]string{
			"reason": reason,
			"actor":  meta.ActorID,
		})
		return next, []*audit.Entry{entry}, nil
	})
}

// GetRecord returns a record together with its derived status label,
// consulting the redis projection cache when configured.
func (s *Service) GetRecord(ctx context.Context, recordID uuid.UUID) (*record.TrainingRecord, record.Status, error) {
	rec, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return nil, "", s.translate(err, "find record")
	}

	if derived, ok := s.statusCache.Get(ctx, recordID); ok {
		return rec, derived, nil
	}
	derived := record.DeriveStatus(rec, s.clock.Now())
	s.statusCache.Put(ctx, recordID, derived)
	return rec, derived, nil
}

// ListUserRecords returns a user's records with derived status labels.
func (s *Service) ListUserRecords(ctx context.Context, userID uuid.UUID) ([]*record.TrainingRecord, []record.Status, error) {
	recs, err := s.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, s.translate(err, "list records")
	}
	now := s.clock.Now()
	statuses := make([]record.Status, len(recs))
	for i, rec := range recs {
		statuses[i] = record.DeriveStatus(rec, now)
	}
	return recs, statuses, nil
}

// buildFn computes the next record and the audit entries documenting the
// transition, from a freshly read copy. Returning a nil record means the
// operation is a no-op at the current state.
type buildFn func(rec *record.TrainingRecord) (*record.TrainingRecord, []*audit.Entry, error)

const casAttempts = 2

// commit is the single commit path: read, build, then CAS the record and
// append the audit entries in one transaction. A lost CAS is rebuilt once
// against fresh state; losing again surfaces ConcurrentModification.
func (s *Service) commit(ctx context.Context, recordID uuid.UUID, operation string, build buildFn) (*record.TrainingRecord, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle."+operation,
		trace.WithAttributes(attribute.String("record_id", recordID.String())))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveCommit(operation, time.Since(start)) }()

	for attempt := 0; attempt < casAttempts; attempt++ {
		rec, err := s.records.FindByID(ctx, recordID)
		if err != nil {
			return nil, s.translate(err, "find record")
		}

		next, entries, err := build(rec)
		if err != nil {
			s.metrics.IncTransition(operation, "rejected")
			return nil, err
		}
		if next == nil {
			// no-op at current state
			s.metrics.IncTransition(operation, "noop")
			return rec, nil
		}
		next.UpdatedAt = s.clock.Now()

		expected := record.Expected{Status: rec.Status, Attempts: rec.AssessmentAttempts}
		err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.records.UpdateIfCurrent(txCtx, next, expected); err != nil {
				return err
			}
			for _, entry := range entries {
				if err := s.auditlog.Append(txCtx, entry); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, sentinel.ErrConflict) {
			if attempt == 0 {
				s.metrics.IncCASRetry()
				s.logger.DebugContext(ctx, "lifecycle commit lost cas, retrying",
					"operation", operation,
					"record_id", recordID.String(),
				)
				continue
			}
			s.metrics.IncTransition(operation, "conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "record was modified concurrently, please retry")
		}
		if err != nil {
			return nil, s.translate(err, operation)
		}

		for _, entry := range entries {
			s.emitter.Emit(entry)
		}
		s.statusCache.Invalidate(ctx, recordID)
		s.metrics.IncTransition(operation, "committed")
		return next, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "record was modified concurrently, please retry")
}

func (s *Service) entryFor(rec *record.TrainingRecord, eventType audit.EventType, prev, next record.Status, meta Meta, metadata map[string]string) *audit.Entry {
	userID, trainingID, recID := rec.UserID, rec.TrainingID, rec.ID
	source := meta.Source
	if source == "" {
		source = "lifecycle"
	}
	return &audit.Entry{
		ID:              uuid.New(),
		EventType:       eventType,
		UserID:          &userID,
		TrainingID:      &trainingID,
		RecordID:        &recID,
		PreviousStatus:  string(prev),
		NewStatus:       string(next),
		SystemTimestamp: s.clock.Now(),
		EventSource:     source,
		Metadata:        metadata,
		IPAddress:       meta.IPAddress,
	}
}

// requireLive rejects document actions on records whose disposition is
// settled. OVERDUE stays live: the employee can and should still finish.
func requireLive(rec *record.TrainingRecord) error {
	switch rec.Status {
	case record.StatusPending, record.StatusInProgress, record.StatusOverdue:
		return nil
	}
	return dErrors.Newf(dErrors.CodeInvalidState, "record in status %s accepts no further document actions", rec.Status)
}

// translate maps infrastructure sentinels to domain codes; domain errors
// pass through unchanged.
func (s *Service) translate(err error, action string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, action+" temporarily unavailable, retry later")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "record was modified concurrently, please retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, action+" failed")
	}
}
