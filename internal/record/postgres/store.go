// Package postgres persists training records with compare-and-swap update
// semantics. The store participates in an enclosing sql.Tx when one is
// carried in the context, which is how the lifecycle engine commits the
// record mutation and its audit entry as one unit.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"traincheck/internal/record"
	"traincheck/pkg/platform/sentinel"
	txcontext "traincheck/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const recordColumns = `
	id, user_id, training_id, assigned_date, due_date, completed_date,
	expiry_date, document_viewed, document_acknowledged, assessment_attempts,
	score, passed, status, certificate_id, certificate_url, completed_late,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, rec *record.TrainingRecord) error {
	query := `
		INSERT INTO training_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.TrainingID, rec.AssignedDate, rec.DueDate,
		rec.CompletedDate, rec.ExpiryDate, rec.DocumentViewed, rec.DocumentAcknowledged,
		rec.AssessmentAttempts, rec.Score, rec.Passed, string(rec.Status),
		rec.CertificateID, rec.CertificateURL, rec.CompletedLate,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("record for user %s training %s: %w", rec.UserID, rec.TrainingID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert training record: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*record.TrainingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM training_records WHERE id = $1`
	rec, err := scanRecord(s.execer(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find training record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID) ([]*record.TrainingRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM training_records WHERE user_id = $1 ORDER BY assigned_date`
	rows, err := s.execer(ctx).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list training records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// UpdateIfCurrent commits a transition only when the stored (status, attempts)
// pair still matches the caller's read. COALESCE keeps certificate columns
// write-once at the SQL level: once set they can never revert to NULL or
// change value through this path.
func (s *Store) UpdateIfCurrent(ctx context.Context, rec *record.TrainingRecord, expected record.Expected) error {
	query := `
		UPDATE training_records SET
			completed_date = $4,
			expiry_date = $5,
			document_viewed = $6,
			document_acknowledged = $7,
			assessment_attempts = $8,
			score = $9,
			passed = $10,
			status = $11,
			certificate_id = COALESCE(certificate_id, $12),
			certificate_url = COALESCE(certificate_url, $13),
			completed_late = $14,
			updated_at = $15
		WHERE id = $1 AND status = $2 AND assessment_attempts = $3
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ID, string(expected.Status), expected.Attempts,
		rec.CompletedDate, rec.ExpiryDate, rec.DocumentViewed, rec.DocumentAcknowledged,
		rec.AssessmentAttempts, rec.Score, rec.Passed, string(rec.Status),
		rec.CertificateID, rec.CertificateURL, rec.CompletedLate, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update training record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update training record rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or the expectation is stale; distinguish so
		// callers can retry conflicts but fail fast on missing records.
		if _, findErr := s.FindByID(ctx, rec.ID); findErr != nil {
			return findErr
		}
		return fmt.Errorf("record %s stale expectation %s/%d: %w",
			rec.ID, expected.Status, expected.Attempts, sentinel.ErrConflict)
	}
	return nil
}

func (s *Store) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*record.TrainingRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM training_records
		WHERE status IN ($1, $2) AND due_date < $3
		ORDER BY due_date
		LIMIT $4
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query,
		string(record.StatusPending), string(record.StatusInProgress), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue candidates: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) ListExpiryCandidates(ctx context.Context, now time.Time, limit int) ([]*record.TrainingRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM training_records
		WHERE status = $1 AND expiry_date IS NOT NULL AND expiry_date < $2
		ORDER BY expiry_date
		LIMIT $3
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(record.StatusCompleted), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expiry candidates: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*record.TrainingRecord, error) {
	var rec record.TrainingRecord
	var status string
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.TrainingID, &rec.AssignedDate, &rec.DueDate,
		&rec.CompletedDate, &rec.ExpiryDate, &rec.DocumentViewed, &rec.DocumentAcknowledged,
		&rec.AssessmentAttempts, &rec.Score, &rec.Passed, &status,
		&rec.CertificateID, &rec.CertificateURL, &rec.CompletedLate,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = record.Status(status)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*record.TrainingRecord, error) {
	var out []*record.TrainingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan training record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate training records: %w", err)
	}
	return out, nil
}
