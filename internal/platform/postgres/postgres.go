// Package postgres owns the database handle and the schema. Migration is a
// single idempotent script applied at startup, which is all a two-table
// schema needs.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects and verifies the database. Returns nil if the URL is empty
// (postgres not configured); the caller falls back to in-memory stores.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS training_records (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	training_id UUID NOT NULL,
	assigned_date TIMESTAMPTZ NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	completed_date TIMESTAMPTZ,
	expiry_date TIMESTAMPTZ,
	document_viewed BOOLEAN NOT NULL DEFAULT FALSE,
	document_acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
	assessment_attempts INTEGER NOT NULL DEFAULT 0,
	score INTEGER,
	passed BOOLEAN NOT NULL DEFAULT FALSE,
	status TEXT NOT NULL,
	certificate_id TEXT,
	certificate_url TEXT,
	completed_late BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, training_id)
);

CREATE INDEX IF NOT EXISTS idx_training_records_user
	ON training_records (user_id);
CREATE INDEX IF NOT EXISTS idx_training_records_due_sweep
	ON training_records (due_date) WHERE status IN ('PENDING', 'IN_PROGRESS');
CREATE INDEX IF NOT EXISTS idx_training_records_expiry_sweep
	ON training_records (expiry_date) WHERE status = 'COMPLETED';

CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	user_id UUID,
	training_id UUID,
	record_id UUID,
	previous_status TEXT,
	new_status TEXT,
	system_timestamp TIMESTAMPTZ NOT NULL,
	event_source TEXT NOT NULL,
	metadata JSONB,
	ip_address TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_events_record
	ON audit_events (record_id, system_timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_user
	ON audit_events (user_id, system_timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_events_type
	ON audit_events (event_type, system_timestamp);
`

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
