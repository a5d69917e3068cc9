// Package postgres persists audit entries. Inserts join the enclosing
// lifecycle transaction when one is carried in the context; reads build
// dynamic filters for the governance query contract.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"traincheck/internal/audit"
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
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, user_id, training_id, record_id,
			previous_status, new_status, system_timestamp, event_source,
			metadata, ip_address
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		entry.ID, string(entry.EventType), entry.UserID, entry.TrainingID, entry.RecordID,
		nullable(entry.PreviousStatus), nullable(entry.NewStatus),
		entry.SystemTimestamp, entry.EventSource, metadata, nullable(entry.IPAddress),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != nil {
		where = append(where, "user_id = "+arg(*filter.UserID))
	}
	if filter.TrainingID != nil {
		where = append(where, "training_id = "+arg(*filter.TrainingID))
	}
	if filter.RecordID != nil {
		where = append(where, "record_id = "+arg(*filter.RecordID))
	}
	if filter.EventType != "" {
		where = append(where, "event_type = "+arg(string(filter.EventType)))
	}
	if !filter.From.IsZero() {
		where = append(where, "system_timestamp >= "+arg(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "system_timestamp < "+arg(filter.To))
	}

	query := `
		SELECT id, event_type, user_id, training_id, record_id,
			previous_status, new_status, system_timestamp, event_source,
			metadata, ip_address
		FROM audit_events
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY system_timestamp, id"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e              audit.Entry
			eventType      string
			prev, next, ip sql.NullString
			metadata       []byte
		)
		if err := rows.Scan(
			&e.ID, &eventType, &e.UserID, &e.TrainingID, &e.RecordID,
			&prev, &next, &e.SystemTimestamp, &e.EventSource, &metadata, &ip,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EventType = audit.EventType(eventType)
		e.PreviousStatus = prev.String
		e.NewStatus = next.String
		e.IPAddress = ip.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
