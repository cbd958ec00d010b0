// Package postgres provides the durable audit store. Events land in a single
// append-only table indexed for the engine's windowed count queries.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vaultgate/pkg/platform/audit"
)

// Store implements audit.Store on PostgreSQL via database/sql (lib/pq driver).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         UUID PRIMARY KEY,
	subject_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	metadata   JSONB,
	request_id TEXT NOT NULL DEFAULT '',
	severity   TEXT NOT NULL DEFAULT 'info',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_subject_kind_time
	ON audit_events (subject_id, kind, created_at);
`

// EnsureSchema creates the audit table and its count index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (id, subject_id, kind, detail, metadata, request_id, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		eventID,
		event.SubjectID,
		string(event.Kind),
		event.Detail,
		metadata,
		event.RequestID,
		string(event.Kind.Severity()),
		ts,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) CountSince(ctx context.Context, subjectID string, kind audit.Kind, since time.Time) (int, error) {
	var (
		count int
		err   error
	)
	if kind == audit.KindAny {
		query := `SELECT COUNT(*) FROM audit_events WHERE subject_id = $1 AND created_at >= $2`
		err = s.db.QueryRowContext(ctx, query, subjectID, since).Scan(&count)
	} else {
		query := `SELECT COUNT(*) FROM audit_events WHERE subject_id = $1 AND kind = $2 AND created_at >= $3`
		err = s.db.QueryRowContext(ctx, query, subjectID, string(kind), since).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}
