// Package postgres provides a PostgreSQL-backed subject store using pgx
// connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultgate/internal/authz"
	dErrors "vaultgate/pkg/domain-errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS subjects (
    id                  TEXT PRIMARY KEY,
    role                TEXT NOT NULL,
    kyc_status          TEXT NOT NULL DEFAULT 'PENDING',
    two_factor_enrolled BOOLEAN NOT NULL DEFAULT FALSE,
    trusted_devices     TEXT[] NOT NULL DEFAULT '{}',
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore persists subject snapshots in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed subject store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the subjects table when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure subjects schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subjectID string) (*authz.Subject, error) {
	const query = `
		SELECT id, role, kyc_status, two_factor_enrolled, trusted_devices
		FROM subjects
		WHERE id = $1`

	var subject authz.Subject
	err := s.pool.QueryRow(ctx, query, subjectID).Scan(
		&subject.ID,
		&subject.Role,
		&subject.KYCStatus,
		&subject.TwoFactorEnrolled,
		&subject.TrustedDevices,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "subject %s not found", subjectID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load subject")
	}
	return &subject, nil
}

func (s *PostgresStore) Put(ctx context.Context, subject authz.Subject) error {
	if subject.ID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}

	const query = `
		INSERT INTO subjects (id, role, kyc_status, two_factor_enrolled, trusted_devices, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			role                = EXCLUDED.role,
			kyc_status          = EXCLUDED.kyc_status,
			two_factor_enrolled = EXCLUDED.two_factor_enrolled,
			trusted_devices     = EXCLUDED.trusted_devices,
			updated_at          = now()`

	_, err := s.pool.Exec(ctx, query,
		subject.ID,
		string(subject.Role),
		string(subject.KYCStatus),
		subject.TwoFactorEnrolled,
		subject.TrustedDevices,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "store subject")
	}
	return nil
}
