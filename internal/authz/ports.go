package authz

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"vaultgate/pkg/platform/audit"
)

// AuditSink is the engine's view of the audit trail: write-append plus the
// two windowed count queries the risk scorer and rule engine depend on.
type AuditSink interface {
	Append(ctx context.Context, event audit.Event) error
	CountSince(ctx context.Context, subjectID string, kind audit.Kind, since time.Time) (int, error)
}

// SubjectStore resolves subject snapshots when the request carries only an
// id. Read-only; the engine never mutates subjects.
type SubjectStore interface {
	Get(ctx context.Context, subjectID string) (*Subject, error)
}
