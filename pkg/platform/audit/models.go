// Package audit defines the authorization audit trail model. Events are
// append-only; the engine reads them back only through windowed counts.
package audit

import (
	"context"
	"time"
)

// Kind identifies the authorization outcome an event records. Values are the
// wire identifiers expected by downstream sinks and SIEM consumers.
type Kind string

const (
	KindRoleCheckFailed    Kind = "ROLE_CHECK_FAILED"
	KindContextCheckFailed Kind = "CONTEXT_CHECK_FAILED"
	KindAccessGranted      Kind = "ACCESS_GRANTED"
	KindAccessDenied       Kind = "ACCESS_DENIED"
	KindOrchestrationError Kind = "ORCHESTRATION_ERROR"
	KindLoginFailed        Kind = "LOGIN_FAILED"

	// KindAny matches every kind in CountSince queries.
	KindAny Kind = ""
)

// Severity levels for SIEM routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

var kindSeverities = map[Kind]Severity{
	KindAccessGranted:      SeverityInfo,
	KindRoleCheckFailed:    SeverityWarning,
	KindContextCheckFailed: SeverityWarning,
	KindAccessDenied:       SeverityWarning,
	KindLoginFailed:        SeverityWarning,
	KindOrchestrationError: SeverityCritical,
}

// Severity returns the routing severity for this kind. Unknown kinds default
// to info.
func (k Kind) Severity() Severity {
	if s, ok := kindSeverities[k]; ok {
		return s
	}
	return SeverityInfo
}

// Event is a single audit record. Keep it transport-agnostic so stores and
// publishers can fan out without conversion layers.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	SubjectID string         `json:"subject_id"`
	Detail    string         `json:"detail"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is the append-only sink plus the windowed count queries the
// authorization engine depends on.
type Store interface {
	// Append persists one event. Implementations must not mutate it.
	Append(ctx context.Context, event Event) error

	// CountSince counts the subject's events of the given kind recorded at or
	// after since. KindAny counts across all kinds.
	CountSince(ctx context.Context, subjectID string, kind Kind, since time.Time) (int, error)
}

// Emitter mirrors events to a secondary destination (Kafka, SIEM). Emission
// failures never affect the stored trail.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
