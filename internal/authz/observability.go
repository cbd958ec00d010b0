package authz

import (
	"context"
	"log/slog"

	"vaultgate/pkg/attrs"
	"vaultgate/pkg/platform/audit"
	"vaultgate/pkg/requestcontext"
)

// LogAudit logs an audit-relevant event to both the structured logger and the
// audit sink. Handlers use it for decisions made outside the pipeline (e.g.
// rejecting an operation whose step-up obligation is unmet). The subject is
// extracted from the attribute list when present.
func LogAudit(ctx context.Context, logger *slog.Logger, sink AuditSink, kind audit.Kind, detail string, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	args := append(attrList, "event", string(kind), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, detail, args...)
	}

	if sink == nil {
		return
	}
	event := audit.Event{
		Kind:      kind,
		SubjectID: attrs.ExtractString(attrList, "subject_id"),
		Detail:    detail,
		RequestID: requestID,
		Timestamp: requestcontext.Now(ctx),
	}
	if err := sink.Append(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to append audit event", "event", kind, "error", err)
	}
}
