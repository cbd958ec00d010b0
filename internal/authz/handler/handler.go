package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vaultgate/internal/authz"
	dErrors "vaultgate/pkg/domain-errors"
	"vaultgate/pkg/platform/audit"
	"vaultgate/pkg/platform/httputil"
	"vaultgate/pkg/requestcontext"
)

// Service defines the interface for authorization evaluation.
type Service interface {
	Evaluate(ctx context.Context, req *authz.Request) *authz.Decision
}

// Handler wires authorization endpoints to the engine.
type Handler struct {
	service Service
	sink    authz.AuditSink
	logger  *slog.Logger
}

// New constructs an authorization handler with its dependencies.
func New(service Service, sink authz.AuditSink, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		sink:    sink,
		logger:  logger,
	}
}

// Register mounts authorization endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/authz/evaluate", h.HandleEvaluate)
}

// HandleEvaluate handles POST /authz/evaluate requests.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	subjectID := requestcontext.SubjectID(ctx)
	if subjectID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	now := requestcontext.Now(ctx)
	domainReq := &authz.Request{
		SubjectID:    subjectID,
		Resource:     req.Resource,
		Action:       req.Action,
		DeclaredRisk: req.ParsedRisk(),
		Metadata: authz.Metadata{
			OriginAddress:     requestcontext.ClientIP(ctx),
			UserAgent:         requestcontext.UserAgent(ctx),
			DeviceFingerprint: requestcontext.DeviceFingerprint(ctx),
			SessionID:         req.Context.SessionID,
			Amount:            req.ParsedAmount(),
			Timestamp:         now,
		},
	}

	decision := h.service.Evaluate(ctx, domainReq)

	// An allowed decision with an unmet step-up obligation is not usable by
	// this session yet; the caller must re-authenticate with a second factor
	// and retry.
	if decision.Allowed {
		if err := authz.VerifyStepUp(decision, requestcontext.StepUpVerified(ctx)); err != nil {
			authz.LogAudit(ctx, h.logger, h.sink, audit.KindAccessDenied,
				"step-up obligation unmet for allowed decision",
				"subject_id", subjectID,
				"resource", req.Resource,
				"action", req.Action,
			)
			httputil.WriteError(w, err)
			return
		}
	}

	h.logger.InfoContext(ctx, "authorization request served",
		"subject_id", subjectID,
		"resource", req.Resource,
		"action", req.Action,
		"allowed", decision.Allowed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// Denials are well-formed decisions, not transport errors, but callers
	// treat the status line as the verdict: 403 carries the full decision
	// document with the reason.
	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusForbidden
	}
	httputil.WriteJSON(w, status, FromDecision(decision, now))
}
