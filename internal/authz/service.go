package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vaultgate/internal/authz/config"
	"vaultgate/internal/authz/metrics"
	"vaultgate/pkg/platform/audit"
	"vaultgate/pkg/platform/privacy"
	"vaultgate/pkg/requestcontext"
)

// Service orchestrates the authorization pipeline. It owns the stage order,
// exception containment, and audit emission; external callers use Evaluate
// and nothing else. Evaluations are stateless and run fully in parallel; the
// only shared state is the immutable policy and the append-only audit sink.
type Service struct {
	cfg        *config.Config
	roles      *RoleChecker
	contextual *ContextChecker
	risk       *RiskScorer
	session    *SessionPolicy
	rules      *RuleEngine

	sink     AuditSink
	subjects SubjectStore
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSubjectStore enables snapshot resolution for requests that carry only a
// subject id. Without it, every request must attach a full Subject.
func WithSubjectStore(store SubjectStore) Option {
	return func(s *Service) {
		s.subjects = store
	}
}

func New(cfg *config.Config, sink AuditSink, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("policy config is required")
	}
	if sink == nil {
		return nil, errors.New("audit sink is required")
	}

	svc := &Service{
		cfg:        cfg,
		logger:     slog.Default(),
		roles:      NewRoleChecker(cfg),
		contextual: NewContextChecker(cfg),
		risk:       NewRiskScorer(cfg),
		session:    NewSessionPolicy(cfg),
		rules:      NewRuleEngine(cfg),
		sink:       sink,
		tracer:     otel.Tracer("vaultgate/authz"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Evaluate runs the full pipeline and always returns a decision. It never
// propagates internal errors: dependency failures, timeouts, and panics all
// degrade to the fail-closed default (deny, score 100, system_error).
func (s *Service) Evaluate(ctx context.Context, req *Request) (decision *Decision) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "authz.Evaluate")

	defer func() {
		if r := recover(); r != nil {
			decision = s.failClosed(ctx, req, "pipeline", fmt.Errorf("panic: %v", r))
		}
		span.SetAttributes(
			attribute.Bool("authz.allowed", decision.Allowed),
			attribute.Int("authz.risk_score", decision.Risk.Score),
			attribute.String("authz.recommendation", string(decision.Risk.Recommendation)),
		)
		span.End()
		s.metrics.ObserveEvaluateLatency(time.Since(start))
		s.metrics.IncrementOutcome(verdictLabel(decision.Allowed), string(decision.Risk.Recommendation))
	}()

	if reason := malformed(req); reason != "" {
		return s.rejectMalformed(ctx, req, reason)
	}

	if req.Subject == nil {
		subject, err := s.resolveSubject(ctx, req.SubjectID)
		if err != nil {
			return s.failClosed(ctx, req, "subject_lookup", err)
		}
		req.Subject = subject
	}
	if req.SubjectID == "" {
		req.SubjectID = req.Subject.ID
	}

	now := req.Metadata.Timestamp
	if now.IsZero() {
		now = requestcontext.Now(ctx)
	}
	hour := now.Hour()

	opsInWindow, failedLogins, err := s.prefetchCounts(ctx, req.SubjectID, now)
	if err != nil {
		return s.failClosed(ctx, req, "audit_counts", err)
	}

	roleOK, roleReason := s.roles.Evaluate(req.Subject.Role, req.Resource, req.Action)
	contextOK, contextReason, restrictions := s.contextual.Evaluate(req, hour)
	assessment := s.risk.Score(req, hour, opsInWindow)
	session := s.session.Derive(req)
	rulesOK, rulesReason := s.rules.Evaluate(req, now, failedLogins)

	decision, kind := merge(
		stageResult{roleOK, roleReason},
		stageResult{contextOK, contextReason},
		stageResult{rulesOK, rulesReason},
		assessment, session, restrictions,
	)

	s.emit(ctx, kind, req.SubjectID, decision.Reason, decisionMetadata(req, decision))
	s.logger.InfoContext(ctx, "authorization evaluated",
		"subject_id", req.SubjectID,
		"resource", req.Resource,
		"action", req.Action,
		"allowed", decision.Allowed,
		"risk_score", decision.Risk.Score,
		"recommendation", decision.Risk.Recommendation,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return decision
}

type stageResult struct {
	ok     bool
	reason string
}

// merge combines the evaluators' outputs under the fixed precedence: any
// role/contextual/dynamic-rule failure denies outright; otherwise the risk
// recommendation decides, with CHALLENGE escalating session obligations. The
// risk assessment and session requirements are attached to denials too, for
// diagnostics.
func merge(role, contextual, rules stageResult, assessment RiskAssessment, session SessionRequirements, restrictions []string) (*Decision, audit.Kind) {
	if !role.ok || !contextual.ok || !rules.ok {
		var reasons []string
		for _, stage := range []stageResult{role, contextual, rules} {
			if !stage.ok && stage.reason != "" {
				reasons = append(reasons, stage.reason)
			}
		}
		kind := audit.KindAccessDenied
		switch {
		case !role.ok:
			kind = audit.KindRoleCheckFailed
		case !contextual.ok:
			kind = audit.KindContextCheckFailed
		}
		return &Decision{
			Allowed:          false,
			Reason:           strings.Join(reasons, "; "),
			Risk:             assessment,
			Session:          session,
			AdditionalChecks: restrictions,
		}, kind
	}

	switch assessment.Recommendation {
	case RecommendDeny:
		return &Decision{
			Allowed:          false,
			Reason:           fmt.Sprintf("risk score %d meets the deny threshold", assessment.Score),
			Risk:             assessment,
			Session:          session,
			AdditionalChecks: restrictions,
		}, audit.KindAccessDenied
	case RecommendChallenge:
		// Escalation overrides whatever the session deriver computed, the
		// monitoring level included.
		session.RequireStepUp = true
		session.RequireReauth = true
		session.MonitoringLevel = MonitoringEnhanced
	}

	return &Decision{
		Allowed:          true,
		Risk:             assessment,
		Session:          session,
		AdditionalChecks: restrictions,
	}, audit.KindAccessGranted
}

// prefetchCounts fetches the two audit-window counts in parallel under the
// dependency timeout. Both queries are independent; either failing (or
// timing out) sends the evaluation down the fail-closed path.
func (s *Service) prefetchCounts(ctx context.Context, subjectID string, now time.Time) (opsInWindow, failedLogins int, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		defer func() { s.metrics.ObservePrefetchLatency("operation_frequency", time.Since(start)) }()

		count, err := s.sink.CountSince(gctx, subjectID, audit.KindAny, now.Add(-s.cfg.Risk.FrequencyWindow))
		if err != nil {
			return fmt.Errorf("operation frequency count: %w", err)
		}
		opsInWindow = count
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		defer func() { s.metrics.ObservePrefetchLatency("failed_logins", time.Since(start)) }()

		count, err := s.sink.CountSince(gctx, subjectID, audit.KindLoginFailed, now.Add(-s.cfg.Rules.FailedLoginWindow))
		if err != nil {
			return fmt.Errorf("failed login count: %w", err)
		}
		failedLogins = count
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return opsInWindow, failedLogins, nil
}

func (s *Service) resolveSubject(ctx context.Context, subjectID string) (*Subject, error) {
	if s.subjects == nil {
		return nil, errors.New("no subject snapshot attached and no subject store configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	defer cancel()
	return s.subjects.Get(ctx, subjectID)
}

// malformed returns a non-empty description when the request is missing a
// mandatory field. Such requests fail closed without running any stage.
func malformed(req *Request) string {
	switch {
	case req == nil:
		return "request is nil"
	case req.Subject == nil && req.SubjectID == "":
		return "subject is missing"
	case req.Resource == "":
		return "resource is missing"
	case req.Action == "":
		return "action is missing"
	}
	return ""
}

func (s *Service) rejectMalformed(ctx context.Context, req *Request, reason string) *Decision {
	subjectID := ""
	if req != nil {
		subjectID = req.SubjectID
	}
	detail := "malformed authorization context: " + reason
	s.logger.WarnContext(ctx, detail, "subject_id", subjectID)
	s.emit(ctx, audit.KindAccessDenied, subjectID, detail, nil)
	return &Decision{
		Allowed: false,
		Reason:  detail,
		Risk:    RiskAssessment{Factors: []string{}, Recommendation: RecommendDeny},
		Session: SessionRequirements{MonitoringLevel: MonitoringStandard},
	}
}

// failClosed converts an internal error into the safe default decision. The
// system fails closed, never open: the caller sees a deny with a maximal
// risk score, and the failure is logged and audited.
func (s *Service) failClosed(ctx context.Context, req *Request, stage string, err error) *Decision {
	subjectID := ""
	if req != nil {
		subjectID = req.SubjectID
	}
	s.logger.ErrorContext(ctx, "authorization pipeline error",
		"stage", stage,
		"subject_id", subjectID,
		"error", err,
	)
	s.metrics.IncrementOrchestrationError(stage)
	s.emit(ctx, audit.KindOrchestrationError, subjectID,
		fmt.Sprintf("stage %s failed, evaluation degraded to deny", stage), nil)

	return &Decision{
		Allowed: false,
		Reason:  "authorization engine unavailable",
		Risk: RiskAssessment{
			Score:          100,
			Factors:        []string{factorSystemError},
			Recommendation: RecommendDeny,
		},
		Session: SessionRequirements{MonitoringLevel: MonitoringStandard},
	}
}

// emit appends one audit record. Append failures are logged and swallowed: a
// failed write must never change a verdict already computed, in either
// direction.
func (s *Service) emit(ctx context.Context, kind audit.Kind, subjectID, detail string, metadata map[string]any) {
	event := audit.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		SubjectID: subjectID,
		Detail:    detail,
		Metadata:  metadata,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if err := s.sink.Append(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			"kind", kind,
			"subject_id", subjectID,
			"error", err,
		)
	}
}

// decisionMetadata builds the audit metadata snapshot. Origin addresses are
// anonymized and device fingerprints hashed before leaving the engine.
func decisionMetadata(req *Request, d *Decision) map[string]any {
	meta := map[string]any{
		"resource":       req.Resource,
		"action":         req.Action,
		"allowed":        d.Allowed,
		"risk_score":     d.Risk.Score,
		"recommendation": string(d.Risk.Recommendation),
	}
	if len(d.Risk.Factors) > 0 {
		meta["risk_factors"] = d.Risk.Factors
	}
	if origin := req.Metadata.OriginAddress; origin != "" {
		meta["origin"] = privacy.AnonymizeIP(origin)
	}
	if ua := req.Metadata.UserAgent; ua != "" {
		meta["client"] = clientSummary(ua)
	}
	if fp := req.Metadata.DeviceFingerprint; fp != "" {
		meta["device"] = privacy.HashFingerprint(fp)
	}
	if req.Metadata.SessionID != "" {
		meta["session_id"] = req.Metadata.SessionID
	}
	if req.Metadata.Amount != nil {
		meta["amount"] = *req.Metadata.Amount
	}
	return meta
}

// clientSummary condenses a raw User-Agent into "browser/os" so audit
// records stay readable without carrying the full string.
func clientSummary(raw string) string {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	return summary
}

func verdictLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}
