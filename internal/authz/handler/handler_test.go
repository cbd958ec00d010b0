package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"vaultgate/internal/authz"
	auditmem "vaultgate/pkg/platform/audit/store/memory"
	"vaultgate/pkg/requestcontext"
)

// =============================================================================
// Authorization Handler Test Suite
// =============================================================================
// Justification for unit tests: the handler owns authentication gating,
// request validation, the step-up rejection path, and the JSON response
// shape. A stub service isolates these from engine behavior.

type stubService struct {
	decision *authz.Decision
	lastReq  *authz.Request
}

func (s *stubService) Evaluate(_ context.Context, req *authz.Request) *authz.Decision {
	s.lastReq = req
	return s.decision
}

type HandlerSuite struct {
	suite.Suite
	service *stubService
	store   *auditmem.InMemoryStore
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.service = &stubService{decision: &authz.Decision{
		Allowed: true,
		Risk:    authz.RiskAssessment{Factors: []string{}, Recommendation: authz.RecommendAllow},
		Session: authz.SessionRequirements{MonitoringLevel: authz.MonitoringStandard},
	}}
	s.store = auditmem.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.service, s.store, logger).Register(s.router)
}

func (s *HandlerSuite) evaluate(ctx context.Context, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/authz/evaluate", strings.NewReader(body))
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) authedCtx() context.Context {
	ctx := requestcontext.WithSubjectID(context.Background(), "user-1")
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
}

func (s *HandlerSuite) TestRequiresAuthentication() {
	rec := s.evaluate(context.Background(), `{"resource":"banking/accounts","action":"read"}`)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestRejectsInvalidBodies() {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"resource":`},
		{"unknown field", `{"resource":"banking/accounts","action":"read","bogus":1}`},
		{"missing resource", `{"action":"read"}`},
		{"missing action", `{"resource":"banking/accounts"}`},
		{"invalid declared risk", `{"resource":"banking/accounts","action":"read","declared_risk":"EXTREME"}`},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec := s.evaluate(s.authedCtx(), tt.body)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *HandlerSuite) TestEvaluateReturnsDecision() {
	rec := s.evaluate(s.authedCtx(),
		`{"resource":"banking/accounts","action":"transfer","context":{"amount":1200.50,"session_id":"sess-1"}}`)
	s.Equal(http.StatusOK, rec.Code)

	var resp EvaluateResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.True(resp.Allowed)
	s.Equal("ALLOW", resp.Risk.Recommendation)
	s.Equal("STANDARD", resp.Session.MonitoringLevel)

	s.Require().NotNil(s.service.lastReq)
	s.Equal("user-1", s.service.lastReq.SubjectID)
	s.Equal("banking/accounts", s.service.lastReq.Resource)
	s.Equal("sess-1", s.service.lastReq.Metadata.SessionID)
	s.Require().NotNil(s.service.lastReq.Metadata.Amount)
	s.InDelta(1200.50, *s.service.lastReq.Metadata.Amount, 0.001)
}

func (s *HandlerSuite) TestStepUpObligationGatesResponse() {
	s.service.decision = &authz.Decision{
		Allowed: true,
		Risk:    authz.RiskAssessment{Score: 55, Recommendation: authz.RecommendChallenge},
		Session: authz.SessionRequirements{
			RequireStepUp:   true,
			MonitoringLevel: authz.MonitoringEnhanced,
		},
	}

	s.Run("unverified session is rejected with step_up_required", func() {
		rec := s.evaluate(s.authedCtx(), `{"resource":"banking/accounts","action":"transfer"}`)
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Contains(rec.Body.String(), "step_up_required")

		events, err := s.store.ListBySubject(context.Background(), "user-1")
		s.NoError(err)
		s.NotEmpty(events, "the rejection is audited")
	})

	s.Run("verified session passes through", func() {
		ctx := requestcontext.WithStepUpVerified(s.authedCtx(), true)
		rec := s.evaluate(ctx, `{"resource":"banking/accounts","action":"transfer"}`)
		s.Equal(http.StatusOK, rec.Code)

		var resp EvaluateResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.True(resp.Session.RequireStepUp)
	})
}

func (s *HandlerSuite) TestDeniedDecisionMapsToForbidden() {
	s.service.decision = &authz.Decision{
		Allowed: false,
		Reason:  "risk score 80 meets the deny threshold",
		Risk:    authz.RiskAssessment{Score: 80, Recommendation: authz.RecommendDeny},
		Session: authz.SessionRequirements{MonitoringLevel: authz.MonitoringStandard},
	}

	rec := s.evaluate(s.authedCtx(), `{"resource":"banking/accounts","action":"transfer"}`)
	s.Equal(http.StatusForbidden, rec.Code)

	var resp EvaluateResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.False(resp.Allowed)
	s.Equal("DENY", resp.Risk.Recommendation)
	s.Contains(resp.Reason, "deny threshold")
}
