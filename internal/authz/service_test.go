package authz_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"vaultgate/internal/authz"
	"vaultgate/internal/authz/config"
	"vaultgate/internal/authz/mocks"
	dErrors "vaultgate/pkg/domain-errors"
	"vaultgate/pkg/platform/audit"
	auditmem "vaultgate/pkg/platform/audit/store/memory"
)

// =============================================================================
// Authorization Service Test Suite
// =============================================================================
// Justification for unit tests: the orchestrator owns stage ordering, the
// merge precedence between hard failures and risk recommendations, audit
// kind selection, and the fail-closed conversion of internal errors. All of
// these are decision-level behaviors best verified end to end against an
// in-memory audit trail.

type ServiceSuite struct {
	suite.Suite
	cfg     *config.Config
	store   *auditmem.InMemoryStore
	service *authz.Service

	now time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.cfg = config.Default()
	s.cfg.DeniedNetworks = []string{"203.0.113.50"}
	s.cfg.Holidays = []string{"2026-12-25"}
	s.store = auditmem.NewInMemoryStore()
	s.now = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	svc, err := authz.New(s.cfg, s.store, authz.WithLogger(discardLogger()))
	s.Require().NoError(err)
	s.service = svc
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) client() *authz.Subject {
	return &authz.Subject{
		ID:             "user-1",
		Role:           authz.RoleClient,
		KYCStatus:      authz.KYCApproved,
		TrustedDevices: []string{"fp-trusted"},
	}
}

func (s *ServiceSuite) request(action string, amt *float64) *authz.Request {
	return &authz.Request{
		SubjectID: "user-1",
		Subject:   s.client(),
		Resource:  "banking/accounts",
		Action:    action,
		Metadata: authz.Metadata{
			Amount:    amt,
			Timestamp: s.now,
		},
	}
}

// seedEvents backfills the subject's audit trail inside the frequency window.
func (s *ServiceSuite) seedEvents(kind audit.Kind, n int) {
	for range n {
		err := s.store.Append(context.Background(), audit.Event{
			Kind:      kind,
			SubjectID: "user-1",
			Timestamp: s.now.Add(-time.Minute),
		})
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) lastEvent() audit.Event {
	events, err := s.store.ListBySubject(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Require().NotEmpty(events)
	return events[len(events)-1]
}

func amount(v float64) *float64 { return &v }

func (s *ServiceSuite) TestNew() {
	s.Run("nil config returns error", func() {
		_, err := authz.New(nil, s.store)
		s.ErrorContains(err, "config")
	})

	s.Run("nil sink returns error", func() {
		_, err := authz.New(s.cfg, nil)
		s.ErrorContains(err, "audit sink")
	})
}

func (s *ServiceSuite) TestLowRiskReadIsAllowed() {
	decision := s.service.Evaluate(context.Background(), s.request("read", nil))

	s.True(decision.Allowed)
	s.Empty(decision.Reason)
	s.Equal(0, decision.Risk.Score)
	s.Equal(authz.RecommendAllow, decision.Risk.Recommendation)
	s.Equal(authz.SessionRequirements{MonitoringLevel: authz.MonitoringStandard}, decision.Session)

	event := s.lastEvent()
	s.Equal(audit.KindAccessGranted, event.Kind)
	s.Equal("user-1", event.SubjectID)
	s.NotEmpty(event.ID)
	s.Equal("banking/accounts", event.Metadata["resource"])
	s.Equal(true, event.Metadata["allowed"])
}

func (s *ServiceSuite) TestLargeTransferIsMonitored() {
	decision := s.service.Evaluate(context.Background(), s.request("transfer", amount(120_000)))

	s.True(decision.Allowed)
	s.Equal(45, decision.Risk.Score) // high-risk action + large amount
	s.Equal(authz.RecommendMonitor, decision.Risk.Recommendation)

	s.True(decision.Session.RequireStepUp, "transfer is a sensitive action")
	s.True(decision.Session.RequireReauth, "amount exceeds the reauth threshold")
	s.Equal(authz.MonitoringStrict, decision.Session.MonitoringLevel)
	s.Equal(30*time.Minute, decision.Session.MaxSessionDuration)

	s.Equal(audit.KindAccessGranted, s.lastEvent().Kind)
}

func (s *ServiceSuite) TestChallengeEscalatesSessionObligations() {
	// 60 operations in the last hour (+30) plus a sensitive action (+20)
	// lands exactly on the challenge threshold.
	s.seedEvents(audit.KindAccessGranted, 60)

	decision := s.service.Evaluate(context.Background(), s.request("transfer", nil))

	s.True(decision.Allowed)
	s.Equal(50, decision.Risk.Score)
	s.Equal(authz.RecommendChallenge, decision.Risk.Recommendation)

	s.True(decision.Session.RequireStepUp)
	s.True(decision.Session.RequireReauth, "challenge forces reauth even without a large amount")
	s.Equal(authz.MonitoringEnhanced, decision.Session.MonitoringLevel)
}

func (s *ServiceSuite) TestHighScoreDenies() {
	s.seedEvents(audit.KindAccessGranted, 60)

	decision := s.service.Evaluate(context.Background(), s.request("transfer", amount(120_000)))

	s.False(decision.Allowed)
	s.Equal(75, decision.Risk.Score)
	s.Equal(authz.RecommendDeny, decision.Risk.Recommendation)
	s.Contains(decision.Reason, "risk score 75")

	s.Equal(audit.KindAccessDenied, s.lastEvent().Kind)
}

func (s *ServiceSuite) TestRoleCheckFailure() {
	decision := s.service.Evaluate(context.Background(), s.request("delete", nil))

	s.False(decision.Allowed)
	s.Contains(decision.Reason, "not granted")
	s.Equal(audit.KindRoleCheckFailed, s.lastEvent().Kind)
}

func (s *ServiceSuite) TestContextCheckFailure() {
	req := s.request("read", nil)
	req.Metadata.DeviceFingerprint = "fp-unknown"

	decision := s.service.Evaluate(context.Background(), req)

	s.False(decision.Allowed)
	s.Contains(decision.Reason, "trusted-device")
	s.Len(decision.AdditionalChecks, 1)
	s.Equal(audit.KindContextCheckFailed, s.lastEvent().Kind)
}

func (s *ServiceSuite) TestStageFailuresCombineReasons() {
	// Role failure and context failure together: both reasons surface
	// joined, and the role failure picks the audit kind.
	req := s.request("delete", nil)
	req.Metadata.OriginAddress = "203.0.113.50"

	decision := s.service.Evaluate(context.Background(), req)

	s.False(decision.Allowed)
	s.Contains(decision.Reason, "not granted")
	s.Contains(decision.Reason, "denylist")
	s.Contains(decision.Reason, "; ")
	s.Equal(audit.KindRoleCheckFailed, s.lastEvent().Kind)
}

func (s *ServiceSuite) TestDynamicRuleVeto() {
	s.Run("failed login burst", func() {
		s.store.Clear()
		s.seedEvents(audit.KindLoginFailed, 6)

		decision := s.service.Evaluate(context.Background(), s.request("read", nil))

		s.False(decision.Allowed)
		s.Contains(decision.Reason, "failed login attempts")
		s.Equal(audit.KindAccessDenied, s.lastEvent().Kind)
	})

	s.Run("large transfer without approved KYC", func() {
		s.store.Clear()
		req := s.request("transfer", amount(15_000))
		req.Subject.KYCStatus = authz.KYCPending

		decision := s.service.Evaluate(context.Background(), req)

		s.False(decision.Allowed)
		s.Contains(decision.Reason, "KYC")
	})

	s.Run("client transfer on a holiday", func() {
		s.store.Clear()
		req := s.request("transfer", nil)
		req.Metadata.Timestamp = time.Date(2026, 12, 25, 11, 0, 0, 0, time.UTC)

		decision := s.service.Evaluate(context.Background(), req)

		s.False(decision.Allowed)
		s.Contains(decision.Reason, "holiday")
	})
}

func (s *ServiceSuite) TestMalformedRequests() {
	tests := []struct {
		name string
		req  *authz.Request
	}{
		{"nil request", nil},
		{"missing subject", &authz.Request{Resource: "banking/accounts", Action: "read"}},
		{"missing resource", &authz.Request{SubjectID: "user-1", Subject: s.client(), Action: "read"}},
		{"missing action", &authz.Request{SubjectID: "user-1", Subject: s.client(), Resource: "banking/accounts"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			decision := s.service.Evaluate(context.Background(), tt.req)

			s.False(decision.Allowed)
			s.Contains(decision.Reason, "malformed authorization context")
			s.Equal(authz.RecommendDeny, decision.Risk.Recommendation)
		})
	}
}

func (s *ServiceSuite) TestEvaluationIsRepeatable() {
	first := s.service.Evaluate(context.Background(), s.request("read", nil))
	second := s.service.Evaluate(context.Background(), s.request("read", nil))

	s.Equal(first, second)

	events, err := s.store.ListBySubject(context.Background(), "user-1")
	s.NoError(err)
	s.Len(events, 2, "each evaluation appends its own record")
}

// =============================================================================
// Fail-Closed Behavior (mocked dependencies)
// =============================================================================
// Justification: dependency failures must degrade to a deny with the maximal
// risk score, never to an allow or an error return. These paths need failing
// mocks.

type ServiceFailureSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	mockSink     *mocks.MockAuditSink
	mockSubjects *mocks.MockSubjectStore
	cfg          *config.Config
}

func TestServiceFailureSuite(t *testing.T) {
	suite.Run(t, new(ServiceFailureSuite))
}

func (s *ServiceFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockSink = mocks.NewMockAuditSink(s.ctrl)
	s.mockSubjects = mocks.NewMockSubjectStore(s.ctrl)
	s.cfg = config.Default()
}

func (s *ServiceFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceFailureSuite) assertFailClosed(decision *authz.Decision) {
	s.False(decision.Allowed)
	s.Equal("authorization engine unavailable", decision.Reason)
	s.Equal(100, decision.Risk.Score)
	s.Equal([]string{"system_error"}, decision.Risk.Factors)
	s.Equal(authz.RecommendDeny, decision.Risk.Recommendation)
}

func (s *ServiceFailureSuite) TestAuditCountFailureFailsClosed() {
	s.mockSink.EXPECT().
		CountSince(gomock.Any(), "user-1", gomock.Any(), gomock.Any()).
		Return(0, errors.New("redis: connection refused")).
		AnyTimes()

	var recorded audit.Event
	s.mockSink.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event audit.Event) error {
			recorded = event
			return nil
		})

	svc, err := authz.New(s.cfg, s.mockSink, authz.WithLogger(discardLogger()))
	s.Require().NoError(err)

	decision := svc.Evaluate(context.Background(), &authz.Request{
		SubjectID: "user-1",
		Subject:   &authz.Subject{ID: "user-1", Role: authz.RoleClient, KYCStatus: authz.KYCApproved},
		Resource:  "banking/accounts",
		Action:    "read",
		Metadata:  authz.Metadata{Timestamp: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)},
	})

	s.assertFailClosed(decision)
	s.Equal(audit.KindOrchestrationError, recorded.Kind)
	s.Equal("user-1", recorded.SubjectID)
}

func (s *ServiceFailureSuite) TestSubjectLookupFailureFailsClosed() {
	s.mockSubjects.EXPECT().
		Get(gomock.Any(), "user-404").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "subject not found"))
	s.mockSink.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(nil)

	svc, err := authz.New(s.cfg, s.mockSink,
		authz.WithLogger(discardLogger()),
		authz.WithSubjectStore(s.mockSubjects),
	)
	s.Require().NoError(err)

	decision := svc.Evaluate(context.Background(), &authz.Request{
		SubjectID: "user-404",
		Resource:  "banking/accounts",
		Action:    "read",
	})

	s.assertFailClosed(decision)
}

func (s *ServiceFailureSuite) TestNoSubjectStoreConfiguredFailsClosed() {
	s.mockSink.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(nil)

	svc, err := authz.New(s.cfg, s.mockSink, authz.WithLogger(discardLogger()))
	s.Require().NoError(err)

	decision := svc.Evaluate(context.Background(), &authz.Request{
		SubjectID: "user-1",
		Resource:  "banking/accounts",
		Action:    "read",
	})

	s.assertFailClosed(decision)
}

func (s *ServiceFailureSuite) TestAuditAppendFailureDoesNotChangeVerdict() {
	s.mockSink.EXPECT().
		CountSince(gomock.Any(), "user-1", gomock.Any(), gomock.Any()).
		Return(0, nil).
		Times(2)
	s.mockSink.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(errors.New("kafka: broker unreachable"))

	svc, err := authz.New(s.cfg, s.mockSink, authz.WithLogger(discardLogger()))
	s.Require().NoError(err)

	decision := svc.Evaluate(context.Background(), &authz.Request{
		SubjectID: "user-1",
		Subject:   &authz.Subject{ID: "user-1", Role: authz.RoleClient, KYCStatus: authz.KYCApproved},
		Resource:  "banking/accounts",
		Action:    "read",
		Metadata:  authz.Metadata{Timestamp: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)},
	})

	s.True(decision.Allowed, "a failed audit write must not flip a computed verdict")
}

func (s *ServiceFailureSuite) TestSubjectStoreResolvesSnapshot() {
	s.mockSubjects.EXPECT().
		Get(gomock.Any(), "user-2").
		Return(&authz.Subject{ID: "user-2", Role: authz.RoleTeller, KYCStatus: authz.KYCApproved}, nil)
	s.mockSink.EXPECT().
		CountSince(gomock.Any(), "user-2", gomock.Any(), gomock.Any()).
		Return(0, nil).
		Times(2)
	s.mockSink.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(nil)

	svc, err := authz.New(s.cfg, s.mockSink,
		authz.WithLogger(discardLogger()),
		authz.WithSubjectStore(s.mockSubjects),
	)
	s.Require().NoError(err)

	decision := svc.Evaluate(context.Background(), &authz.Request{
		SubjectID: "user-2",
		Resource:  "banking/accounts",
		Action:    "deposit",
		Metadata:  authz.Metadata{Timestamp: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)},
	})

	s.True(decision.Allowed)
}

// =============================================================================
// Step-Up Verification
// =============================================================================

func TestVerifyStepUp(t *testing.T) {
	needsStepUp := &authz.Decision{
		Allowed: true,
		Session: authz.SessionRequirements{RequireStepUp: true},
	}
	noStepUp := &authz.Decision{Allowed: true}

	t.Run("unmet obligation returns step-up error", func(t *testing.T) {
		err := authz.VerifyStepUp(needsStepUp, false)
		if dErrors.CodeOf(err) != dErrors.CodeStepUpRequired {
			t.Fatalf("expected step_up_required, got %v", err)
		}
	})

	t.Run("verified session passes", func(t *testing.T) {
		if err := authz.VerifyStepUp(needsStepUp, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("no obligation passes unverified", func(t *testing.T) {
		if err := authz.VerifyStepUp(noStepUp, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
