package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vaultgate/internal/authz/config"
)

// =============================================================================
// Session Policy Test Suite
// =============================================================================
// Justification for unit tests: the derivation rules stack, and the
// interaction between the action-driven and role-driven session caps (the
// latter replaces the former) needs explicit coverage.

type SessionPolicySuite struct {
	suite.Suite
	policy *SessionPolicy
}

func TestSessionPolicySuite(t *testing.T) {
	suite.Run(t, new(SessionPolicySuite))
}

func (s *SessionPolicySuite) SetupTest() {
	s.policy = NewSessionPolicy(config.Default())
}

func (s *SessionPolicySuite) TestDerive() {
	tests := []struct {
		name string
		req  *Request
		want SessionRequirements
	}{
		{
			name: "plain read has no obligations",
			req: &Request{
				Subject: &Subject{Role: RoleClient},
				Action:  "read",
			},
			want: SessionRequirements{MonitoringLevel: MonitoringStandard},
		},
		{
			name: "sensitive action requires step-up with short cap",
			req: &Request{
				Subject: &Subject{Role: RoleClient},
				Action:  "transfer",
			},
			want: SessionRequirements{
				RequireStepUp:      true,
				MaxSessionDuration: 30 * time.Minute,
				MonitoringLevel:    MonitoringEnhanced,
			},
		},
		{
			name: "privileged role gets strict monitoring and the longer cap",
			req: &Request{
				Subject: &Subject{Role: RoleAdmin},
				Action:  "read",
			},
			want: SessionRequirements{
				RequireStepUp:      true,
				MaxSessionDuration: time.Hour,
				MonitoringLevel:    MonitoringStrict,
			},
		},
		{
			name: "privileged cap replaces the sensitive-action cap",
			req: &Request{
				Subject: &Subject{Role: RoleCompliance},
				Action:  "delete",
			},
			want: SessionRequirements{
				RequireStepUp:      true,
				MaxSessionDuration: time.Hour,
				MonitoringLevel:    MonitoringStrict,
			},
		},
		{
			name: "large amount forces reauthentication",
			req: &Request{
				Subject:  &Subject{Role: RoleClient},
				Action:   "read",
				Metadata: Metadata{Amount: amount(60_000)},
			},
			want: SessionRequirements{
				RequireReauth:   true,
				MonitoringLevel: MonitoringStrict,
			},
		},
		{
			name: "amount at threshold does not trigger reauth",
			req: &Request{
				Subject:  &Subject{Role: RoleClient},
				Action:   "read",
				Metadata: Metadata{Amount: amount(50_000)},
			},
			want: SessionRequirements{MonitoringLevel: MonitoringStandard},
		},
		{
			name: "large transfer stacks step-up and reauth",
			req: &Request{
				Subject:  &Subject{Role: RoleClient},
				Action:   "transfer",
				Metadata: Metadata{Amount: amount(75_000)},
			},
			want: SessionRequirements{
				RequireStepUp:      true,
				RequireReauth:      true,
				MaxSessionDuration: 30 * time.Minute,
				MonitoringLevel:    MonitoringStrict,
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.want, s.policy.Derive(tt.req))
		})
	}
}

func (s *SessionPolicySuite) TestEscalateNeverWeakens() {
	s.Equal(MonitoringStrict, escalate(MonitoringStrict, MonitoringEnhanced))
	s.Equal(MonitoringStrict, escalate(MonitoringEnhanced, MonitoringStrict))
	s.Equal(MonitoringEnhanced, escalate(MonitoringStandard, MonitoringEnhanced))
	s.Equal(MonitoringStandard, escalate(MonitoringStandard, MonitoringStandard))
}
