// Package authz implements the authorization decision engine: an ordered
// pipeline of role, contextual, risk, session, and dynamic-rule evaluators
// whose outputs merge into a single decision with attached session
// obligations. The orchestrator (service.go) is the only entry point.
package authz

import (
	"slices"
	"time"
)

// Role is a subject's assigned role in the permission matrix.
type Role string

const (
	RoleClient     Role = "client"
	RoleTeller     Role = "teller"
	RoleCompliance Role = "compliance"
	RoleAdmin      Role = "admin"
)

// KYCStatus is the subject's know-your-customer verification state.
type KYCStatus string

const (
	KYCPending  KYCStatus = "PENDING"
	KYCApproved KYCStatus = "APPROVED"
	KYCRejected KYCStatus = "REJECTED"
)

// RiskLevel is the caller-declared risk hint. It is advisory only; the risk
// scorer computes its own assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Recommendation is the risk scorer's categorical verdict.
type Recommendation string

const (
	RecommendAllow     Recommendation = "ALLOW"
	RecommendMonitor   Recommendation = "MONITOR"
	RecommendChallenge Recommendation = "CHALLENGE"
	RecommendDeny      Recommendation = "DENY"
)

// MonitoringLevel is the session monitoring intensity, ordered
// STANDARD < ENHANCED < STRICT.
type MonitoringLevel string

const (
	MonitoringStandard MonitoringLevel = "STANDARD"
	MonitoringEnhanced MonitoringLevel = "ENHANCED"
	MonitoringStrict   MonitoringLevel = "STRICT"
)

// Subject is the identity snapshot the evaluators read. It is supplied by the
// subject store and never mutated by the engine.
type Subject struct {
	ID                string
	Role              Role
	KYCStatus         KYCStatus
	TwoFactorEnrolled bool
	TrustedDevices    []string
}

// TrustsDevice reports whether the fingerprint is in the subject's
// trusted-device set.
func (s *Subject) TrustsDevice(fingerprint string) bool {
	return slices.Contains(s.TrustedDevices, fingerprint)
}

// Metadata carries the caller-declared request signals. Every field is
// optional; absence reduces the set of triggered signals, never crashes
// evaluation.
type Metadata struct {
	OriginAddress     string
	UserAgent         string
	DeviceFingerprint string
	SessionID         string
	Amount            *float64
	Timestamp         time.Time
}

// Request is the ephemeral evaluation context, constructed per call and owned
// by the orchestrator for the duration of one evaluation. Subject may be nil
// when only SubjectID is known; the orchestrator resolves the snapshot.
type Request struct {
	SubjectID    string
	Subject      *Subject
	Resource     string
	Action       string
	DeclaredRisk RiskLevel
	Metadata     Metadata
}

// RiskAssessment is the risk scorer's output. Score is unbounded above and
// never normalized.
type RiskAssessment struct {
	Score          int            `json:"score"`
	Factors        []string       `json:"factors"`
	Recommendation Recommendation `json:"recommendation"`
}

// SessionRequirements are the obligations attached to an allowed decision.
// MaxSessionDuration of zero means no cap.
type SessionRequirements struct {
	RequireStepUp      bool            `json:"require_step_up"`
	RequireReauth      bool            `json:"require_reauth"`
	MaxSessionDuration time.Duration   `json:"-"`
	MonitoringLevel    MonitoringLevel `json:"monitoring_level"`
}

// Decision is the pipeline's final output, immutable once produced.
type Decision struct {
	Allowed          bool
	Reason           string
	Risk             RiskAssessment
	Session          SessionRequirements
	AdditionalChecks []string
}

// Risk factor tags attached by the scorer.
const (
	factorHighFrequency  = "high_frequency_operations"
	factorHighRiskAction = "high_risk_operation"
	factorLargeAmount    = "large_transaction_amount"
	factorUnusualTime    = "unusual_time_access"
	factorSuspiciousIP   = "suspicious_ip_address"
	factorIncompleteKYC  = "incomplete_kyc"
	factorSystemError    = "system_error"
)
