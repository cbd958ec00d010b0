package handler

import (
	"time"

	"vaultgate/internal/authz"
)

// EvaluateResponse is the HTTP response for POST /authz/evaluate.
type EvaluateResponse struct {
	Allowed          bool            `json:"allowed"`
	Reason           string          `json:"reason,omitempty"`
	Risk             RiskResponse    `json:"risk"`
	Session          SessionResponse `json:"session"`
	AdditionalChecks []string        `json:"additional_checks,omitempty"`
	EvaluatedAt      time.Time       `json:"evaluated_at"`
}

// RiskResponse is the risk assessment portion of the response.
type RiskResponse struct {
	Score          int      `json:"score"`
	Factors        []string `json:"factors"`
	Recommendation string   `json:"recommendation"`
}

// SessionResponse carries the session obligations attached to the decision.
type SessionResponse struct {
	RequireStepUp             bool   `json:"require_step_up"`
	RequireReauth             bool   `json:"require_reauth"`
	MaxSessionDurationSeconds int64  `json:"max_session_duration_seconds,omitempty"`
	MonitoringLevel           string `json:"monitoring_level"`
}

// FromDecision converts a domain decision to an HTTP response.
func FromDecision(d *authz.Decision, evaluatedAt time.Time) *EvaluateResponse {
	return &EvaluateResponse{
		Allowed: d.Allowed,
		Reason:  d.Reason,
		Risk: RiskResponse{
			Score:          d.Risk.Score,
			Factors:        d.Risk.Factors,
			Recommendation: string(d.Risk.Recommendation),
		},
		Session: SessionResponse{
			RequireStepUp:             d.Session.RequireStepUp,
			RequireReauth:             d.Session.RequireReauth,
			MaxSessionDurationSeconds: int64(d.Session.MaxSessionDuration.Seconds()),
			MonitoringLevel:           string(d.Session.MonitoringLevel),
		},
		AdditionalChecks: d.AdditionalChecks,
		EvaluatedAt:      evaluatedAt,
	}
}
