package authz

import (
	"vaultgate/internal/authz/config"
)

// RiskScorer computes a numeric risk score and categorical recommendation
// from behavioral, operational, and identity signals. The model is purely
// additive and order-independent; each rule triggers at most once.
type RiskScorer struct {
	cfg *config.Config
}

func NewRiskScorer(cfg *config.Config) *RiskScorer {
	return &RiskScorer{cfg: cfg}
}

// Score evaluates the request. opsInWindow is the subject's audit record
// count inside the configured frequency window, prefetched by the
// orchestrator so scoring itself stays free of I/O.
func (s *RiskScorer) Score(req *Request, hour int, opsInWindow int) RiskAssessment {
	rc := s.cfg.Risk

	score := 0
	factors := []string{}

	if opsInWindow > rc.FrequencyThreshold {
		score += rc.FrequencyPoints
		factors = append(factors, factorHighFrequency)
	}
	if s.cfg.IsHighRiskAction(req.Action) {
		score += rc.HighRiskActionPoints
		factors = append(factors, factorHighRiskAction)
	}
	if amount := req.Metadata.Amount; amount != nil && *amount > rc.LargeAmountThreshold {
		score += rc.LargeAmountPoints
		factors = append(factors, factorLargeAmount)
	}
	if !s.cfg.WithinBusinessHours(hour) {
		score += rc.OffHoursPoints
		factors = append(factors, factorUnusualTime)
	}
	if s.cfg.IsDeniedNetwork(req.Metadata.OriginAddress) {
		score += rc.DeniedNetworkPoints
		factors = append(factors, factorSuspiciousIP)
	}
	if req.Subject.KYCStatus != KYCApproved {
		score += rc.IncompleteKYCPoints
		factors = append(factors, factorIncompleteKYC)
	}

	return RiskAssessment{
		Score:          score,
		Factors:        factors,
		Recommendation: s.recommend(score),
	}
}

// recommend maps a score to a recommendation, checking thresholds in
// descending order so exactly one applies.
func (s *RiskScorer) recommend(score int) Recommendation {
	rc := s.cfg.Risk
	switch {
	case score >= rc.DenyThreshold:
		return RecommendDeny
	case score >= rc.ChallengeThreshold:
		return RecommendChallenge
	case score >= rc.MonitorThreshold:
		return RecommendMonitor
	default:
		return RecommendAllow
	}
}
