package authz

import (
	"vaultgate/internal/authz/config"
)

// SessionPolicy derives step-up and monitoring obligations from action
// sensitivity, role sensitivity, and transaction size. Rules stack: a later
// rule may strengthen what an earlier one set, never weaken it, except that
// the role-driven session cap deliberately replaces the action-driven one
// (a privileged operator's longer session is role policy, not a weakening).
type SessionPolicy struct {
	cfg *config.Config
}

func NewSessionPolicy(cfg *config.Config) *SessionPolicy {
	return &SessionPolicy{cfg: cfg}
}

func (p *SessionPolicy) Derive(req *Request) SessionRequirements {
	sc := p.cfg.Session
	reqs := SessionRequirements{MonitoringLevel: MonitoringStandard}

	if p.cfg.IsHighRiskAction(req.Action) {
		reqs.RequireStepUp = true
		reqs.MaxSessionDuration = sc.SensitiveSessionCap
		reqs.MonitoringLevel = escalate(reqs.MonitoringLevel, MonitoringEnhanced)
	}

	if p.cfg.IsPrivilegedRole(string(req.Subject.Role)) {
		reqs.RequireStepUp = true
		reqs.MaxSessionDuration = sc.PrivilegedSessionCap
		reqs.MonitoringLevel = escalate(reqs.MonitoringLevel, MonitoringStrict)
	}

	if amount := req.Metadata.Amount; amount != nil && *amount > sc.ReauthAmountThreshold {
		reqs.RequireReauth = true
		reqs.MonitoringLevel = escalate(reqs.MonitoringLevel, MonitoringStrict)
	}

	return reqs
}

var monitoringRank = map[MonitoringLevel]int{
	MonitoringStandard: 0,
	MonitoringEnhanced: 1,
	MonitoringStrict:   2,
}

// escalate returns the stronger of two monitoring levels.
func escalate(current, proposed MonitoringLevel) MonitoringLevel {
	if monitoringRank[proposed] > monitoringRank[current] {
		return proposed
	}
	return current
}
