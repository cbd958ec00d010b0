package authz

import (
	"fmt"
	"slices"
	"time"

	"vaultgate/internal/authz/config"
)

// RuleEngine evaluates cross-cutting business rules that can unconditionally
// veto a request. Rules run in a fixed order; the first failing rule wins and
// short-circuits the rest.
type RuleEngine struct {
	cfg *config.Config
}

func NewRuleEngine(cfg *config.Config) *RuleEngine {
	return &RuleEngine{cfg: cfg}
}

// Evaluate runs the veto rules. failedLogins is the subject's LOGIN_FAILED
// count inside the configured window, prefetched by the orchestrator.
func (e *RuleEngine) Evaluate(req *Request, now time.Time, failedLogins int) (bool, string) {
	rc := e.cfg.Rules

	if failedLogins > rc.FailedLoginThreshold {
		return false, fmt.Sprintf(
			"suspicious pattern: %d failed login attempts within the last %s",
			failedLogins, rc.FailedLoginWindow,
		)
	}

	if req.Action == "transfer" {
		if amount := req.Metadata.Amount; amount != nil && *amount > rc.UnverifiedTransferLimit &&
			req.Subject.KYCStatus != KYCApproved {
			return false, fmt.Sprintf(
				"transfers above %.0f require approved KYC status (current: %s)",
				rc.UnverifiedTransferLimit, req.Subject.KYCStatus,
			)
		}
	}

	if e.cfg.IsHoliday(now) && string(req.Subject.Role) == rc.HolidayRestrictedRole &&
		slices.Contains(rc.HolidayRestrictedActions, req.Action) {
		return false, fmt.Sprintf("action %q is restricted for role %q on bank holidays", req.Action, req.Subject.Role)
	}

	return true, ""
}
