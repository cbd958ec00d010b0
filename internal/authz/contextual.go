package authz

import (
	"fmt"
	"strings"

	"vaultgate/internal/authz/config"
)

// ContextChecker evaluates time-of-day, network origin, and device-trust
// signals. Restrictions accumulate rather than short-circuit so the caller
// sees every violated dimension.
type ContextChecker struct {
	cfg *config.Config
}

func NewContextChecker(cfg *config.Config) *ContextChecker {
	return &ContextChecker{cfg: cfg}
}

// Evaluate returns the verdict, the joined reason, and the ordered list of
// triggered restrictions. Allowed iff no restriction triggered.
func (c *ContextChecker) Evaluate(req *Request, hour int) (bool, string, []string) {
	var restrictions []string

	if !c.cfg.IsPrivilegedRole(string(req.Subject.Role)) && !c.cfg.WithinBusinessHours(hour) {
		restrictions = append(restrictions, fmt.Sprintf(
			"access outside business hours [%d:00, %d:00) is restricted for role %q",
			c.cfg.BusinessHoursStart, c.cfg.BusinessHoursEnd, req.Subject.Role,
		))
	}

	if origin := req.Metadata.OriginAddress; c.cfg.IsDeniedNetwork(origin) {
		restrictions = append(restrictions, fmt.Sprintf("origin address %s is on the network denylist", origin))
	}

	if fp := req.Metadata.DeviceFingerprint; fp != "" && !req.Subject.TrustsDevice(fp) {
		restrictions = append(restrictions, "device fingerprint is not in the subject's trusted-device set")
	}

	if len(restrictions) == 0 {
		return true, "", nil
	}
	return false, strings.Join(restrictions, "; "), restrictions
}
