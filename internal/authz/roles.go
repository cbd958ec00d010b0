package authz

import (
	"fmt"

	"vaultgate/internal/authz/config"
)

// RoleChecker evaluates the static permission matrix for a (role, resource,
// action) triple. Lookup order: exact resource entry, then the role's
// wildcard resource entry; within the matched entry, exact action, then
// wildcard action. No side effects.
type RoleChecker struct {
	cfg *config.Config
}

func NewRoleChecker(cfg *config.Config) *RoleChecker {
	return &RoleChecker{cfg: cfg}
}

// Evaluate returns whether the role may perform action on resource, with a
// reason naming the missing grant on denial.
func (c *RoleChecker) Evaluate(role Role, resource, action string) (bool, string) {
	grants, ok := c.cfg.Permissions[string(role)]
	if !ok {
		return false, fmt.Sprintf("role %q has no grants in the permission matrix", role)
	}

	actions, ok := grants[resource]
	if !ok {
		actions, ok = grants[config.Wildcard]
	}
	if !ok {
		return false, fmt.Sprintf("role %q has no grant for resource %q", role, resource)
	}

	for _, a := range actions {
		if a == action || a == config.Wildcard {
			return true, ""
		}
	}
	return false, fmt.Sprintf("action %q on resource %q is not granted to role %q", action, resource, role)
}
