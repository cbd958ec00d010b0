package authz

import (
	dErrors "vaultgate/pkg/domain-errors"
)

// VerifyStepUp compares a decision's declared step-up obligation against the
// session's already-established step-up state. Callers run this before
// invoking the protected operation; the engine itself only declares the
// requirement and never verifies second factors.
func VerifyStepUp(decision *Decision, stepUpVerified bool) error {
	if decision.Session.RequireStepUp && !stepUpVerified {
		return dErrors.New(dErrors.CodeStepUpRequired, "step-up authentication required before this operation")
	}
	return nil
}
