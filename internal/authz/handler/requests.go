package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"vaultgate/internal/authz"
	dErrors "vaultgate/pkg/domain-errors"
)

var validate = validator.New()

// EvaluateRequest is the HTTP request body for POST /authz/evaluate.
type EvaluateRequest struct {
	Resource     string         `json:"resource" validate:"required,max=200"`
	Action       string         `json:"action" validate:"required,max=100"`
	DeclaredRisk string         `json:"declared_risk" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Context      RequestContext `json:"context"`

	// Parsed values (populated by Validate)
	parsedAmount *float64
}

// RequestContext holds the caller-declared evaluation signals. All fields are
// optional.
type RequestContext struct {
	SessionID string      `json:"session_id" validate:"omitempty,max=128"`
	Amount    json.Number `json:"amount,omitempty"`
}

// Validate validates and parses the request.
func (r *EvaluateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Resource = strings.TrimSpace(r.Resource)
	r.Action = strings.TrimSpace(r.Action)

	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return dErrors.Newf(dErrors.CodeBadRequest, "invalid field %q", fieldErrs[0].Field())
		}
		return dErrors.New(dErrors.CodeBadRequest, "invalid request")
	}

	// Amounts arrive as JSON numbers. An unparseable amount is dropped
	// rather than rejected: the engine treats an absent amount as "no
	// amount signal", which is the conservative reading.
	if raw := r.Context.Amount.String(); raw != "" {
		if v, err := r.Context.Amount.Float64(); err == nil {
			r.parsedAmount = &v
		}
	}

	return nil
}

// ParsedAmount returns the validated transaction amount, or nil when absent.
func (r *EvaluateRequest) ParsedAmount() *float64 {
	return r.parsedAmount
}

// ParsedRisk returns the caller's declared risk level.
func (r *EvaluateRequest) ParsedRisk() authz.RiskLevel {
	return authz.RiskLevel(r.DeclaredRisk)
}
