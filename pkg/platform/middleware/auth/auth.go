// Package auth authenticates API callers from bearer tokens and exposes the
// subject identity plus the session's step-up state to downstream handlers.
// Token issuance lives elsewhere; this package only verifies.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"vaultgate/pkg/platform/audit"
	"vaultgate/pkg/platform/httputil"
	"vaultgate/pkg/requestcontext"

	dErrors "vaultgate/pkg/domain-errors"
)

// Claims are the token claims this service consumes. StepUp records whether
// the session already completed second-factor verification.
type Claims struct {
	jwt.RegisteredClaims
	StepUp bool `json:"step_up,omitempty"`
}

type Middleware struct {
	signingKey []byte
	sink       audit.Store
	logger     *slog.Logger
}

func New(signingKey []byte, sink audit.Store, logger *slog.Logger) *Middleware {
	return &Middleware{signingKey: signingKey, sink: sink, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token. Verification
// failures are recorded as LOGIN_FAILED audit events; the dynamic rule engine
// counts these when looking for suspicious patterns.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw, ok := bearerToken(r)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.signingKey, nil
		})
		if err != nil || !token.Valid {
			m.recordFailure(r, raw, err)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
			return
		}

		ctx = requestcontext.WithSubjectID(ctx, claims.Subject)
		ctx = requestcontext.WithStepUpVerified(ctx, claims.StepUp)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) recordFailure(r *http.Request, raw string, cause error) {
	ctx := r.Context()

	// Best effort at attributing the failure: the signature did not verify,
	// but the claimed subject is still the right bucket for lockout counting.
	subjectID := ""
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, unverified); err == nil {
		subjectID = unverified.Subject
	}

	event := audit.Event{
		Kind:      audit.KindLoginFailed,
		SubjectID: subjectID,
		Detail:    "bearer token verification failed",
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if err := m.sink.Append(ctx, event); err != nil && m.logger != nil {
		m.logger.ErrorContext(ctx, "failed to record login failure", "error", err)
	}
	if m.logger != nil {
		m.logger.WarnContext(ctx, "token verification failed",
			"request_id", event.RequestID,
			"error", cause,
		)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
