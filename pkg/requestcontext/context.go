// Package requestcontext provides HTTP-independent accessors for
// request-scoped values. Middleware sets them; services and handlers read
// them without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type (
	subjectIDKey         struct{}
	requestIDKey         struct{}
	requestTimeKey       struct{}
	clientIPKey          struct{}
	userAgentKey         struct{}
	deviceFingerprintKey struct{}
	stepUpVerifiedKey    struct{}
)

// SubjectID retrieves the authenticated subject ID from the context.
func SubjectID(ctx context.Context) string {
	if v, ok := ctx.Value(subjectIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithSubjectID injects an authenticated subject ID into the context.
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectIDKey{}, subjectID)
}

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from the context. Falls back to
// time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time. All operations within a request see
// the same "now", keeping audit timestamps and window checks consistent.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// ClientIP retrieves the originating network address from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// UserAgent retrieves the caller's User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service tests that skip the HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// DeviceFingerprint retrieves the device fingerprint from the context.
func DeviceFingerprint(ctx context.Context) string {
	if v, ok := ctx.Value(deviceFingerprintKey{}).(string); ok {
		return v
	}
	return ""
}

// WithDeviceFingerprint injects a device fingerprint into the context.
func WithDeviceFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, deviceFingerprintKey{}, fingerprint)
}

// StepUpVerified reports whether the current session already completed
// step-up authentication (from the token's acr claim).
func StepUpVerified(ctx context.Context) bool {
	if v, ok := ctx.Value(stepUpVerifiedKey{}).(bool); ok {
		return v
	}
	return false
}

// WithStepUpVerified marks the session's step-up state in the context.
func WithStepUpVerified(ctx context.Context, verified bool) context.Context {
	return context.WithValue(ctx, stepUpVerifiedKey{}, verified)
}
