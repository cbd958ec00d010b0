// Package requestmeta captures per-request metadata (correlation ID, request
// time, client network address, user agent, device fingerprint) into the
// context. Apply it first in the middleware chain.
package requestmeta

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vaultgate/pkg/requestcontext"
)

const (
	headerRequestID         = "X-Request-ID"
	headerDeviceFingerprint = "X-Device-Fingerprint"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := r.Context()
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())
		ctx = requestcontext.WithClientMetadata(ctx, ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		if fp := r.Header.Get(headerDeviceFingerprint); fp != "" {
			ctx = requestcontext.WithDeviceFingerprint(ctx, fp)
		}

		w.Header().Set(headerRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the originating client IP, honoring proxy
// headers in order of trustworthiness.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First entry is the original client; the rest are proxies.
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
