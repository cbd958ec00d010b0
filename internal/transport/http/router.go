// Package httptransport assembles the HTTP surface: public health and
// metrics endpoints plus the authenticated authorization API.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authzhandler "vaultgate/internal/authz/handler"
	"vaultgate/pkg/platform/httputil"
	"vaultgate/pkg/platform/middleware/auth"
	"vaultgate/pkg/platform/middleware/requestmeta"
)

// NewRouter wires all endpoints. Request metadata capture runs first so
// every handler sees a request ID, pinned time, and client metadata; the
// bearer-token check guards only the authorization API.
func NewRouter(authzHandler *authzhandler.Handler, authMW *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(requestmeta.Middleware)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(g chi.Router) {
		g.Use(authMW.RequireAuth)
		authzHandler.Register(g)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
