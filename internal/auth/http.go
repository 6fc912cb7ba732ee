// ABOUTME: HTTP middleware enforcing the API key gate
// ABOUTME: Rejections are rendered by the caller-supplied RejectFunc; invalid keys are logged

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// RejectFunc writes the response for a rejected request. It is called with
// Missing, Malformed or InvalidKey.
type RejectFunc func(w http.ResponseWriter, r *http.Request, outcome Outcome)

// HTTPMiddleware admits or rejects each request using gate. Every rejection
// carries WWW-Authenticate: Bearer before reject runs. Admitted requests get
// an Identity in their context; one already present is filled in place.
func HTTPMiddleware(gate *Gate, logger *slog.Logger, reject RejectFunc) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(gate.HeaderName())
			outcome := gate.Check(r.URL.Path, header)

			if outcome != Admitted {
				if outcome == InvalidKey {
					logger.Warn("invalid API key attempt",
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
					)
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				reject(w, r, outcome)
				return
			}

			// an outer handler may have placed an Identity to read back later
			id := FromContext(r.Context())
			if id == nil {
				id = &Identity{}
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			id.Public = !gate.RequiresAuth(r.URL.Path)
			if gate.Enabled() && !id.Public {
				id.KeyID = KeyID(strings.TrimPrefix(header, gate.prefix))
			}
			next.ServeHTTP(w, r)
		})
	}
}
