// ABOUTME: HTTP middleware for the gateway request pipeline
// ABOUTME: Security headers, request ids, access logging, CORS and the rate limit gate

package gateway

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/2389/attuned-gateway/internal/auth"
	"github.com/2389/attuned-gateway/internal/ratelimit"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store, max-age=0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "geolocation=(), camera=(), microphone=()"},
}

// withSecurityHeaders sets the hardening headers before anything else runs,
// so rejections from later middleware carry them too.
func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// withRequestID propagates the caller's X-Request-ID or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the id assigned by the pipeline, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// accessLog records every request in the log and in Prometheus, labelled by
// the chi route pattern so path parameters don't explode cardinality.
func (g *Gateway) accessLog(next http.Handler) http.Handler {
	logger := g.logger.With("component", "http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		id := &auth.Identity{}
		r = r.WithContext(auth.WithIdentity(r.Context(), id))

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		// nothing written means net/http sends 200
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		g.metrics.ObserveRequest(r.Method, route, status, elapsed)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", RequestIDFromContext(r.Context()),
		}
		if id.KeyID != "" {
			attrs = append(attrs, "key_id", id.KeyID)
		}
		logger.Info("request", attrs...)
	})
}

// cors answers preflight requests and sets allow headers for listed origins.
// No origins configured means no CORS headers at all.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !(allowAll || slices.Contains(origins, origin)) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			if allowAll {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+RequestIDHeader)
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			h.Set("Access-Control-Expose-Headers", "Retry-After, X-RateLimit-Limit, X-RateLimit-Remaining, "+RequestIDHeader)
			next.ServeHTTP(w, r)
		})
	}
}

// rejectAuth renders auth gate rejections.
func (g *Gateway) rejectAuth(w http.ResponseWriter, r *http.Request, outcome auth.Outcome) {
	g.metrics.AuthRejections.WithLabelValues(outcome.String()).Inc()
	g.writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, outcome.Message())
}

// rateLimit admits or rejects requests through the limiter. Limiter backend
// failures fail open so a redis outage doesn't take the API down.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	cfg := g.limiter.Config()
	logger := g.logger.With("component", "ratelimit")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ratelimit.KeyFor(cfg, r)
		decision, err := g.limiter.Check(r.Context(), key)
		if err != nil {
			logger.Error("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatUint(uint64(decision.Limit), 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatUint(uint64(decision.Remaining), 10))

		if !decision.Allowed {
			g.metrics.RateLimitRejections.Inc()
			h.Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds(), 10))
			logger.Debug("rate limit exceeded", "key", keyKind(key), "retry_after", decision.RetryAfter)
			g.writeError(w, r, http.StatusTooManyRequests, CodeRateLimited,
				"Rate limit exceeded. Retry after "+strconv.FormatInt(decision.RetryAfterSeconds(), 10)+" seconds")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyKind strips the identifying part of a limiter key for logging.
func keyKind(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}
