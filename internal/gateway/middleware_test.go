// ABOUTME: Tests for the request pipeline middleware
// ABOUTME: Covers auth and rate limit ordering, security headers, CORS and request ids

package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/attuned-gateway/internal/auth"
	"github.com/2389/attuned-gateway/internal/config"
)

func assertSecurityHeaders(t *testing.T, h http.Header) {
	t.Helper()
	for _, kv := range securityHeaders {
		assert.Equal(t, kv[1], h.Get(kv[0]), kv[0])
	}
}

func withKeys(keys ...string) func(*config.Config) {
	return func(c *config.Config) { c.Auth.APIKeys = keys }
}

func TestAuth_Rejections(t *testing.T) {
	gw := newTestGateway(t, withKeys("secret"))
	h := gw.Handler()

	tests := []struct {
		name    string
		header  string
		message string
		reason  string
	}{
		{"missing", "", "Missing authorization header", "missing"},
		{"malformed", "Token secret", "Invalid authorization header format", "malformed"},
		{"invalid", "Bearer wrong", "Invalid API key", "invalid_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			rec := doRequest(t, h, http.MethodGet, "/v1/axes", "", headers...)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assertSecurityHeaders(t, rec.Header())

			e := decodeError(t, rec)
			assert.Equal(t, CodeUnauthorized, e.Code)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, 1.0, testutil.ToFloat64(gw.metrics.AuthRejections.WithLabelValues(tt.reason)))
		})
	}
}

func TestAuth_ValidKeyAndPublicPaths(t *testing.T) {
	h := newTestGateway(t, withKeys("secret", "other")).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer other")
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec = doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuth_DisabledWithoutKeys(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/axes", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_HeadersAndRejection(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) { c.RateLimit.MaxRequests = 3 })
	h := gw.Handler()

	for _, want := range []string{"2", "1", "0"} {
		rec := doRequest(t, h, http.MethodGet, "/v1/axes", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/axes", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assertSecurityHeaders(t, rec.Header())
	assert.Equal(t, CodeRateLimited, decodeError(t, rec).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(gw.metrics.RateLimitRejections))
}

func TestRateLimit_ZeroRejectsEverything(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) { c.RateLimit.MaxRequests = 0 }).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimit_Unlimited(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.RateLimit.MaxRequests = 1
		c.RateLimit.Unlimited = true
	}).Handler()

	for range 50 {
		rec := doRequest(t, h, http.MethodGet, "/v1/axes", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := doRequest(t, h, http.MethodGet, "/v1/axes", "")
	assert.Equal(t, "4294967295", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_AuthRunsFirst(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.Auth.APIKeys = []string{"secret"}
		c.RateLimit.MaxRequests = 1
	}).Handler()

	// failed auth never spends the budget
	for range 3 {
		rec := doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer wrong")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// an exhausted budget still reports bad keys as 401
	rec = doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_APIKeyStrategyIsolatesKeys(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.Auth.APIKeys = []string{"alpha", "beta"}
		c.RateLimit.MaxRequests = 1
		c.RateLimit.KeyStrategy = "api_key"
	}).Handler()

	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer alpha").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer alpha").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer beta").Code)
}

func TestRateLimit_APIKeyStrategyCustomHeader(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.Auth.APIKeys = []string{"alpha", "beta"}
		c.Auth.HeaderName = "X-API-Key"
		c.RateLimit.MaxRequests = 1
		c.RateLimit.KeyStrategy = "api_key"
	}).Handler()

	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "Bearer alpha").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "Bearer alpha").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "Bearer beta").Code)
}

func TestAuth_BareKeyHeader(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.Auth.APIKeys = []string{"alpha", "beta"}
		c.Auth.HeaderName = "X-API-Key"
		c.Auth.Prefix = ""
		c.RateLimit.MaxRequests = 1
		c.RateLimit.KeyStrategy = "api_key"
	}).Handler()

	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "alpha").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "Bearer alpha").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "beta").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, h, http.MethodGet, "/v1/axes", "", "X-API-Key", "alpha").Code)
}

func TestSecurityHeaders_Disabled(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) { c.Server.SecurityHeaders = false }).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestRequestID(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "", RequestIDHeader, "trace-123")
	assert.Equal(t, "trace-123", rec.Header().Get(RequestIDHeader))

	rec = doRequest(t, h, http.MethodGet, "/health", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36, "generated ids are UUIDs")
}

func TestCORS(t *testing.T) {
	h := newTestGateway(t, func(c *config.Config) {
		c.Server.CORSOrigins = []string{"https://app.example.com"}
	}).Handler()

	rec := doRequest(t, h, http.MethodOptions, "/v1/state", "",
		"Origin", "https://app.example.com",
		"Access-Control-Request-Method", "POST")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = doRequest(t, h, http.MethodGet, "/health", "", "Origin", "https://app.example.com")
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, h, http.MethodGet, "/health", "", "Origin", "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOrigins(t *testing.T) {
	h := newTestGateway(t, nil).Handler()

	rec := doRequest(t, h, http.MethodGet, "/health", "", "Origin", "https://app.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	gw := newTestGateway(t, nil)
	gw.store = panicStore{gw.store}
	h := gw.Handler()

	rec := doRequest(t, h, http.MethodGet, "/v1/state/u1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assertSecurityHeaders(t, rec.Header())
}

func TestAccessLog_KeyID(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(t, withKeys("alpha"))
	gw, err := New(cfg, slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	h := gw.Handler()

	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/v1/axes", "", "Authorization", "Bearer alpha").Code)
	assert.Contains(t, buf.String(), `"key_id":"`+auth.KeyID("alpha")+`"`)
	assert.NotContains(t, buf.String(), "alpha\"")

	buf.Reset()
	require.Equal(t, http.StatusOK, doRequest(t, h, http.MethodGet, "/health", "").Code)
	assert.Contains(t, buf.String(), `"msg":"request"`)
	assert.NotContains(t, buf.String(), "key_id")
}

func TestAccessLog_EmptyResponseCountsAsOK(t *testing.T) {
	var buf bytes.Buffer
	gw, err := New(testConfig(t, nil), slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })

	h := gw.accessLog(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quiet", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(gw.metrics.RequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(gw.metrics.RequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "0")))
	assert.True(t, strings.Contains(buf.String(), `"status":200`), buf.String())
}
