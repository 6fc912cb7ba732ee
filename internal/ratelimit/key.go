// ABOUTME: Resolves the rate limit key for an HTTP request
// ABOUTME: API keys are hashed so raw credentials never become map or Redis keys

package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Default credential location for the api_key strategy.
const (
	DefaultKeyHeader = "Authorization"
	DefaultKeyPrefix = "Bearer "
)

// KeyFor returns the limiter key for r under cfg. The api_key strategy reads
// cfg.KeyHeader and falls back to the client IP when no credential is present.
func KeyFor(cfg Config, r *http.Request) string {
	if cfg.KeyStrategy == StrategyAPIKey {
		header := cfg.KeyHeader
		if header == "" {
			header = DefaultKeyHeader
		}
		if key := credential(r.Header.Get(header), cfg.KeyPrefix); key != "" {
			return "key:" + strconv.FormatUint(xxhash.Sum64String(key), 16)
		}
	}
	return "ip:" + ClientIP(r, cfg.TrustProxyHeaders)
}

// ClientIP returns the caller's address. Proxy headers are only honoured
// when trustProxyHeaders is set, since clients can forge them.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// credential strips prefix from a header value. Values without the prefix
// are used whole.
func credential(value, prefix string) string {
	if n := len(prefix); n > 0 && len(value) > n && strings.EqualFold(value[:n], prefix) {
		return strings.TrimSpace(value[n:])
	}
	return strings.TrimSpace(value)
}
