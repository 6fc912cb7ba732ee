// ABOUTME: Fixed-window request limiter keyed by client IP or API key
// ABOUTME: Counting is delegated to a Counter; the limiter turns counts into decisions

package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// KeyStrategy selects what identifies a client.
type KeyStrategy string

// Key strategies
const (
	StrategyIP     KeyStrategy = "ip"
	StrategyAPIKey KeyStrategy = "api_key"
)

// Counter backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds limiter settings.
type Config struct {
	MaxRequests       uint32
	Window            time.Duration
	KeyStrategy       KeyStrategy
	TrustProxyHeaders bool
	// KeyHeader and KeyPrefix locate the credential for the api_key
	// strategy. An empty KeyPrefix takes the whole header value.
	KeyHeader         string
	KeyPrefix         string
	Backend           string
	CleanupInterval   time.Duration
	Shards            int
}

// DefaultConfig allows 100 requests per minute per client IP.
func DefaultConfig() Config {
	return Config{
		MaxRequests:     100,
		Window:          time.Minute,
		KeyStrategy:     StrategyIP,
		KeyHeader:       DefaultKeyHeader,
		KeyPrefix:       DefaultKeyPrefix,
		Backend:         BackendMemory,
		CleanupInterval: time.Minute,
		Shards:          DefaultShards,
	}
}

// Unlimited returns a config that never rejects.
func Unlimited() Config {
	cfg := DefaultConfig()
	cfg.MaxRequests = math.MaxUint32
	return cfg
}

// Decision is the outcome of a single Check. A rejection is not an error.
type Decision struct {
	Allowed    bool
	Limit      uint32
	Remaining  uint32
	RetryAfter time.Duration
}

// RetryAfterSeconds is RetryAfter in whole seconds, never less than one.
func (d Decision) RetryAfterSeconds() int64 {
	return max(int64(d.RetryAfter/time.Second), 1)
}

// Counter increments per-key fixed-window counters.
type Counter interface {
	// Hit counts one request for key and returns the count within the
	// current window and the time until that window closes.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count uint64, resetIn time.Duration, err error)

	// Cleanup drops counters whose window closed before now and reports
	// how many were removed.
	Cleanup(now time.Time, window time.Duration) int
}

// Limiter applies Config to a Counter.
type Limiter struct {
	cfg     Config
	counter Counter
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a limiter. A nil counter gets a MemoryCounter.
func New(cfg Config, counter Counter) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyStrategy == "" {
		cfg.KeyStrategy = StrategyIP
	}
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = DefaultKeyHeader
	}
	if counter == nil {
		counter = NewMemoryCounter(cfg.Shards)
	}
	return &Limiter{
		cfg:     cfg,
		counter: counter,
		now:     time.Now,
		logger:  slog.Default().With("component", "ratelimit"),
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

// Check records one request for key. A window that has run its full length
// is reset before counting, so a burst straddling a boundary can admit up to
// twice MaxRequests.
func (l *Limiter) Check(ctx context.Context, key string) (Decision, error) {
	count, resetIn, err := l.counter.Hit(ctx, key, l.cfg.Window, l.now())
	if err != nil {
		return Decision{}, err
	}

	limit := l.cfg.MaxRequests
	if count > uint64(limit) {
		retry := resetIn.Truncate(time.Second)
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, Limit: limit, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Limit: limit, Remaining: limit - uint32(count)}, nil
}

// Cleanup drops expired windows.
func (l *Limiter) Cleanup() int {
	removed := l.counter.Cleanup(l.now(), l.cfg.Window)
	if removed > 0 {
		l.logger.Debug("rate limit entries expired", "removed", removed)
	}
	return removed
}

// Run calls Cleanup every CleanupInterval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) error {
	interval := l.cfg.CleanupInterval
	if interval <= 0 {
		interval = l.cfg.Window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
