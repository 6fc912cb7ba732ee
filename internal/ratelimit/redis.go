// ABOUTME: Redis-backed fixed-window counters shared by every gateway instance
// ABOUTME: INCR and PEXPIRE run in one Lua script so the first hit always sets the window

package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowScript string

var fixedWindow = redis.NewScript(fixedWindowScript)

// RedisCounter implements Counter on Redis. Expiry is handled by key TTLs.
type RedisCounter struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCounter wraps a configured client. Keys are written under prefix.
func NewRedisCounter(client redis.Cmdable, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "attuned"
	}
	return &RedisCounter{client: client, prefix: prefix}
}

// Hit implements Counter.
func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration, _ time.Time) (uint64, time.Duration, error) {
	keys := []string{c.prefix + ":ratelimit:" + key}
	res, err := fixedWindow.Run(ctx, c.client, keys, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script for %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate limit script for %s: unexpected reply %v", key, res)
	}
	return uint64(res[0]), time.Duration(res[1]) * time.Millisecond, nil
}

// Cleanup is a no-op; Redis expires windows itself.
func (c *RedisCounter) Cleanup(time.Time, time.Duration) int { return 0 }
