// ABOUTME: In-process fixed-window counters, sharded by key hash
// ABOUTME: Entries live until Cleanup finds their window closed

package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

type entry struct {
	count       uint64
	windowStart time.Time
}

type counterShard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// MemoryCounter keeps counters in process memory.
type MemoryCounter struct {
	shards []*counterShard
}

// NewMemoryCounter creates a counter with n shards (DefaultShards if n <= 0).
func NewMemoryCounter(n int) *MemoryCounter {
	if n <= 0 {
		n = DefaultShards
	}
	shards := make([]*counterShard, n)
	for i := range shards {
		shards[i] = &counterShard{entries: make(map[string]*entry)}
	}
	return &MemoryCounter{shards: shards}
}

func (c *MemoryCounter) shard(key string) *counterShard {
	return c.shards[xxhash.Sum64String(key)%uint64(len(c.shards))]
}

// Hit implements Counter.
func (c *MemoryCounter) Hit(_ context.Context, key string, window time.Duration, now time.Time) (uint64, time.Duration, error) {
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		e = &entry{windowStart: now}
		sh.entries[key] = e
	} else if now.Sub(e.windowStart) >= window {
		e.count = 0
		e.windowStart = now
	}
	e.count++
	return e.count, window - now.Sub(e.windowStart), nil
}

// Cleanup implements Counter.
func (c *MemoryCounter) Cleanup(now time.Time, window time.Duration) int {
	removed := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for key, e := range sh.entries {
			if now.Sub(e.windowStart) >= window {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (c *MemoryCounter) Len() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}
