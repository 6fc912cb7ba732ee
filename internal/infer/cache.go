// ABOUTME: Thread-safe TTL cache of per-user baselines
// ABOUTME: Size-limited with least-recently-used eviction and background expiry

package infer

import (
	"container/list"
	"sync"
	"time"
)

// baselineEntry stores the last use and list element for a cached user.
type baselineEntry struct {
	baseline *Baseline
	lastUsed time.Time
	element  *list.Element
}

// BaselineCache holds baselines for recently active users. Entries unused for
// longer than the TTL expire, and at capacity the least recently used user is
// evicted. A doubly-linked list keeps use order for O(1) eviction.
type BaselineCache struct {
	mu      sync.Mutex
	entries map[string]*baselineEntry
	order   *list.List // user ids, least recently used at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// Cache defaults, used for non-positive arguments to NewBaselineCache.
const (
	DefaultBaselineTTL  = 24 * time.Hour
	DefaultMaxBaselines = 10_000
)

// NewBaselineCache creates a cache with the given TTL and size limit. A
// background goroutine removes expired entries until Close is called.
func NewBaselineCache(ttl time.Duration, maxSize int) *BaselineCache {
	if ttl <= 0 {
		ttl = DefaultBaselineTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxBaselines
	}
	c := &BaselineCache{
		entries: make(map[string]*baselineEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns the user's baseline, creating an empty one when the user is
// unknown or their baseline expired.
func (c *BaselineCache) Get(userID string) *Baseline {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.entries[userID]; ok {
		if now.Sub(entry.lastUsed) < c.ttl {
			entry.lastUsed = now
			c.order.MoveToBack(entry.element)
			return entry.baseline
		}
		c.removeLocked(userID, entry)
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	entry := &baselineEntry{
		baseline: NewBaseline(),
		lastUsed: now,
		element:  c.order.PushBack(userID),
	}
	c.entries[userID] = entry
	return entry.baseline
}

// Forget drops a user's baseline.
func (c *BaselineCache) Forget(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[userID]; ok {
		c.removeLocked(userID, entry)
	}
}

// Len reports the number of cached baselines.
func (c *BaselineCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *BaselineCache) removeLocked(userID string, entry *baselineEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, userID)
}

// evictOldest removes the least recently used entry. Must be called with mu held.
func (c *BaselineCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	userID, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, userID)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *BaselineCache) cleanup() {
	ticker := time.NewTicker(min(c.ttl, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries. Use order matches expiry order, so
// it stops at the first live entry.
func (c *BaselineCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		userID, _ := e.Value.(string)
		entry := c.entries[userID]
		if now.Sub(entry.lastUsed) < c.ttl {
			return
		}
		next := e.Next()
		c.removeLocked(userID, entry)
		e = next
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *BaselineCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
