// ABOUTME: Tests for the per-user baseline cache
// ABOUTME: Validates reuse, TTL expiry, LRU eviction, cleanup and concurrency safety

package infer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*BaselineCache, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewBaselineCache(ttl, maxSize)
	c.mu.Lock()
	c.now = clock.Now
	c.mu.Unlock()
	return c, clock
}

func TestBaselineCache_GetReusesBaseline(t *testing.T) {
	c, _ := newTestCache(time.Hour, 10)
	defer c.Close()

	b := c.Get("u1")
	assert.Same(t, b, c.Get("u1"))
	assert.NotSame(t, b, c.Get("u2"))
	assert.Equal(t, 2, c.Len())
}

func TestBaselineCache_Expiry(t *testing.T) {
	c, clock := newTestCache(time.Hour, 10)
	defer c.Close()

	b := c.Get("u1")
	clock.Advance(59 * time.Minute)
	assert.Same(t, b, c.Get("u1"), "use refreshes the entry")

	clock.Advance(59 * time.Minute)
	assert.Same(t, b, c.Get("u1"))

	clock.Advance(time.Hour)
	assert.NotSame(t, b, c.Get("u1"), "expired baselines start over")
	assert.Equal(t, 1, c.Len())
}

func TestBaselineCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(time.Hour, 3)
	defer c.Close()

	u1 := c.Get("u1")
	c.Get("u2")
	c.Get("u3")
	c.Get("u1") // u2 is now the oldest
	c.Get("u4")

	assert.Equal(t, 3, c.Len())
	assert.Same(t, u1, c.Get("u1"))

	c.mu.Lock()
	_, hasU2 := c.entries["u2"]
	c.mu.Unlock()
	assert.False(t, hasU2)
}

func TestBaselineCache_Forget(t *testing.T) {
	c, _ := newTestCache(time.Hour, 10)
	defer c.Close()

	b := c.Get("u1")
	c.Forget("u1")
	c.Forget("never-seen")
	assert.Equal(t, 0, c.Len())
	assert.NotSame(t, b, c.Get("u1"))
}

func TestBaselineCache_RunCleanup(t *testing.T) {
	c, clock := newTestCache(time.Hour, 10)
	defer c.Close()

	c.Get("old-1")
	c.Get("old-2")
	clock.Advance(30 * time.Minute)
	c.Get("fresh")
	clock.Advance(45 * time.Minute)

	c.runCleanup()

	assert.Equal(t, 1, c.Len())
	c.mu.Lock()
	_, ok := c.entries["fresh"]
	c.mu.Unlock()
	assert.True(t, ok)
}

func TestBaselineCache_Defaults(t *testing.T) {
	c := NewBaselineCache(0, 0)
	defer c.Close()

	assert.Equal(t, DefaultBaselineTTL, c.ttl)
	assert.Equal(t, DefaultMaxBaselines, c.maxSize)
}

func TestBaselineCache_CloseTwice(t *testing.T) {
	c := NewBaselineCache(time.Minute, 10)
	c.Close()
	assert.NotPanics(t, c.Close)
}

func TestBaselineCache_Concurrent(t *testing.T) {
	c := NewBaselineCache(time.Hour, 50)
	defer c.Close()
	e := NewHeuristicEngine(Config{})

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				user := fmt.Sprintf("u%d", (g*100+i)%80)
				e.InferWithBaseline("checking in again about the deploy, all good here", c.Get(user))
				if i%10 == 0 {
					c.Forget(user)
				}
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 50)
}
