// ABOUTME: Sharded in-memory StateStore for single-node deployments and tests
// ABOUTME: Each shard's lock covers both the latest map and the history rings

package store

import (
	"context"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/state"
)

// DefaultShards is the shard count used when MemoryConfig.Shards is unset.
const DefaultShards = 64

// MemoryConfig configures a MemoryStore.
type MemoryConfig struct {
	History HistoryOptions
	Shards  int
}

type memoryShard struct {
	mu      sync.RWMutex
	latest  map[string]*state.Snapshot
	history map[string][]*state.Snapshot
}

// MemoryStore keeps snapshots in process memory, partitioned by a hash of
// the user id so unrelated users never contend on the same lock.
type MemoryStore struct {
	shards  []*memoryShard
	history HistoryOptions
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	n := cfg.Shards
	if n <= 0 {
		n = DefaultShards
	}
	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = &memoryShard{
			latest:  make(map[string]*state.Snapshot),
			history: make(map[string][]*state.Snapshot),
		}
	}
	return &MemoryStore{shards: shards, history: cfg.History.normalized()}
}

func (s *MemoryStore) shard(userID string) *memoryShard {
	return s.shards[xxhash.Sum64String(userID)%uint64(len(s.shards))]
}

// UpsertLatest stores a copy of snap. History push, trim and latest swap
// happen under one lock so readers never see them out of step.
func (s *MemoryStore) UpsertLatest(_ context.Context, snap *state.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	stored := snap.Clone()
	sh := s.shard(stored.UserID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s.history.Enabled && s.history.MaxPerUser > 0 {
		ring := slices.Insert(sh.history[stored.UserID], 0, stored.Clone())
		if len(ring) > s.history.MaxPerUser {
			clear(ring[s.history.MaxPerUser:])
			ring = ring[:s.history.MaxPerUser]
		}
		sh.history[stored.UserID] = ring
	}
	sh.latest[stored.UserID] = stored
	return nil
}

// GetLatest returns a copy of the user's latest snapshot or nil.
func (s *MemoryStore) GetLatest(_ context.Context, userID string) (*state.Snapshot, error) {
	sh := s.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.latest[userID].Clone(), nil
}

// Delete drops the user's latest snapshot and history.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	sh := s.shard(userID)
	sh.mu.Lock()
	delete(sh.latest, userID)
	delete(sh.history, userID)
	sh.mu.Unlock()
	return nil
}

// GetHistory returns up to limit copies, most recent first.
func (s *MemoryStore) GetHistory(_ context.Context, userID string, limit int) ([]*state.Snapshot, error) {
	if limit <= 0 || !s.history.Enabled {
		return []*state.Snapshot{}, nil
	}
	sh := s.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	ring := sh.history[userID]
	n := min(limit, len(ring))
	out := make([]*state.Snapshot, n)
	for i := range n {
		out[i] = ring[i].Clone()
	}
	return out, nil
}

// HealthCheck always succeeds.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Check implements health.Checker.
func (s *MemoryStore) Check(context.Context) health.ComponentHealth {
	return health.ComponentHealth{Name: "memory_store", State: health.Healthy}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of users with a latest snapshot.
func (s *MemoryStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.latest)
		sh.mu.RUnlock()
	}
	return total
}

// Clear removes every user.
func (s *MemoryStore) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		clear(sh.latest)
		clear(sh.history)
		sh.mu.Unlock()
	}
}
