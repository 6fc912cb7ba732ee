// ABOUTME: Redis implementation of StateStore using go-redis
// ABOUTME: Latest is a JSON string key, history is a capped list written in one MULTI

package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/state"
)

// DefaultRedisKeyPrefix namespaces every key written by RedisStore.
const DefaultRedisKeyPrefix = "attuned"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	KeyPrefix string
	History   HistoryOptions
}

// RedisStore keeps state in Redis so several gateways can share it.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	history HistoryOptions
	logger  *slog.Logger
}

// NewRedisStore wraps a configured client. The store owns the client and
// closes it on Close.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		history: cfg.History.normalized(),
		logger:  slog.Default().With("component", "store", "backend", BackendRedis),
	}
}

func (s *RedisStore) latestKey(userID string) string {
	return s.prefix + ":state:" + userID
}

func (s *RedisStore) historyKey(userID string) string {
	return s.prefix + ":history:" + userID
}

// UpsertLatest sets the latest key and pushes history atomically.
func (s *RedisStore) UpsertLatest(ctx context.Context, snap *state.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return NewInternal("encoding snapshot", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.latestKey(snap.UserID), data, 0)
		if s.history.Enabled && s.history.MaxPerUser > 0 {
			hk := s.historyKey(snap.UserID)
			pipe.LPush(ctx, hk, data)
			pipe.LTrim(ctx, hk, 0, int64(s.history.MaxPerUser-1))
		}
		return nil
	})
	if err != nil {
		return NewConnection("writing snapshot", err)
	}
	return nil
}

// GetLatest returns the user's latest snapshot or nil.
func (s *RedisStore) GetLatest(ctx context.Context, userID string) (*state.Snapshot, error) {
	data, err := s.client.Get(ctx, s.latestKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, NewConnection("reading snapshot", err)
	}
	return decodeSnapshot(data)
}

// Delete removes both keys for the user.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.latestKey(userID), s.historyKey(userID)).Err(); err != nil {
		return NewConnection("deleting user", err)
	}
	return nil
}

// GetHistory returns up to limit snapshots, newest first.
func (s *RedisStore) GetHistory(ctx context.Context, userID string, limit int) ([]*state.Snapshot, error) {
	if limit <= 0 || !s.history.Enabled {
		return []*state.Snapshot{}, nil
	}
	items, err := s.client.LRange(ctx, s.historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, NewConnection("reading history", err)
	}

	out := make([]*state.Snapshot, 0, len(items))
	for _, item := range items {
		snap, err := decodeSnapshot([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// HealthCheck pings Redis.
func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return NewConnection("pinging redis", err)
	}
	return nil
}

// Check implements health.Checker.
func (s *RedisStore) Check(ctx context.Context) health.ComponentHealth {
	return health.Timed("redis_store", 250*time.Millisecond, func() error {
		return s.HealthCheck(ctx)
	})
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeSnapshot(data []byte) (*state.Snapshot, error) {
	var raw state.Snapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewInternal("decoding snapshot", err)
	}
	snap, err := state.Restore(raw.UserID, raw.Source, raw.Confidence, raw.Axes, raw.UpdatedAtUnixMs)
	if err != nil {
		return nil, NewInternal("stored snapshot is invalid", err)
	}
	return snap, nil
}
