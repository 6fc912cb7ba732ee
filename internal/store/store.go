// ABOUTME: StateStore interface shared by every snapshot backend
// ABOUTME: Backends: sharded in-memory, SQLite, Redis and Qdrant

package store

import (
	"context"

	"github.com/2389/attuned-gateway/internal/state"
)

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendQdrant = "qdrant"
)

// DefaultMaxHistoryPerUser caps per-user history when not configured.
const DefaultMaxHistoryPerUser = 100

// StateStore persists the latest snapshot per user and, optionally, a
// bounded most-recent-first history. Implementations are safe for
// concurrent use.
type StateStore interface {
	// UpsertLatest validates the snapshot and replaces the user's latest
	// state. Invalid snapshots are rejected without touching storage.
	UpsertLatest(ctx context.Context, snap *state.Snapshot) error

	// GetLatest returns the user's latest snapshot, or nil if there is none.
	GetLatest(ctx context.Context, userID string) (*state.Snapshot, error)

	// Delete removes the latest snapshot and all history for the user.
	// Deleting an unknown user is not an error.
	Delete(ctx context.Context, userID string) error

	// GetHistory returns up to limit snapshots, most recent first. It
	// returns an empty slice when history is disabled or absent.
	GetHistory(ctx context.Context, userID string, limit int) ([]*state.Snapshot, error)

	// HealthCheck is a cheap liveness probe; nil means healthy.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// HistoryOptions controls history retention for every backend.
type HistoryOptions struct {
	Enabled    bool
	MaxPerUser int
}

func (o HistoryOptions) normalized() HistoryOptions {
	if o.MaxPerUser < 0 {
		o.MaxPerUser = 0
	}
	return o
}

// validate is the gate every backend runs before touching storage.
func validate(snap *state.Snapshot) error {
	if snap == nil {
		return Validation(&state.ValidationError{Message: "snapshot is nil"})
	}
	if err := snap.Validate(); err != nil {
		return Validation(err)
	}
	return nil
}
