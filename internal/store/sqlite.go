// ABOUTME: SQLite implementation of StateStore using modernc.org/sqlite
// ABOUTME: Latest snapshots and bounded history survive restarts, schema is created on open

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/state"
)

// SQLiteStore implements StateStore using SQLite
type SQLiteStore struct {
	db      *sql.DB
	history HistoryOptions
	logger  *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path. Parent
// directories are created if needed. ":memory:" gives a private in-process
// database.
func NewSQLiteStore(path string, history HistoryOptions) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "backend", BackendSQLite)

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would otherwise see its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		history: history.normalized(),
		logger:  logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS latest_state (
			user_id       TEXT PRIMARY KEY,
			source        TEXT NOT NULL,
			confidence    REAL NOT NULL,
			axes_json     TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS state_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT NOT NULL,
			source        TEXT NOT NULL,
			confidence    REAL NOT NULL,
			axes_json     TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_state_history_user
			ON state_history(user_id, id DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertLatest writes the latest row and the history row in one transaction.
func (s *SQLiteStore) UpsertLatest(ctx context.Context, snap *state.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	axes, err := json.Marshal(snap.Axes)
	if err != nil {
		return NewInternal("encoding axes", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewConnection("beginning transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO latest_state (user_id, source, confidence, axes_json, updated_at_ms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			source = excluded.source,
			confidence = excluded.confidence,
			axes_json = excluded.axes_json,
			updated_at_ms = excluded.updated_at_ms
	`, snap.UserID, string(snap.Source), snap.Confidence, string(axes), snap.UpdatedAtUnixMs)
	if err != nil {
		return NewInternal("upserting latest state", err)
	}

	if s.history.Enabled && s.history.MaxPerUser > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO state_history (user_id, source, confidence, axes_json, updated_at_ms)
			VALUES (?, ?, ?, ?, ?)
		`, snap.UserID, string(snap.Source), snap.Confidence, string(axes), snap.UpdatedAtUnixMs)
		if err != nil {
			return NewInternal("appending history", err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM state_history
			WHERE user_id = ? AND id NOT IN (
				SELECT id FROM state_history WHERE user_id = ? ORDER BY id DESC LIMIT ?
			)
		`, snap.UserID, snap.UserID, s.history.MaxPerUser)
		if err != nil {
			return NewInternal("trimming history", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewInternal("committing transaction", err)
	}
	return nil
}

// GetLatest returns the user's latest snapshot or nil.
func (s *SQLiteStore) GetLatest(ctx context.Context, userID string) (*state.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, confidence, axes_json, updated_at_ms
		FROM latest_state WHERE user_id = ?
	`, userID)

	snap, err := scanSnapshot(userID, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete removes every row belonging to the user.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewConnection("beginning transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM latest_state WHERE user_id = ?", userID); err != nil {
		return NewInternal("deleting latest state", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM state_history WHERE user_id = ?", userID); err != nil {
		return NewInternal("deleting history", err)
	}
	if err := tx.Commit(); err != nil {
		return NewInternal("committing transaction", err)
	}
	return nil
}

// GetHistory returns up to limit snapshots, newest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, userID string, limit int) ([]*state.Snapshot, error) {
	if limit <= 0 || !s.history.Enabled {
		return []*state.Snapshot{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source, confidence, axes_json, updated_at_ms
		FROM state_history WHERE user_id = ?
		ORDER BY id DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, NewInternal("querying history", err)
	}
	defer rows.Close()

	out := []*state.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(userID, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, NewInternal("iterating history", err)
	}
	return out, nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewConnection("pinging database", err)
	}
	return nil
}

// Check implements health.Checker.
func (s *SQLiteStore) Check(ctx context.Context) health.ComponentHealth {
	return health.Timed("sqlite_store", 250*time.Millisecond, func() error {
		return s.HealthCheck(ctx)
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(userID string, row rowScanner) (*state.Snapshot, error) {
	var (
		source     string
		confidence float64
		axesJSON   string
		updatedAt  int64
	)
	if err := row.Scan(&source, &confidence, &axesJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, NewInternal("scanning snapshot", err)
	}

	var axes map[string]float64
	if err := json.Unmarshal([]byte(axesJSON), &axes); err != nil {
		return nil, NewInternal("decoding axes", err)
	}
	snap, err := state.Restore(userID, state.Source(source), confidence, axes, updatedAt)
	if err != nil {
		return nil, NewInternal("stored snapshot is invalid", err)
	}
	return snap, nil
}
