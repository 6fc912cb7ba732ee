// Package store persists user state snapshots.
//
// # Architecture
//
// Every backend implements StateStore and health.Checker:
//
//   - MemoryStore: sharded maps in process memory (default)
//   - SQLiteStore: single-node durability via modernc.org/sqlite
//   - RedisStore: shared state for several gateways
//   - QdrantStore: snapshots as vectors, axes in canonical order
//
// A snapshot is validated before any backend touches storage, and snapshots
// read back from storage are rebuilt through state.Restore so they are
// validated again.
//
// # History
//
// When HistoryOptions.Enabled is set each upsert also records the snapshot in
// a per-user history capped at MaxPerUser, most recent first. The latest
// snapshot and the history entry are written together: a single lock
// (memory), a transaction (SQLite), MULTI/EXEC (Redis) or a single upsert
// call (Qdrant).
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Use NewSQLiteStore(":memory:", ...) for tests that want real SQL without
// a file.
//
// # Error Handling
//
// Backends return *Error. Match kinds with errors.Is against ErrUserNotFound,
// ErrInternal, ErrConnection and ErrValidation. A missing user is not an
// error for GetLatest, which returns nil.
package store
