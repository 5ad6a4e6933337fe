// Package store implements the agent daemon's persistence layer over a
// local SQLite file: tasks, their append-only steps, an FTS5 episodic
// index, plugin trust records, cached secrets, and rate-limit windows
// (spec.md §6).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Store wraps a single SQLite connection pool. All writers serialize
// through SetMaxOpenConns(1) — the same convention the in-pack SQLite
// stores use to avoid SQLITE_BUSY from concurrent writer connections,
// since WAL mode still only permits one writer at a time.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (or creates) the SQLite database at path and applies the
// WAL/foreign-key pragmas. Call Init to create the schema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s.logger.Debug("store: opened", "path", path)
	return s, nil
}

// DB returns the underlying *sql.DB for use by packages that need raw
// access (episodic search, migrations tests).
func (s *Store) DB() *sql.DB { return s.db }

// Close checkpoints the WAL back into the main database file and closes
// the connection. Called on graceful shutdown (spec.md §5).
func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("store: wal checkpoint failed", "error", err)
	}
	return s.db.Close()
}

// Init creates all tables, indexes, and the FTS5 virtual table if they
// do not already exist. Idempotent — safe to call on every startup.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	for _, ddl := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("store: init: %w", err)
		}
	}
	s.logger.Info("store: schema ready", "duration", time.Since(start))
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,

	`CREATE TABLE IF NOT EXISTS task_steps (
		task_id TEXT NOT NULL REFERENCES tasks(id),
		idx INTEGER NOT NULL,
		step_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (task_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_steps_task ON task_steps(task_id)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS task_steps_fts USING fts5(
		task_id UNINDEXED, idx UNINDEXED, content
	)`,

	`CREATE TABLE IF NOT EXISTS plugins (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		version TEXT NOT NULL,
		wasm_path TEXT NOT NULL,
		wasm_hash TEXT NOT NULL,
		manifest_json TEXT NOT NULL,
		trust_tier TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS secrets_cache (
		key TEXT PRIMARY KEY,
		value_encrypted BLOB NOT NULL,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS rate_limits (
		key TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		window_start INTEGER NOT NULL
	)`,
}
