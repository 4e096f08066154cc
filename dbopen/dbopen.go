// Package dbopen opens SQLite databases the way this project expects:
// WAL journaling, foreign keys on, a write-contention busy timeout, and
// optional schema bootstrap. Pragmas go through Exec so any database/sql
// SQLite driver works; blank-import modernc.org/sqlite before calling.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Option customises Open behaviour.
type Option func(*settings)

type settings struct {
	mkdirAll    bool
	busyTimeout int
	schemas     []string
}

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// WithBusyTimeout overrides PRAGMA busy_timeout (milliseconds, default 10000).
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyTimeout = ms } }

// WithSchema queues SQL to run once the pragmas are applied. May be given
// multiple times; statements run in order.
func WithSchema(ddl string) Option { return func(s *settings) { s.schemas = append(s.schemas, ddl) } }

// Open opens the SQLite database at path, applies the standard pragmas and
// any queued schema, and verifies the connection.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{busyTimeout: 10_000}
	for _, o := range opts {
		o(&s)
	}

	if s.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}

	setup := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout),
	}
	setup = append(setup, s.schemas...)

	for _, stmt := range setup {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: %s: %w", firstWords(stmt), err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for tests. MaxOpenConns is pinned
// to 1 because each new connection to ":memory:" is a fresh database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// firstWords keeps error messages short when the failing statement is a
// multi-line schema.
func firstWords(stmt string) string {
	if len(stmt) > 40 {
		return stmt[:40] + "..."
	}
	return stmt
}
