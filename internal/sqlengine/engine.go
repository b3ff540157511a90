// Package sqlengine is the concrete storage adapter: it owns the
// *sql.DB handle, creates collection tables and their change-log
// triggers lazily, and exposes the low-level primitives (table
// bootstrap, index catalogue, transactions) that the mongolite facade
// compiles filter/update/projection fragments against (§4.I, §4.J).
package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/madhouselabs/mongolite/internal/validator"

	_ "modernc.org/sqlite"
)

// ChangeLogTable is the shared, append-only table every collection's
// triggers write to. A single table (rather than one per collection)
// lets a database-wide change stream poll with one monotonic sequence
// number (§4.H, §5).
const ChangeLogTable = "__mongolite_changes__"

// Engine wraps a SQLite handle opened through modernc.org/sqlite (a
// pure-Go driver, so this module never needs cgo) and tracks which
// collection tables have already been bootstrapped so repeat calls are
// cheap (§4.I).
type Engine struct {
	db *sql.DB

	mu       sync.Mutex
	bootstrapped map[string]bool
	changeLogReady bool

	validator *validator.InputValidator
}

// Open creates or opens a SQLite database file (path may be ":memory:")
// and prepares it for concurrent access the way an embedded engine
// should: WAL journaling so readers don't block the writer, and a busy
// timeout so lock contention waits instead of failing outright.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: open %q: %w", path, err)
	}

	// A single *sql.DB backed by one SQLite connection avoids
	// "database is locked" errors from concurrent writers on different
	// connections; WAL mode still lets readers proceed during a write.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlengine: %s: %w", p, err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlengine: ping: %w", err)
	}

	e := &Engine{
		db:           db,
		bootstrapped: make(map[string]bool),
		validator:    validator.NewInputValidator(),
	}
	if err := e.ensureChangeLog(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// DB returns the underlying handle for callers (the translate-aware
// collection facade) that assemble and run their own statements.
func (e *Engine) DB() *sql.DB { return e.db }

func (e *Engine) Close() error { return e.db.Close() }

func (e *Engine) Ping(ctx context.Context) error { return e.db.PingContext(ctx) }

// EnsureCollection creates the collection's table and change-log
// triggers the first time it's referenced. Safe to call on every
// operation; the bootstrap map makes repeat calls a single mutex lock
// and map lookup (§4.I).
func (e *Engine) EnsureCollection(ctx context.Context, name string) error {
	if err := e.validator.ValidateCollectionName(name); err != nil {
		return err
	}

	e.mu.Lock()
	if e.bootstrapped[name] {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s" (
			_id  TEXT PRIMARY KEY,
			data TEXT NOT NULL DEFAULT '{}'
		)`, name)
	if _, err := e.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlengine: create table %s: %w", name, err)
	}

	if err := e.installTriggers(ctx, name); err != nil {
		return err
	}

	e.mu.Lock()
	e.bootstrapped[name] = true
	e.mu.Unlock()
	return nil
}

// DropCollection removes a collection's table and its change-log
// triggers (SQLite drops a table's triggers automatically).
func (e *Engine) DropCollection(ctx context.Context, name string) error {
	if err := e.validator.ValidateCollectionName(name); err != nil {
		return err
	}
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, name)); err != nil {
		return fmt.Errorf("sqlengine: drop table %s: %w", name, err)
	}
	e.mu.Lock()
	delete(e.bootstrapped, name)
	e.mu.Unlock()
	return nil
}

// ListCollections returns every user-created collection table, i.e.
// every table in sqlite_master that isn't one of this module's own
// system tables.
func (e *Engine) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%' AND name != ?
	`, ChangeLogTable)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: list collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Tx runs fn inside a transaction, committing on success and rolling
// back on any error or panic, mirroring the teacher's
// panic-safe RunInTransaction idiom.
func (e *Engine) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlengine: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
