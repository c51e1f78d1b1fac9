// Package db provides database connection management and schema migrations
// for the console's local state.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// FileName is the SQLite database file created inside the data directory.
const FileName = "fitnix-console.db"

// DB wraps the sql.DB with console-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens the console database under dataDir and applies all embedded
// migrations. The database is opened with:
// - WAL mode for concurrent reads/writes
// - a single writer connection
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, FileName))
}

// OpenPath opens a database at an explicit path (":memory:" is accepted).
func OpenPath(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	m := NewMigrator(db)
	if err := m.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Handle lazily opens a database on first use and hands the same *DB to every
// caller afterwards. It is owned by the composition root and passed to the
// stores that share it.
type Handle struct {
	open func() (*DB, error)

	mu sync.Mutex
	db *DB
}

// NewHandle returns a handle that opens the database under dataDir on demand.
func NewHandle(dataDir string) *Handle {
	return &Handle{open: func() (*DB, error) { return Open(dataDir) }}
}

// NewHandleFunc returns a handle backed by a custom opener.
func NewHandleFunc(open func() (*DB, error)) *Handle {
	return &Handle{open: open}
}

// Get returns the open database, opening it if needed. A failed open is not
// cached; the next call tries again.
func (h *Handle) Get(ctx context.Context) (*DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db, nil
	}
	db, err := h.open()
	if err != nil {
		return nil, err
	}
	h.db = db
	return db, nil
}

// Close closes the database if it was opened.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}
