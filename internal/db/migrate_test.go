// Package db tests for database migration management.
package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInitialize verifies schema_migrations table creation.
func TestInitialize(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db)

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		1, 123456, "test_migration", strings.Repeat("a", 64))
	if err != nil {
		t.Errorf("Failed to insert test row: %v", err)
	}
}

// TestCurrentVersion verifies version tracking before and after Up.
func TestCurrentVersion(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db)

	if _, err := m.CurrentVersion(); err == nil {
		t.Error("CurrentVersion() should fail before Initialize()")
	}

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	v, err := m.CurrentVersion()
	if err != nil || v != 0 {
		t.Fatalf("CurrentVersion() = %d, %v; want 0, nil", v, err)
	}

	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}
	v, _ = m.CurrentVersion()
	if v != 3 {
		t.Errorf("CurrentVersion() = %d, want 3", v)
	}
}

// TestUp_idempotent verifies Up twice applies each migration once.
func TestUp_idempotent(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db)
	m.Initialize()

	if err := m.Up(); err != nil {
		t.Fatalf("first Up() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("second Up() failed: %v", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("applied = %d, want 3", len(applied))
	}
	if applied[0].Description != "offline_actions" {
		t.Errorf("description = %q, want offline_actions", applied[0].Description)
	}
	if len(applied[0].Checksum) != 64 {
		t.Errorf("checksum length = %d, want 64", len(applied[0].Checksum))
	}
}

// TestUp_ordersByVersion verifies numeric ordering rather than lexical.
func TestUp_ordersByVersion(t *testing.T) {
	db := openRaw(t)
	src := fstest.MapFS{
		"V10__second.up.sql": {Data: []byte("CREATE TABLE b (id INTEGER REFERENCES a(id));")},
		"V2__first.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER PRIMARY KEY);")},
		"README.md":          {Data: []byte("ignored")},
		"Vx__bad.up.sql":     {Data: []byte("ignored")},
	}
	m := NewMigratorFS(db, src)
	m.Initialize()

	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	applied, _ := m.GetAppliedMigrations()
	if len(applied) != 2 || applied[0].Version != 2 || applied[1].Version != 10 {
		t.Errorf("applied = %+v, want versions [2 10]", applied)
	}
}

// TestUp_badSQL verifies a failing migration is not recorded.
func TestUp_badSQL(t *testing.T) {
	db := openRaw(t)
	m := NewMigratorFS(db, fstest.MapFS{
		"V1__broken.up.sql": {Data: []byte("CREATE TABLE (;")},
	})
	m.Initialize()

	if err := m.Up(); err == nil {
		t.Fatal("Up() should fail on invalid SQL")
	}
	if v, _ := m.CurrentVersion(); v != 0 {
		t.Errorf("CurrentVersion() = %d, want 0", v)
	}
}

// TestDown verifies rollback of the latest migration.
func TestDown(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db)
	m.Initialize()
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	if err := m.Down(); err != nil {
		t.Fatalf("Down() failed: %v", err)
	}

	v, _ := m.CurrentVersion()
	if v != 2 {
		t.Errorf("CurrentVersion() = %d, want 2", v)
	}
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='session_kv'").Scan(&name)
	if err != sql.ErrNoRows {
		t.Errorf("session_kv should be dropped, got err=%v", err)
	}
}

// TestDown_nothingApplied verifies Down fails with no migrations.
func TestDown_nothingApplied(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db)
	m.Initialize()

	if err := m.Down(); err == nil {
		t.Error("Down() should fail with no applied migrations")
	}
}
