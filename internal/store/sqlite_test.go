package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenSQLite_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	b, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer b.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		b, err := OpenSQLite(path, 0)
		if err != nil {
			t.Fatalf("OpenSQLite() iteration %d failed: %v", i, err)
		}
		b.Close()
	}

	b, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("final OpenSQLite() failed: %v", err)
	}
	defer b.Close()

	var name string
	err = b.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv'").Scan(&name)
	if err != nil {
		t.Errorf("table kv not found after idempotent opens: %v", err)
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/test.db", 0)
	if err == nil {
		t.Fatal("expected error for invalid path, got nil")
	}
}

func TestOpenSQLite_Pragmas(t *testing.T) {
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer b.Close()

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
	}
	for _, tt := range tests {
		if err := b.verifyPragma(tt.name, tt.expected); err != nil {
			t.Error(err)
		}
	}
}

func TestOpenSQLite_SchemaVersion(t *testing.T) {
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), 0)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	defer b.Close()

	var version int
	if err := b.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("query user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}

	var idx string
	err = b.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_kv_user_updated'").Scan(&idx)
	if err != nil {
		t.Errorf("index idx_kv_user_updated not found: %v", err)
	}
}

func TestSQLiteClose_NilDB(t *testing.T) {
	b := &SQLiteBackend{db: nil}
	if err := b.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestSQLite_DataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	b1, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	if err := b1.Put(ctx, "alice", KeyPendingSyncQueue, []byte(`[{"id":"c1"}]`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	b1.Close()

	b2, err := OpenSQLite(path, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b2.Close()

	got, ok, err := b2.Get(ctx, "alice", KeyPendingSyncQueue)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(got) != `[{"id":"c1"}]` {
		t.Errorf("Get() = %s", got)
	}
}
