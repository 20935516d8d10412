package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on kv(user_id, updated_at)
const currentSchemaVersion = 1

// SQLiteBackend stores per-user JSON documents in a single SQLite table.
// Uses WAL mode for concurrent read access.
type SQLiteBackend struct {
	db    *sql.DB
	quota int
}

// OpenSQLite creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// quotaBytes limits the total stored value bytes per user; zero disables
// the limit.
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string, quotaBytes int) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %v", ErrUnavailable, err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{db: db, quota: quotaBytes}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Backend methods when available.
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

// Put implements Backend. The quota check and the upsert run in one
// transaction so a rejected write leaves the previous value untouched.
func (b *SQLiteBackend) Put(ctx context.Context, user, key string, value []byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put %s: begin tx: %w", key, err)
	}
	defer tx.Rollback() // No-op if committed

	if b.quota > 0 {
		var used int64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(LENGTH(value)), 0) FROM kv
			WHERE user_id = ? AND key <> ?
		`, user, key).Scan(&used)
		if err != nil {
			return fmt.Errorf("put %s: measure usage: %w", key, err)
		}
		if used+int64(len(value)) > int64(b.quota) {
			return fmt.Errorf("put %s: %w (%d + %d > %d bytes)", key, ErrQuotaExceeded, used, len(value), b.quota)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (user_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, user, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put %s: commit: %w", key, err)
	}
	return nil
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, user, key string) ([]byte, bool, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, `
		SELECT value FROM kv WHERE user_id = ? AND key = ?
	`, user, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, user, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE user_id = ? AND key = ?`, user, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteAll implements Backend.
func (b *SQLiteBackend) DeleteAll(ctx context.Context, user string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE user_id = ?`, user); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the per-user recency index used by diagnostics.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_kv_user_updated
		ON kv(user_id, updated_at)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (b *SQLiteBackend) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := b.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
