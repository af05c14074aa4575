// Package persistence is the sqlite-backed durable store: session rows,
// the inquiry outcome audit trail, and account credentials.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// Schema ledger. Bump the version and checksum together on any change.
	schemaVersionLatest  = 2
	schemaChecksumLatest = "sr-v2-2026-07-accounts-table"
)

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.shopreply/shopreply.db.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "shopreply.db"
	}
	return filepath.Join(home, ".shopreply", "shopreply.db")
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the underlying handle for read-only queries (export).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = NORMAL;`,
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_meta (
		version INTEGER NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		account_ref TEXT NOT NULL,
		interval_minutes INTEGER NOT NULL,
		cron_expr TEXT NOT NULL DEFAULT '',
		channel_list TEXT NOT NULL,
		status TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		collected INTEGER NOT NULL DEFAULT 0,
		answered INTEGER NOT NULL DEFAULT 0,
		submitted INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		run_count INTEGER NOT NULL DEFAULT 0,
		last_run_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(is_active);

	CREATE TABLE IF NOT EXISTS inquiry_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		inquiry_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		sentiment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON inquiry_history(session_id, id);

	CREATE TABLE IF NOT EXISTS accounts (
		account_ref TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL,
		api_secret TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_meta WHERE version = ?`, schemaVersionLatest).Scan(&count); err != nil {
		return fmt.Errorf("read schema ledger: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_meta (version, checksum) VALUES (?, ?)`, schemaVersionLatest, schemaChecksumLatest); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}
