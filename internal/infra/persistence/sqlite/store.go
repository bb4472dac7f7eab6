// Package sqlite persists state entries in an embedded SQLite database using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"mfestate/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Persister = (*Store)(nil)

const defaultPath = "mfestate.db"

// Store keeps one row per prefixed key in the state_entries table.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating when needed) the database at path. An empty path
// uses ./mfestate.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state_entries (
		state_key TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state_entries table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Entries returns every entry whose key starts with prefix, ordered by key.
func (s *Store) Entries(ctx context.Context, prefix string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_key, payload FROM state_entries WHERE substr(state_key, 1, length(?)) = ? ORDER BY state_key`,
		prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("select state_entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.Key, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state_entries: %w", err)
	}
	return out, nil
}

// Save upserts the entry for key.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO state_entries(state_key,payload) VALUES(?,?) ON CONFLICT(state_key) DO UPDATE SET payload=excluded.payload`,
		key, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Remove deletes the entry for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state_entries WHERE state_key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear deletes every entry whose key starts with prefix.
func (s *Store) Clear(ctx context.Context, prefix string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM state_entries WHERE substr(state_key, 1, length(?)) = ?`, prefix, prefix); err != nil {
		return fmt.Errorf("clear %s: %w", prefix, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
