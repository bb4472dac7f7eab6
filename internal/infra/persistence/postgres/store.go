// Package postgres persists state entries in PostgreSQL through the pgx
// database/sql driver. Payloads are stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"mfestate/pkg/domain"
)

var _ domain.Persister = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/mfestate?sslmode=disable"
)

// Statements issued against the entries table. Exported for fakes that need
// to recognise them.
const (
	CreateTableSQL = `CREATE TABLE IF NOT EXISTS state_entries (
	state_key TEXT PRIMARY KEY,
	payload JSONB NOT NULL
)`
	SelectPrefixSQL = `SELECT state_key, payload FROM state_entries WHERE starts_with(state_key, $1) ORDER BY state_key`
	UpsertSQL       = `INSERT INTO state_entries(state_key, payload) VALUES($1, $2) ON CONFLICT(state_key) DO UPDATE SET payload = EXCLUDED.payload`
	DeleteKeySQL    = `DELETE FROM state_entries WHERE state_key = $1`
	DeletePrefixSQL = `DELETE FROM state_entries WHERE starts_with(state_key, $1)`
)

// Store keeps one row per prefixed key in the state_entries table.
type Store struct {
	db *sql.DB
}

// NewStore dials dsn (defaultDSN when empty) and prepares the entries table.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store, err := FromDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// FromDB wraps an already opened handle. The store owns db afterwards and
// closes it on Close.
func FromDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, CreateTableSQL); err != nil {
		return nil, fmt.Errorf("ensure state_entries table: %w", err)
	}
	return &Store{db: db}, nil
}

// Entries returns every entry whose key starts with prefix, ordered by key.
func (s *Store) Entries(ctx context.Context, prefix string) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, SelectPrefixSQL, prefix)
	if err != nil {
		return nil, fmt.Errorf("select state_entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.Key, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan state_entries: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state_entries: %w", err)
	}
	return out, nil
}

// Save upserts the entry for key. payload must be valid JSON.
func (s *Store) Save(ctx context.Context, key string, payload []byte) error {
	return s.exec(ctx, "upsert "+key, UpsertSQL, key, string(payload))
}

// Remove deletes the entry for key.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.exec(ctx, "delete "+key, DeleteKeySQL, key)
}

// Clear deletes every entry whose key starts with prefix.
func (s *Store) Clear(ctx context.Context, prefix string) error {
	return s.exec(ctx, "clear "+prefix, DeletePrefixSQL, prefix)
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
