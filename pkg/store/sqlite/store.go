// Package sqlite persists catalog snapshots, the site boundary and placed
// houses in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/buildx/pkg/catalog"
	"github.com/chazu/buildx/pkg/houses"
	"github.com/chazu/buildx/pkg/site"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ catalog.SnapshotStore = (*Store)(nil)
	_ site.Persister        = (*Store)(nil)
	_ houses.Persister      = (*Store)(nil)
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_snapshots (
		key TEXT PRIMARY KEY,
		saved_at INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS site_boundary (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS houses (
		id TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
}

// Store is the SQLite-backed persistence for the application.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Parent directories are created for file paths.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "buildx.db"
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("sqlite: create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: SQLite serialises writers anyway, and each
	// connection to :memory: would otherwise see its own database.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadSnapshot implements catalog.SnapshotStore.
func (s *Store) LoadSnapshot(ctx context.Context, key string) ([]byte, time.Time, error) {
	var (
		payload []byte
		savedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, saved_at FROM catalog_snapshots WHERE key = ?`, key).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, catalog.ErrNoSnapshot
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("sqlite: load snapshot: %w", err)
	}
	return payload, time.Unix(0, savedAt), nil
}

// SaveSnapshot implements catalog.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, key string, payload []byte, savedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_snapshots (key, saved_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET saved_at = excluded.saved_at, payload = excluded.payload`,
		key, savedAt.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("sqlite: save snapshot: %w", err)
	}
	return nil
}

// LoadBoundary implements site.Persister.
func (s *Store) LoadBoundary(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM site_boundary WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, site.ErrNoBoundary
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load boundary: %w", err)
	}
	return payload, nil
}

// SaveBoundary implements site.Persister.
func (s *Store) SaveBoundary(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_boundary (key, payload) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload`,
		key, payload)
	if err != nil {
		return fmt.Errorf("sqlite: save boundary: %w", err)
	}
	return nil
}

// ListHouses implements houses.Persister. Houses come back in the order
// they were first saved.
func (s *Store) ListHouses(ctx context.Context) ([]houses.House, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM houses ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: select houses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []houses.House
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan house: %w", err)
		}
		var h houses.House
		if err := json.Unmarshal(payload, &h); err != nil {
			return nil, fmt.Errorf("sqlite: decode house %s: %w", id, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate houses: %w", err)
	}
	return out, nil
}

// SaveHouse implements houses.Persister.
func (s *Store) SaveHouse(ctx context.Context, h houses.House) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("sqlite: encode house %s: %w", h.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO houses (id, payload) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		h.ID, payload)
	if err != nil {
		return fmt.Errorf("sqlite: save house %s: %w", h.ID, err)
	}
	return nil
}

// DeleteHouse implements houses.Persister. Deleting a missing house is
// not an error.
func (s *Store) DeleteHouse(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM houses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete house %s: %w", id, err)
	}
	return nil
}
