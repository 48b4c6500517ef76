package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	node_count INTEGER NOT NULL DEFAULT 0,
	edge_count INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_name_created ON snapshots(name, created_at DESC);
`

// SQLiteStore keeps snapshots in a single SQLite table
type SQLiteStore struct {
	conn *sql.DB
	Path string
}

// OpenSQLite opens (or creates) a SQLite snapshot database with WAL mode enabled
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("opening database: empty path")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer at a time; also keeps a ":memory:" database on a single connection
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{conn: conn, Path: path}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Save inserts a snapshot, assigning an id and timestamp when missing
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) (Snapshot, error) {
	snap = prepare(snap)
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO snapshots (id, name, created_at, node_count, edge_count, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Name, snap.CreatedAt, snap.NodeCount, snap.EdgeCount, snap.Payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// Get returns the snapshot with the given id
func (s *SQLiteStore) Get(ctx context.Context, id string) (Snapshot, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, created_at, node_count, edge_count, payload
		FROM snapshots WHERE id = ?
	`, id)
	return scanFull(row)
}

// Latest returns the newest snapshot with the given name
func (s *SQLiteStore) Latest(ctx context.Context, name string) (Snapshot, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, name, created_at, node_count, edge_count, payload
		FROM snapshots WHERE name = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, name)
	return scanFull(row)
}

// List returns snapshot headers, newest first. An empty name lists all.
func (s *SQLiteStore) List(ctx context.Context, name string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, created_at, node_count, edge_count
		FROM snapshots WHERE (? = '' OR name = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, name, name, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return scanHeaders(rows)
}

// FindByPrefix returns snapshot headers whose id starts with prefix
func (s *SQLiteStore) FindByPrefix(ctx context.Context, prefix string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, name, created_at, node_count, edge_count
		FROM snapshots WHERE substr(id, 1, ?) = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, len(prefix), prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("searching snapshots: %w", err)
	}
	return scanHeaders(rows)
}

func scanFull(row *sql.Row) (Snapshot, error) {
	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.Name, &snap.CreatedAt, &snap.NodeCount, &snap.EdgeCount, &snap.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return snap, nil
}

func scanHeaders(rows *sql.Rows) ([]Snapshot, error) {
	defer rows.Close()
	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Name, &snap.CreatedAt, &snap.NodeCount, &snap.EdgeCount); err != nil {
			return nil, fmt.Errorf("reading snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
