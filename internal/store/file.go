package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps each snapshot as a JSON file named after its id
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed snapshot store, creating dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Close is a no-op
func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", id))
}

// Save writes the snapshot atomically via a temp file and rename
func (s *FileStore) Save(_ context.Context, snap Snapshot) (Snapshot, error) {
	snap = prepare(snap)
	if strings.ContainsAny(snap.ID, `/\`) {
		return Snapshot{}, fmt.Errorf("invalid snapshot id %q", snap.ID)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(snap.ID)); err != nil {
		os.Remove(tmp.Name())
		return Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// Get loads the snapshot with the given id
func (s *FileStore) Get(_ context.Context, id string) (Snapshot, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return Snapshot{}, ErrNotFound
	}
	snap, err := loadSnapshot(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrNotFound
	}
	return snap, err
}

// Latest returns the newest snapshot with the given name
func (s *FileStore) Latest(ctx context.Context, name string) (Snapshot, error) {
	snaps, err := s.List(ctx, name, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return s.Get(ctx, snaps[0].ID)
}

// List returns snapshot headers, newest first. An empty name lists all.
func (s *FileStore) List(_ context.Context, name string, limit int) ([]Snapshot, error) {
	return s.collect(limit, func(snap Snapshot) bool {
		return name == "" || snap.Name == name
	})
}

// FindByPrefix returns snapshot headers whose id starts with prefix
func (s *FileStore) FindByPrefix(_ context.Context, prefix string, limit int) ([]Snapshot, error) {
	return s.collect(limit, func(snap Snapshot) bool {
		return strings.HasPrefix(snap.ID, prefix)
	})
}

func (s *FileStore) collect(limit int, keep func(Snapshot) bool) ([]Snapshot, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	snaps := []Snapshot{}
	for _, p := range paths {
		snap, err := loadSnapshot(p)
		if err != nil {
			return nil, err
		}
		if !keep(snap) {
			continue
		}
		snap.Payload = ""
		snaps = append(snaps, snap)
	}
	newestFirst(snaps)
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func loadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, nil
}
