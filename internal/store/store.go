// Package store persists serialized graph snapshots. Only the payload written
// by graph.Serialize is kept; stats are always re-derived on load.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no snapshot matches
	ErrNotFound = errors.New("snapshot not found")

	// ErrAmbiguous is returned when a reference prefix matches several snapshots
	ErrAmbiguous = errors.New("ambiguous snapshot reference")
)

// Snapshot is one saved graph. NodeCount and EdgeCount are informational,
// recorded at save time for listings.
type Snapshot struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"` // Unix millis
	NodeCount int    `json:"nodeCount"`
	EdgeCount int    `json:"edgeCount"`
	Payload   string `json:"payload,omitempty"`
}

// Store saves and loads snapshots. List and FindByPrefix return snapshots
// newest first without their payloads.
type Store interface {
	Save(ctx context.Context, snap Snapshot) (Snapshot, error)
	Get(ctx context.Context, id string) (Snapshot, error)
	Latest(ctx context.Context, name string) (Snapshot, error)
	List(ctx context.Context, name string, limit int) ([]Snapshot, error)
	FindByPrefix(ctx context.Context, prefix string, limit int) ([]Snapshot, error)
	Close() error
}

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendFile   = "file"
)

// Options selects and configures a backend
type Options struct {
	Backend string
	Path    string // sqlite database file
	Dir     string // file backend directory
	Redis   RedisOptions
	Logger  *zap.Logger
}

// Open creates the store named by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case BackendSQLite, "":
		s, err = OpenSQLite(opts.Path)
	case BackendRedis:
		s, err = NewRedisStore(ctx, opts.Redis)
	case BackendFile:
		s, err = NewFileStore(opts.Dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug("opened snapshot store", zap.String("backend", opts.Backend))
	return s, nil
}

// Resolve finds a snapshot by full id or unique id prefix
func Resolve(ctx context.Context, s Store, reference string) (Snapshot, error) {
	snap, err := s.Get(ctx, reference)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Snapshot{}, err
	}

	matches, err := s.FindByPrefix(ctx, reference, 10)
	if err != nil {
		return Snapshot{}, err
	}
	switch len(matches) {
	case 0:
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, reference)
	case 1:
		return s.Get(ctx, matches[0].ID)
	default:
		lines := make([]string, len(matches))
		for i, m := range matches {
			lines[i] = fmt.Sprintf("  %s %s", shortID(m.ID), m.Name)
		}
		return Snapshot{}, fmt.Errorf("%w '%s'. %d matches:\n%s",
			ErrAmbiguous, reference, len(matches), strings.Join(lines, "\n"))
	}
}

// prepare fills in the id and creation time of a snapshot being saved
func prepare(snap Snapshot) Snapshot {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt == 0 {
		snap.CreatedAt = time.Now().UnixMilli()
	}
	return snap
}

// newestFirst orders snapshots by creation time, then id
func newestFirst(snaps []Snapshot) {
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt != snaps[j].CreatedAt {
			return snaps[i].CreatedAt > snaps[j].CreatedAt
		}
		return snaps[i].ID > snaps[j].ID
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
