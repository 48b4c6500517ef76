package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// KeyPrefix namespaces every key; defaults to "pleno"
	KeyPrefix string

	// TTL expires snapshots after the given duration; zero keeps them
	TTL time.Duration

	TLS            *tls.Config
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// RedisStore keeps each snapshot in a hash and indexes ids in sorted sets
// scored by creation time
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "pleno"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: opts.KeyPrefix, ttl: opts.TTL}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) snapshotKey(id string) string { return s.prefix + ":snapshot:" + id }
func (s *RedisStore) allKey() string { return s.prefix + ":snapshots" }
func (s *RedisStore) nameKey(name string) string { return s.prefix + ":snapshots:" + name }

// Save writes the snapshot hash and indexes it, in one transaction
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) (Snapshot, error) {
	snap = prepare(snap)
	key := s.snapshotKey(snap.ID)
	score := float64(snap.CreatedAt)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"name":      snap.Name,
			"createdAt": snap.CreatedAt,
			"nodeCount": snap.NodeCount,
			"edgeCount": snap.EdgeCount,
			"payload":   snap.Payload,
		})
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: snap.ID})
		pipe.ZAdd(ctx, s.nameKey(snap.Name), redis.Z{Score: score, Member: snap.ID})
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("saving snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

// Get returns the snapshot with the given id
func (s *RedisStore) Get(ctx context.Context, id string) (Snapshot, error) {
	return s.load(ctx, id, true)
}

// Latest returns the newest snapshot with the given name
func (s *RedisStore) Latest(ctx context.Context, name string) (Snapshot, error) {
	snaps, err := s.scan(ctx, s.nameKey(name), 1, nil)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return s.Get(ctx, snaps[0].ID)
}

// List returns snapshot headers, newest first. An empty name lists all.
func (s *RedisStore) List(ctx context.Context, name string, limit int) ([]Snapshot, error) {
	key := s.allKey()
	if name != "" {
		key = s.nameKey(name)
	}
	return s.scan(ctx, key, limit, nil)
}

// FindByPrefix returns snapshot headers whose id starts with prefix
func (s *RedisStore) FindByPrefix(ctx context.Context, prefix string, limit int) ([]Snapshot, error) {
	return s.scan(ctx, s.allKey(), limit, func(id string) bool {
		return strings.HasPrefix(id, prefix)
	})
}

// scan walks an index newest first, dropping ids whose hash has expired
func (s *RedisStore) scan(ctx context.Context, index string, limit int, keep func(string) bool) ([]Snapshot, error) {
	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", index, err)
	}
	snaps := []Snapshot{}
	for _, id := range ids {
		if keep != nil && !keep(id) {
			continue
		}
		snap, err := s.load(ctx, id, false)
		if errors.Is(err, ErrNotFound) {
			s.client.ZRem(ctx, index, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
		if limit > 0 && len(snaps) >= limit {
			break
		}
	}
	newestFirst(snaps)
	return snaps, nil
}

func (s *RedisStore) load(ctx context.Context, id string, withPayload bool) (Snapshot, error) {
	fields := []string{"name", "createdAt", "nodeCount", "edgeCount"}
	if withPayload {
		fields = append(fields, "payload")
	}
	vals, err := s.client.HMGet(ctx, s.snapshotKey(id), fields...).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading snapshot %s: %w", id, err)
	}
	if vals[0] == nil {
		return Snapshot{}, ErrNotFound
	}

	snap := Snapshot{ID: id, Name: asString(vals[0])}
	if snap.CreatedAt, err = strconv.ParseInt(asString(vals[1]), 10, 64); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %s: bad createdAt: %w", id, err)
	}
	snap.NodeCount, _ = strconv.Atoi(asString(vals[2]))
	snap.EdgeCount, _ = strconv.Atoi(asString(vals[3]))
	if withPayload {
		snap.Payload = asString(vals[4])
	}
	return snap, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
