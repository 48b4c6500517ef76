// Package config loads pleno.yaml. Every field has a default, so a missing
// file or an empty document is a valid configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"pleno/audit/internal/graph"
	"pleno/audit/internal/store"
)

// Environment overrides, applied after the file is read
const (
	EnvConfig   = "PLENO_CONFIG"
	EnvDB       = "PLENO_DB"
	EnvStore    = "PLENO_STORE"
	EnvRedisURL = "PLENO_REDIS_URL"
)

// Config is the root of pleno.yaml
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Watch    WatchConfig    `yaml:"watch"`
}

// LogConfig selects the zap preset and level
type LogConfig struct {
	Level       string `yaml:"level,omitempty"` // debug, info, warn, error
	Development bool   `yaml:"development,omitempty"`
}

// StoreConfig selects where snapshots are kept
type StoreConfig struct {
	Backend string      `yaml:"backend,omitempty"` // sqlite, redis or file
	Path    string      `yaml:"path,omitempty"`    // sqlite file; discovered when empty
	Dir     string      `yaml:"dir,omitempty"`     // file backend directory
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis backend
type RedisConfig struct {
	URL       string `yaml:"url,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// TTL expires snapshots. Format: Go duration string (e.g., "720h"). Empty keeps them.
	TTL string `yaml:"ttl,omitempty"`
}

// AnalysisConfig bounds the graph analyses
type AnalysisConfig struct {
	MaxPathDepth int   `yaml:"max_path_depth,omitempty"`
	PathLimit    int   `yaml:"path_limit,omitempty"`
	HubThreshold int   `yaml:"hub_threshold,omitempty"`
	TopN         int   `yaml:"top_n,omitempty"`
	StaleDays    int64 `yaml:"stale_days,omitempty"`
	RecentDays   int64 `yaml:"recent_days,omitempty"`
}

// WatchConfig configures the periodic rebuild loop
type WatchConfig struct {
	// Interval between cycles. Format: Go duration string (e.g., "5m").
	Interval     string `yaml:"interval,omitempty"`
	SnapshotName string `yaml:"snapshot_name,omitempty"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path, fills defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	c.applyDefaults()
	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = store.BackendSQLite
	}
	if c.Store.Redis.URL == "" {
		c.Store.Redis.URL = "redis://localhost:6379"
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = "pleno"
	}
	a := &c.Analysis
	if a.MaxPathDepth <= 0 {
		a.MaxPathDepth = graph.DefaultMaxPathDepth
	}
	if a.PathLimit <= 0 {
		a.PathLimit = graph.DefaultPathLimit
	}
	d := graph.DefaultConfig()
	if a.HubThreshold <= 0 {
		a.HubThreshold = d.HubThreshold
	}
	if a.TopN <= 0 {
		a.TopN = d.TopN
	}
	if a.StaleDays <= 0 {
		a.StaleDays = d.StaleDays
	}
	if a.RecentDays <= 0 {
		a.RecentDays = d.RecentDays
	}
	if c.Watch.Interval == "" {
		c.Watch.Interval = "5m"
	}
	if c.Watch.SnapshotName == "" {
		c.Watch.SnapshotName = "default"
	}
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDB); ok && v != "" {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvStore); ok && v != "" {
		c.Store.Backend = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Store.Redis.URL = v
	}
}

// Validate checks enumerations and duration strings
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case store.BackendSQLite, store.BackendRedis, store.BackendFile:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.Backend == store.BackendFile && c.Store.Dir == "" {
		errs = append(errs, fmt.Errorf("store.dir: required for the file backend"))
	}
	if c.Analysis.MaxPathDepth > graph.MaxPathDepthLimit {
		errs = append(errs, fmt.Errorf("analysis.max_path_depth: at most %d, got %d",
			graph.MaxPathDepthLimit, c.Analysis.MaxPathDepth))
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Store.Redis.TTL != "" {
		if _, err := time.ParseDuration(c.Store.Redis.TTL); err != nil {
			errs = append(errs, fmt.Errorf("store.redis.ttl: %w", err))
		}
	}
	if d, err := time.ParseDuration(c.Watch.Interval); err != nil {
		errs = append(errs, fmt.Errorf("watch.interval: %w", err))
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("watch.interval: must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Logger builds a zap logger from the log section
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// Options converts the store section into store.Options
func (s StoreConfig) Options(logger *zap.Logger) store.Options {
	ttl, _ := time.ParseDuration(s.Redis.TTL)
	return store.Options{
		Backend: s.Backend,
		Path:    s.Path,
		Dir:     s.Dir,
		Redis: store.RedisOptions{
			URL:       s.Redis.URL,
			KeyPrefix: s.Redis.KeyPrefix,
			TTL:       ttl,
		},
		Logger: logger,
	}
}

// AnalyzerConfig converts the analysis section into graph parameters
func (a AnalysisConfig) AnalyzerConfig() *graph.AnalyzerConfig {
	return &graph.AnalyzerConfig{
		Paths: graph.PathOptions{
			MaxDepth:            a.MaxPathDepth,
			Limit:               a.PathLimit,
			SensitiveMultiplier: graph.SensitiveExfilMultiplier,
		},
		HubThreshold: a.HubThreshold,
		TopN:         a.TopN,
		StaleDays:    a.StaleDays,
		RecentDays:   a.RecentDays,
	}
}

// GetInterval returns the watch interval, or five minutes if unset or invalid
func (w WatchConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(w.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
