package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"pleno/audit/internal/graph"
	"pleno/audit/internal/store"
)

func noEnv(string) (string, bool) { return "", false }

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pleno.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, store.BackendSQLite, c.Store.Backend)
	assert.Equal(t, graph.DefaultMaxPathDepth, c.Analysis.MaxPathDepth)
	assert.Equal(t, graph.DefaultPathLimit, c.Analysis.PathLimit)
	assert.Equal(t, 5*time.Minute, c.Watch.GetInterval())
	assert.NoError(t, c.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvDB, "")
	t.Setenv(EnvStore, "")
	t.Setenv(EnvRedisURL, "")

	path := writeConfig(t, `
log:
  level: debug
  development: true
store:
  backend: redis
  redis:
    url: redis://cache:6379/2
    ttl: 720h
analysis:
  max_path_depth: 5
  stale_days: 14
watch:
  interval: 30s
  snapshot_name: laptop
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Log.Level)
	assert.True(t, c.Log.Development)
	assert.Equal(t, store.BackendRedis, c.Store.Backend)
	assert.Equal(t, "redis://cache:6379/2", c.Store.Redis.URL)
	assert.Equal(t, "pleno", c.Store.Redis.KeyPrefix, "unset fields keep defaults")
	assert.Equal(t, 5, c.Analysis.MaxPathDepth)
	assert.Equal(t, graph.DefaultPathLimit, c.Analysis.PathLimit)
	assert.Equal(t, int64(14), c.Analysis.StaleDays)
	assert.Equal(t, 30*time.Second, c.Watch.GetInterval())
	assert.Equal(t, "laptop", c.Watch.SnapshotName)

	opts := c.Store.Options(nil)
	assert.Equal(t, 720*time.Hour, opts.Redis.TTL)

	ac := c.Analysis.AnalyzerConfig()
	assert.Equal(t, 5, ac.Paths.MaxDepth)
	assert.Equal(t, graph.SensitiveExfilMultiplier, ac.Paths.SensitiveMultiplier)
}

func TestLoad_EmptyPath(t *testing.T) {
	t.Setenv(EnvDB, "")
	t.Setenv(EnvStore, "")
	t.Setenv(EnvRedisURL, "")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	_, err = Load(writeConfig(t, "log: [unclosed"))
	assert.ErrorContains(t, err, "parsing config file")

	_, err = Load(writeConfig(t, "store:\n  backend: etcd\n"))
	assert.ErrorContains(t, err, "store.backend")

	_, err = Load(writeConfig(t, "analysis:\n  max_path_depth: 40\n"))
	assert.ErrorContains(t, err, "analysis.max_path_depth")
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		EnvDB:       "/tmp/pleno.db",
		EnvStore:    "redis",
		EnvRedisURL: "redis://other:6379",
	}
	c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	assert.Equal(t, "/tmp/pleno.db", c.Store.Path)
	assert.Equal(t, "redis", c.Store.Backend)
	assert.Equal(t, "redis://other:6379", c.Store.Redis.URL)

	before := *c
	c.ApplyEnv(noEnv)
	assert.Equal(t, before, *c)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad level":     func(c *Config) { c.Log.Level = "loud" },
		"bad ttl":       func(c *Config) { c.Store.Redis.TTL = "forever" },
		"bad interval":  func(c *Config) { c.Watch.Interval = "soon" },
		"zero interval": func(c *Config) { c.Watch.Interval = "0s" },
		"file no dir":   func(c *Config) { c.Store.Backend = store.BackendFile },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLogger(t *testing.T) {
	logger, err := LogConfig{Level: "warn"}.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = LogConfig{Level: "loud"}.Logger()
	assert.Error(t, err)
}
