package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"pleno/audit/internal/config"
	"pleno/audit/internal/cycle"
	"pleno/audit/internal/store"
)

const (
	dbFileName     = ".pleno.db"
	configFileName = "pleno.yaml"
)

var (
	configPath   string
	dbPath       string
	storeBackend string
	verbose      bool
)

// Populated by PersistentPreRunE for every subcommand
var (
	cfg            *config.Config
	logger         = zap.NewNop()
	tracerProvider *sdktrace.TracerProvider
)

var rootCmd = &cobra.Command{
	Use:           "pleno-audit",
	Short:         "Security knowledge graph over browser telemetry",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if verbose {
			c.Log.Level = "debug"
			c.Log.Development = true
		}
		l, err := c.Log.Logger()
		if err != nil {
			return err
		}
		cfg, logger = c, l
		tracerProvider = cycle.NewTracerProvider(logger)
		otel.SetTracerProvider(tracerProvider)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if tracerProvider != nil {
			_ = tracerProvider.Shutdown(context.Background())
		}
		_ = logger.Sync()
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to pleno.yaml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the .pleno.db snapshot database")
	rootCmd.PersistentFlags().StringVar(&storeBackend, "store", "", "Snapshot backend: sqlite, redis or file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging, including trace spans")
}

// loadConfig reads the config file using priority: flag > env > ./pleno.yaml
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	if path == "" {
		if _, err := os.Stat(configFileName); err == nil {
			path = configFileName
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if storeBackend != "" {
		c.Store.Backend = storeBackend
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DiscoverDB finds the database path using priority: env > flag > config >
// walk-up > XDG fallback. The XDG location is created when nothing else is
// found, so a first run always has somewhere to save.
func DiscoverDB(configured string) (string, error) {
	// 1. Environment variable
	if envPath := os.Getenv(config.EnvDB); envPath != "" {
		return envPath, nil
	}

	// 2. CLI flag
	if dbPath != "" {
		return dbPath, nil
	}

	// 3. Config file
	if configured != "" {
		return configured, nil
	}

	// 4. Walk up from CWD
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, dbFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 5. XDG fallback
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no %s found and no home directory: %w", dbFileName, err)
	}
	dataDir := filepath.Join(home, ".local", "share", "pleno")
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "pleno")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	return filepath.Join(dataDir, "pleno.db"), nil
}

// OpenStore opens the configured snapshot backend
func OpenStore(ctx context.Context) (store.Store, error) {
	opts := cfg.Store.Options(logger)
	if opts.Backend == store.BackendSQLite || opts.Backend == "" {
		path, err := DiscoverDB(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		opts.Path = path
	}
	return store.Open(ctx, opts)
}
