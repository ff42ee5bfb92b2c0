// Package config holds the runtime configuration for the clipvault daemon.
// Values come from built-in defaults, then environment variables, then
// command-line flags (parsed in cmd/clipvault), in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full configuration surface consumed by the core. The
// settings layer that writes these values lives outside this repository;
// the core only reads them.
type Config struct {
	// DBPath is the SQLite database location.
	// Env: CLIPVAULT_DB_PATH
	DBPath string `env:"DB_PATH"`

	// ThumbCacheDir holds derived thumbnails, keyed by content hash.
	// Env: CLIPVAULT_THUMB_CACHE_DIR
	ThumbCacheDir string `env:"THUMB_CACHE_DIR"`

	// IconCacheDir holds fetched application icons, keyed by bundle ID.
	// Env: CLIPVAULT_ICON_CACHE_DIR
	IconCacheDir string `env:"ICON_CACHE_DIR"`

	// StorageBudget bounds the aggregate payload+thumbnail bytes kept in
	// the store. Oldest entries are evicted once the total exceeds it.
	// Env: CLIPVAULT_STORAGE_BUDGET
	StorageBudget int64 `env:"STORAGE_BUDGET"`

	// PollInterval is the clipboard polling period.
	// Env: CLIPVAULT_POLL_INTERVAL
	PollInterval time.Duration `env:"POLL_INTERVAL"`

	// APIPort is the local HTTP API port serving the UI layer.
	// Env: CLIPVAULT_API_PORT
	APIPort int `env:"API_PORT"`

	// PhoneRegion is the default region for phone-number detection.
	// Env: CLIPVAULT_PHONE_REGION
	PhoneRegion string `env:"PHONE_REGION"`

	// ExportEnabled turns on the markdown export collaborator.
	// Env: CLIPVAULT_EXPORT_ENABLED
	ExportEnabled bool `env:"EXPORT_ENABLED"`

	// ExportDir is where exported markdown notes are written.
	// Env: CLIPVAULT_EXPORT_DIR
	ExportDir string `env:"EXPORT_DIR"`

	// ExportInterval is the export ticker period.
	// Env: CLIPVAULT_EXPORT_INTERVAL
	ExportInterval time.Duration `env:"EXPORT_INTERVAL"`
}

const (
	// DefaultStorageBudget caps history at 2 GiB of payload+thumbnails.
	DefaultStorageBudget = int64(2) << 30

	// DefaultPollInterval balances capture latency against polling cost.
	DefaultPollInterval = 700 * time.Millisecond

	DefaultAPIPort        = 9890
	DefaultPhoneRegion    = "US"
	DefaultExportInterval = 5 * time.Minute
)

// Load builds the configuration from defaults and environment variables.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	baseDir := filepath.Join(homeDir, ".clipvault")
	cfg := &Config{
		DBPath:         filepath.Join(baseDir, "clipvault.db"),
		ThumbCacheDir:  filepath.Join(baseDir, "thumbs"),
		IconCacheDir:   filepath.Join(baseDir, "icons"),
		StorageBudget:  DefaultStorageBudget,
		PollInterval:   DefaultPollInterval,
		APIPort:        DefaultAPIPort,
		PhoneRegion:    DefaultPhoneRegion,
		ExportInterval: DefaultExportInterval,
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CLIPVAULT_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the core cannot run with.
func (c *Config) Validate() error {
	if c.StorageBudget <= 0 {
		return fmt.Errorf("storage budget must be positive, got %d", c.StorageBudget)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.ExportEnabled && c.ExportDir == "" {
		return fmt.Errorf("export enabled but no export directory configured")
	}
	return nil
}
