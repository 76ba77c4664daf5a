// Package config loads offline-layer configuration from a TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultQuotaBytes is the conservative storage budget assumed when the
// platform reports nothing better. Historically as low as 50MB on one
// major mobile browser, so that is the floor we plan for.
const DefaultQuotaBytes = 50 * 1024 * 1024

// AppContext scopes every sync request to a company, site, user and
// device. It is injected explicitly; there are no ambient globals.
type AppContext struct {
	CompanyID string `toml:"company_id"`
	SiteID    string `toml:"site_id"`
	UserID    string `toml:"user_id"`
	DeviceID  string `toml:"device_id"`
}

// Config holds all offline-layer settings.
type Config struct {
	DataDir string `toml:"data_dir"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Storage struct {
		QuotaBytes      int64   `toml:"quota_bytes"`
		WarningPercent  float64 `toml:"warning_percent"`
		CriticalPercent float64 `toml:"critical_percent"`
		// MaxEvictionPasses bounds an eviction run so a pathological
		// quota state cannot spin.
		MaxEvictionPasses int `toml:"max_eviction_passes"`
		// CriticalKeyPrefixes mark cache keys that must survive eviction
		// before expiry (current-shift attendance, current profile).
		CriticalKeyPrefixes []string `toml:"critical_key_prefixes"`
		// LowPriorityModules are evicted first under pressure.
		LowPriorityModules []string `toml:"low_priority_modules"`
	} `toml:"storage"`

	Sync struct {
		BaseURL        string        `toml:"base_url"`
		PushEndpoint   string        `toml:"push_endpoint"` // websocket notify channel, probed
		PollInterval   time.Duration `toml:"poll_interval"`
		RequestTimeout time.Duration `toml:"request_timeout"`
		RetryBudget    int           `toml:"retry_budget"`
	} `toml:"sync"`

	Context AppContext `toml:"context"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.DataDir = defaultDataDir()
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Storage.QuotaBytes = DefaultQuotaBytes
	cfg.Storage.WarningPercent = 50
	cfg.Storage.CriticalPercent = 80
	cfg.Storage.MaxEvictionPasses = 3
	cfg.Storage.CriticalKeyPrefixes = []string{"attendance:current-shift", "profile:current"}
	cfg.Storage.LowPriorityModules = []string{"msgly", "assetly", "testing"}
	cfg.Sync.PollInterval = 30 * time.Second
	cfg.Sync.RequestTimeout = 20 * time.Second
	cfg.Sync.RetryBudget = 5
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opsly"
	}
	return filepath.Join(home, ".opsly")
}

// Path returns the default config file location (~/.opsly/offline.toml).
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".opsly", "offline.toml"), nil
}

// Load reads configuration from path, applies env overrides, and
// validates. A missing file is not an error: defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnv overrides config fields from OPSLY_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPSLY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OPSLY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OPSLY_SYNC_URL"); v != "" {
		cfg.Sync.BaseURL = v
	}
	if v := os.Getenv("OPSLY_PUSH_ENDPOINT"); v != "" {
		cfg.Sync.PushEndpoint = v
	}
	if v := os.Getenv("OPSLY_QUOTA_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Storage.QuotaBytes = n
		}
	}
	if v := os.Getenv("OPSLY_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Sync.PollInterval = d
		}
	}
}

// Validate checks invariants that the rest of the layer relies on.
func (c *Config) Validate() error {
	if c.Storage.QuotaBytes <= 0 {
		return fmt.Errorf("storage.quota_bytes must be positive")
	}
	if c.Storage.WarningPercent <= 0 || c.Storage.WarningPercent >= 100 {
		return fmt.Errorf("storage.warning_percent must be in (0, 100)")
	}
	if c.Storage.CriticalPercent <= c.Storage.WarningPercent || c.Storage.CriticalPercent > 100 {
		return fmt.Errorf("storage.critical_percent must be in (warning_percent, 100]")
	}
	if c.Storage.MaxEvictionPasses < 1 {
		return fmt.Errorf("storage.max_eviction_passes must be at least 1")
	}
	if c.Sync.PollInterval < time.Second {
		return fmt.Errorf("sync.poll_interval must be at least 1s")
	}
	if c.Sync.RetryBudget < 1 {
		return fmt.Errorf("sync.retry_budget must be at least 1")
	}
	return nil
}
