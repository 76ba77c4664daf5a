package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaults tests the default configuration values.
func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Storage.QuotaBytes != 50*1024*1024 {
		t.Errorf("Expected 50MiB default quota, got %d", cfg.Storage.QuotaBytes)
	}
	if cfg.Storage.WarningPercent != 50 || cfg.Storage.CriticalPercent != 80 {
		t.Errorf("Expected 50/80 thresholds, got %v/%v",
			cfg.Storage.WarningPercent, cfg.Storage.CriticalPercent)
	}
	if cfg.Sync.PollInterval != 30*time.Second {
		t.Errorf("Expected 30s poll interval, got %s", cfg.Sync.PollInterval)
	}
	if cfg.Sync.RetryBudget != 5 {
		t.Errorf("Expected retry budget 5, got %d", cfg.Sync.RetryBudget)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

// TestLoadMissingFile tests that a missing config file yields defaults.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.QuotaBytes != DefaultQuotaBytes {
		t.Errorf("Expected default quota, got %d", cfg.Storage.QuotaBytes)
	}
}

// TestLoadFile tests TOML parsing over defaults.
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offline.toml")
	content := `
data_dir = "/var/lib/opsly"

[storage]
quota_bytes = 104857600

[sync]
base_url = "https://api.example.test"
retry_budget = 3

[context]
company_id = "co-9"
site_id = "site-9"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/opsly" {
		t.Errorf("Expected data dir from file, got %s", cfg.DataDir)
	}
	if cfg.Storage.QuotaBytes != 104857600 {
		t.Errorf("Expected 100MiB quota, got %d", cfg.Storage.QuotaBytes)
	}
	if cfg.Sync.BaseURL != "https://api.example.test" {
		t.Errorf("Expected base url from file, got %s", cfg.Sync.BaseURL)
	}
	if cfg.Sync.RetryBudget != 3 {
		t.Errorf("Expected retry budget 3, got %d", cfg.Sync.RetryBudget)
	}
	if cfg.Context.CompanyID != "co-9" || cfg.Context.SiteID != "site-9" {
		t.Errorf("Expected app context from file, got %+v", cfg.Context)
	}
	// Untouched sections keep their defaults.
	if cfg.Sync.PollInterval != 30*time.Second {
		t.Errorf("Expected default poll interval kept, got %s", cfg.Sync.PollInterval)
	}
}

// TestEnvOverrides tests OPSLY_* overrides on top of the file.
func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPSLY_DATA_DIR", "/tmp/opsly-env")
	t.Setenv("OPSLY_SYNC_URL", "https://env.example.test")
	t.Setenv("OPSLY_QUOTA_BYTES", "1048576")
	t.Setenv("OPSLY_POLL_INTERVAL", "10s")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir != "/tmp/opsly-env" {
		t.Errorf("Expected env data dir, got %s", cfg.DataDir)
	}
	if cfg.Sync.BaseURL != "https://env.example.test" {
		t.Errorf("Expected env sync url, got %s", cfg.Sync.BaseURL)
	}
	if cfg.Storage.QuotaBytes != 1048576 {
		t.Errorf("Expected env quota, got %d", cfg.Storage.QuotaBytes)
	}
	if cfg.Sync.PollInterval != 10*time.Second {
		t.Errorf("Expected env poll interval, got %s", cfg.Sync.PollInterval)
	}
}

// TestSaveRoundtrip tests Save then Load.
func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "offline.toml")
	cfg := Default()
	cfg.Sync.BaseURL = "https://rt.example.test"
	cfg.Context.DeviceID = "device-42"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Sync.BaseURL != "https://rt.example.test" {
		t.Errorf("Expected saved base url, got %s", loaded.Sync.BaseURL)
	}
	if loaded.Context.DeviceID != "device-42" {
		t.Errorf("Expected saved device id, got %s", loaded.Context.DeviceID)
	}
}

// TestValidate rejects configurations the layer cannot operate with.
func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quota", func(c *Config) { c.Storage.QuotaBytes = 0 }},
		{"warning out of range", func(c *Config) { c.Storage.WarningPercent = 100 }},
		{"critical below warning", func(c *Config) { c.Storage.CriticalPercent = 40 }},
		{"zero passes", func(c *Config) { c.Storage.MaxEvictionPasses = 0 }},
		{"sub-second poll", func(c *Config) { c.Sync.PollInterval = 100 * time.Millisecond }},
		{"zero retry budget", func(c *Config) { c.Sync.RetryBudget = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
