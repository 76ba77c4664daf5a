// offlinectl inspects and operates a local offline store: pending
// writes, storage usage, conflicts, and one-shot sync drains. It
// exists for support staff and for poking a device image pulled off a
// misbehaving terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	offline "github.com/opsly/offline"
	"github.com/opsly/offline/internal/config"
	"github.com/opsly/offline/internal/sync/conflict"
)

var (
	cfgPath string
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "offlinectl",
	Short: "Inspect and operate the Opsly offline data layer",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the store's data directory")
}

// loadConfig resolves the effective configuration for this invocation.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	// CLI runs want readable output, not the app's JSON stream.
	cfg.Log.Format = "text"
	return cfg, nil
}

// openClient builds a Client for a one-shot command. The connectivity
// monitor is never started; commands act on the store directly.
func openClient() (*offline.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := offline.New(cfg, conflict.LogNotifier{})
	if err != nil {
		return nil, err
	}
	if !client.Persistent() {
		client.Close()
		return nil, fmt.Errorf("no store at %s", cfg.DataDir)
	}
	return client, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
