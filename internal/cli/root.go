// Package cli implements instrumentsctl's cobra subcommands: inspecting
// registered estimators and strategies, forcing a save/restore, printing
// the last chooser decision, and tailing the supplemental decision log.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tutu-network/instruments/internal/api"
	"github.com/tutu-network/instruments/internal/infra/config"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to instrumentsd's TOML config")
}

var rootCmd = &cobra.Command{
	Use:   "instrumentsctl",
	Short: "Inspect and drive the uncertainty-aware strategy evaluation engine",
	Long: `instrumentsctl talks to the same configuration instrumentsd runs from:
it builds the estimator registry and strategy sets locally to inspect them,
and drives the chooser directly for one-off decisions.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".instruments/config.toml"
	}
	return filepath.Join(home, ".instruments", "config.toml")
}

// loadApp builds an App from the --config flag, falling back to
// defaults if the file does not exist so instrumentsctl is usable before
// any config has been written.
func loadApp() (*api.App, error) {
	var cfg config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	app, err := api.NewApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("build app: %w", err)
	}
	if err := app.Restore(); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return app, nil
}
