package main

import (
	"fmt"
	"log/slog"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/spf13/cobra"
)

// loadConfig merges defaults, the --config file, the environment, the OS
// keyring and explicitly set flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
		slog.Debug("loaded config", slog.String("path", configPath))
	}

	cfg.ApplyEnv()
	merged := cfg.MergeWithDefaults(config.Default())

	flags := cmd.Flags()
	if flags.Changed("db-url") {
		merged.DatabaseURL = databaseURL
	}
	if flags.Changed("verbose") {
		merged.Verbose = verbose
	}
	if flags.Changed("snapshot") {
		merged.SnapshotPath, _ = flags.GetString("snapshot")
	}
	if flags.Changed("csv") {
		merged.SellersCSV, _ = flags.GetString("csv")
	}
	if flags.Changed("use-browser") {
		merged.UseBrowser, _ = flags.GetBool("use-browser")
	}
	if flags.Changed("addr") {
		merged.ServerAddr, _ = flags.GetString("addr")
	}
	if flags.Changed("schedule") {
		merged.Schedule, _ = flags.GetString("schedule")
	}

	if merged.Verbose && !verbose {
		slog.SetDefault(newLogger(true))
	}

	merged.ResolveSecrets()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

func requireDatabaseURL(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	return nil
}
