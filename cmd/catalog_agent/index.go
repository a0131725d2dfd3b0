package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/observability"
	"github.com/jonathan/catalog-sync/internal/pipeline"
	"github.com/jonathan/catalog-sync/internal/search"
	"github.com/jonathan/catalog-sync/internal/snapshot"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Publish active products to the search index",
	Long: `Clears the search index and fills it with every active product from the database, or
with the products of a snapshot file when --from-snapshot is set.

Use --save-key to store ALGOLIA_API_KEY in the OS keyring for the configured app ID.`,
	RunE: runIndex,
}

var (
	indexFromSnapshot bool
	indexSaveKey      bool
)

func init() {
	indexCmd.Flags().StringP("snapshot", "i", "", "Snapshot path used with --from-snapshot")
	indexCmd.Flags().BoolVar(&indexFromSnapshot, "from-snapshot", false, "Index a snapshot file instead of the database")
	indexCmd.Flags().BoolVar(&indexSaveKey, "save-key", false, "Save ALGOLIA_API_KEY to the OS keyring and exit")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if indexSaveKey {
		return saveSearchKey(cmd)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	idx, err := newSearchIndex(cfg)
	if err != nil {
		return err
	}
	if idx == nil {
		return errors.New("search is not configured: set ALGOLIA_APP_ID and ALGOLIA_API_KEY")
	}

	records, err := loadRecords(ctx, cfg)
	if err != nil {
		return err
	}

	res, err := pipeline.Index(ctx, pipeline.Deps{Index: idx, Logger: slog.Default()}, records)
	observability.NewPrinter(cmd.OutOrStdout()).PrintSyncResult(res)
	return err
}

func loadRecords(ctx context.Context, cfg *config.Config) ([]search.Record, error) {
	if indexFromSnapshot {
		snap, err := snapshot.Load(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		return search.RecordsFromSnapshot(snap), nil
	}

	database, err := connectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	products, err := database.ActiveProducts(ctx)
	if err != nil {
		return nil, err
	}
	list, err := database.ListSellers(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Seller, len(list))
	for i := range list {
		byID[list[i].ID] = &list[i]
	}
	return search.Records(products, byID), nil
}

// saveSearchKey reads the key from the environment so it never appears in
// shell history.
func saveSearchKey(cmd *cobra.Command) error {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv()

	key := os.Getenv("ALGOLIA_API_KEY")
	if err := config.StoreSearchAPIKey(cfg.AlgoliaAppID, key); err != nil {
		return fmt.Errorf("failed to save search API key: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved search API key for app %s to the OS keyring\n", cfg.AlgoliaAppID)
	return nil
}
