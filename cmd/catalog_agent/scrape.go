package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/crawling"
	"github.com/jonathan/catalog-sync/internal/observability"
	"github.com/jonathan/catalog-sync/internal/pipeline"
	"github.com/jonathan/catalog-sync/internal/sellers"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl seller catalogs and write a snapshot file",
	Long: `Crawls every active seller and writes the scrape job, sellers and matching products to the
snapshot file. Sellers come from the database, or from a CSV file with --csv.
The snapshot can be applied later with 'import'.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().String("csv", "", "Read sellers from this CSV instead of the database")
	scrapeCmd.Flags().StringP("snapshot", "o", "", "Snapshot output path (defaults to snapshot_path from config)")
	scrapeCmd.Flags().Bool("use-browser", false, "Render catalogs in headless Chrome when static HTML is not enough")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{Logger: slog.Default()}
	var list []types.Seller
	if cmd.Flags().Changed("csv") {
		parsed, err := sellers.ReadFile(cfg.SellersCSV)
		if err != nil {
			return err
		}
		list = parsed.Sellers
	} else {
		database, err := connectDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		list, err = database.ListActiveSellers(ctx)
		if err != nil {
			return fmt.Errorf("failed to load sellers: %w", err)
		}
		deps.Jobs = database
	}
	if len(list) == 0 {
		return fmt.Errorf("no active sellers to scrape")
	}

	snap, sum, err := scrapeSellers(ctx, cfg, deps, list)
	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintCrawlSummary(sum)
	printer.PrintSnapshot(snap)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s\n", cfg.SnapshotPath)
	return nil
}

// scrapeSellers builds the crawler from cfg and writes the snapshot to cfg.SnapshotPath.
func scrapeSellers(ctx context.Context, cfg *config.Config, deps pipeline.Deps, list []types.Seller) (*types.Snapshot, *crawling.Summary, error) {
	crawler, err := newCrawler(ctx, cfg, deps.Logger)
	if err != nil {
		return nil, nil, err
	}
	deps.Crawler = crawler
	return pipeline.Scrape(ctx, deps, list, pipeline.RunOptions{SnapshotPath: cfg.SnapshotPath})
}
