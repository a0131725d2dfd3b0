package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/observability"
	"github.com/jonathan/catalog-sync/internal/pipeline"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full sync end-to-end",
	Long: `Orchestrates a complete sync: load active sellers -> crawl -> write snapshot -> reconcile ->
search index -> store stats.

A file lock keeps two runs from writing at the same time. Search indexing is skipped when
Algolia credentials are missing and its failure does not fail the run.`,
	RunE: runPipelineCmd,
}

var runLockTimeout time.Duration

func init() {
	runCommand.Flags().StringP("snapshot", "o", "", "Snapshot output path (defaults to snapshot_path from config)")
	runCommand.Flags().Bool("use-browser", false, "Render catalogs in headless Chrome when static HTML is not enough")
	runCommand.Flags().DurationVar(&runLockTimeout, "lock-timeout", 5*time.Second, "How long to wait for another run to release the lock")
	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	deps, err := newRunDeps(ctx, cfg, database, nil)
	if err != nil {
		return err
	}

	res, err := pipeline.Run(ctx, deps, runOptions(cfg, runLockTimeout))
	if res != nil {
		printer := observability.NewPrinter(cmd.OutOrStdout())
		printer.PrintCrawlSummary(res.Crawl)
		printer.PrintReconcileResult(res.Reconcile)
		printer.PrintSyncResult(res.Index)
		printer.PrintStats(res.Stats)
	}
	return err
}

// newRunDeps wires a full sync against database. metrics may be nil.
func newRunDeps(ctx context.Context, cfg *config.Config, database *db.DB, metrics *reconcile.Metrics) (pipeline.Deps, error) {
	logger := slog.Default()
	crawler, err := newCrawler(ctx, cfg, logger)
	if err != nil {
		return pipeline.Deps{}, err
	}
	idx, err := newSearchIndex(cfg)
	if err != nil {
		return pipeline.Deps{}, err
	}
	if idx == nil {
		logger.Info("search index not configured, skipping indexing")
	}

	return pipeline.Deps{
		Sellers: database,
		Crawler: crawler,
		Engine:  reconcile.NewEngine(database, reconcile.WithLogger(logger), reconcile.WithMetrics(metrics)),
		Jobs:    database,
		Index:   idx,
		Stats:   database,
		Logger:  logger,
	}, nil
}

func runOptions(cfg *config.Config, lockTimeout time.Duration) pipeline.RunOptions {
	return pipeline.RunOptions{
		SnapshotPath: cfg.SnapshotPath,
		LockPath:     cfg.LockPath,
		LockTimeout:  lockTimeout,
		OnProgress: func(e pipeline.ProgressEvent) {
			slog.Info(e.Message, slog.String("step", e.Step), slog.String("job_id", e.JobID))
		},
	}
}
