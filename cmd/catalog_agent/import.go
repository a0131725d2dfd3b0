package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/catalog-sync/internal/observability"
	"github.com/jonathan/catalog-sync/internal/pipeline"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/jonathan/catalog-sync/internal/snapshot"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Reconcile a snapshot file into the product store",
	Long: `Applies a snapshot in a single transaction: records the scrape job, upserts sellers,
inserts or updates products, marks unseen products of the snapshot's sellers as removed and
reactivates products that reappeared. On failure nothing is applied and the job is recorded
as failed.

With --dry-run the snapshot is validated and reconciled against an empty in-memory store.`,
	RunE: runImport,
}

var (
	importDryRun      bool
	importForce       bool
	importLockTimeout time.Duration
)

func init() {
	importCmd.Flags().StringP("snapshot", "i", "", "Snapshot path (defaults to snapshot_path from config)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate and reconcile in memory only")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Import a snapshot even if its scrape job failed")
	importCmd.Flags().DurationVar(&importLockTimeout, "lock-timeout", 5*time.Second, "How long to wait for another run to release the lock")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	snap, err := snapshot.Load(cfg.SnapshotPath)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintSnapshot(snap)

	deps := pipeline.Deps{Logger: slog.Default()}
	if importDryRun {
		deps.Engine = reconcile.NewEngine(reconcile.NewMemoryStore(), reconcile.WithLogger(deps.Logger))
	} else {
		database, err := connectDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		deps.Engine = reconcile.NewEngine(database, reconcile.WithLogger(deps.Logger))
		deps.Jobs = database

		release, err := pipeline.AcquireLock(ctx, cfg.LockPath, importLockTimeout)
		if err != nil {
			return err
		}
		defer release()
	}

	res, err := importSnapshot(ctx, deps, snap, importForce)
	if err != nil {
		return err
	}
	printer.PrintReconcileResult(res)
	return nil
}

// importSnapshot refuses snapshots of aborted scrapes unless forced: their
// product lists may be partial.
func importSnapshot(ctx context.Context, deps pipeline.Deps, snap *types.Snapshot, force bool) (*reconcile.Result, error) {
	if snap.ScrapeJob.Status == types.JobFailed && !force {
		return nil, fmt.Errorf("snapshot %s is from a failed scrape job (use --force to import anyway)", snap.ScrapeJob.ID)
	}
	return pipeline.Reconcile(ctx, deps, snap)
}
