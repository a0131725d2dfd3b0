package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/pipeline"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/jonathan/catalog-sync/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only catalog API",
	Long: `Start an HTTP server exposing sellers, products, scrape jobs, store stats and Prometheus
metrics. With --schedule (a standard 5-field cron expression) the full sync also runs
periodically in the same process; a run still in progress makes the next tick skip.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (defaults to server_addr from config)")
	serveCmd.Flags().String("schedule", "", "Cron expression for periodic syncs, e.g. \"0 */6 * * *\"")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Schedule != "" {
		scheduler, err := newScheduler(ctx, cfg, database, reconcile.NewMetrics(registry))
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := server.New(server.Config{
		Addr:     cfg.ServerAddr,
		Logger:   slog.Default(),
		Registry: registry,
	}, database)
	return srv.Start(ctx)
}

// newScheduler registers the full sync on cfg.Schedule. Runs use ctx, so
// shutdown cancels an in-flight crawl.
func newScheduler(ctx context.Context, cfg *config.Config, database *db.DB, metrics *reconcile.Metrics) (*cron.Cron, error) {
	deps, err := newRunDeps(ctx, cfg, database, metrics)
	if err != nil {
		return nil, err
	}

	logger := cronLogger{slog.Default().With(slog.String("component", "scheduler"))}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err = c.AddFunc(cfg.Schedule, func() {
		res, err := pipeline.Run(ctx, deps, runOptions(cfg, 0))
		switch {
		case errors.Is(err, pipeline.ErrLocked):
			logger.l.Warn("skipping scheduled sync", slog.Any("error", err))
		case err != nil:
			logger.l.Error("scheduled sync failed", slog.Any("error", err))
		default:
			logger.l.Info("scheduled sync finished",
				slog.String("job_id", res.JobID),
				slog.Int("inserted", res.Reconcile.Inserted),
				slog.Int("removed", res.Reconcile.Removed))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	return c, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{slog.Any("error", err)}, keysAndValues...)...)
}
