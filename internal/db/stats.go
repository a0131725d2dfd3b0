package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/catalog-sync/internal/types"
)

// Stats summarizes the store for the CLI and the read API
type Stats struct {
	ActiveSellers   int              `json:"active_sellers"`
	ActiveProducts  int              `json:"active_products"`
	RemovedProducts int              `json:"removed_products"`
	CompletedJobs   int              `json:"completed_jobs"`
	FailedJobs      int              `json:"failed_jobs"`
	LastJob         *types.ScrapeJob `json:"last_job,omitempty"`
}

// Stats computes store-wide counts and returns the latest scrape job
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM sellers WHERE is_active = TRUE),
		     (SELECT COUNT(*) FROM products WHERE is_removed = FALSE),
		     (SELECT COUNT(*) FROM products WHERE is_removed = TRUE),
		     (SELECT COUNT(*) FROM scrape_jobs WHERE status = 'completed'),
		     (SELECT COUNT(*) FROM scrape_jobs WHERE status = 'failed')`,
	).Scan(&s.ActiveSellers, &s.ActiveProducts, &s.RemovedProducts, &s.CompletedJobs, &s.FailedJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	last, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumnList+` FROM scrape_jobs ORDER BY started_at DESC LIMIT 1`))
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to get last scrape job: %w", err)
	}
	s.LastJob = last
	return &s, nil
}
