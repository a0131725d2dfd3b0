package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/catalog-sync/internal/types"
)

// -----------------------------------------------------------------------------
// Scrape Job Methods
// -----------------------------------------------------------------------------

const jobColumnList = `id, status, started_at, completed_at, total_items, total_sellers, error_message, job_metadata`

func scanJob(row pgx.Row) (*types.ScrapeJob, error) {
	var j types.ScrapeJob
	var status string
	var metadataJSON []byte
	if err := row.Scan(&j.ID, &status, &j.StartedAt, &j.CompletedAt, &j.TotalItems, &j.TotalSellers,
		&j.ErrorMessage, &metadataJSON); err != nil {
		return nil, err
	}
	j.Status = types.JobStatus(status)
	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &j.JobMetadata)
	}
	return &j, nil
}

// ListScrapeJobs returns the most recent scrape jobs first
func (db *DB) ListScrapeJobs(ctx context.Context, limit int) ([]types.ScrapeJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumnList+` FROM scrape_jobs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scrape jobs: %w", err)
	}
	defer rows.Close()

	var jobs []types.ScrapeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// GetScrapeJob retrieves a scrape job by ID. Returns nil, nil when not found.
func (db *DB) GetScrapeJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumnList+` FROM scrape_jobs WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scrape job: %w", err)
	}
	return j, nil
}

// FailScrapeJob records job as failed with message. The job row is created
// when the failed reconciliation rolled it back.
func (db *DB) FailScrapeJob(ctx context.Context, job *types.ScrapeJob, message string) error {
	metadata, err := marshalMetadata(job.JobMetadata)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (id, status, started_at, completed_at, total_items, total_sellers, error_message, job_metadata)
		 VALUES ($1, 'failed', $2, NOW(), $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		     status = 'failed',
		     completed_at = NOW(),
		     error_message = EXCLUDED.error_message`,
		job.ID, job.StartedAt, job.TotalItems, job.TotalSellers, message, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to mark scrape job failed: %w", err)
	}
	return nil
}
