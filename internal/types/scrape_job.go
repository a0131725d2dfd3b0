package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

// Scrape job statuses persisted in scrape_jobs.status.
const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Well-known job_metadata keys written by the snapshot builder.
const (
	MetaTimestamp        = "timestamp"
	MetaSellersProcessed = "sellers_processed"
	MetaTotalTimeSeconds = "total_time_seconds"
)

// ScrapeJob is one crawl run. It is created as running and finalized exactly once.
type ScrapeJob struct {
	ID           uuid.UUID      `json:"id" validate:"required"`
	Status       JobStatus      `json:"status" validate:"required,oneof=running completed failed"`
	StartedAt    time.Time      `json:"started_at" validate:"required"`
	CompletedAt  *time.Time     `json:"completed_at"`
	TotalItems   int            `json:"total_items" validate:"gte=0"`
	TotalSellers int            `json:"total_sellers" validate:"gte=0"`
	ErrorMessage *string        `json:"error_message"`
	JobMetadata  map[string]any `json:"job_metadata"`
}

// IsFinal reports whether the job has left the running state.
func (j *ScrapeJob) IsFinal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
