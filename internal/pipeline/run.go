// Package pipeline sequences a full catalog sync: load sellers, crawl,
// write the snapshot, reconcile it, then publish to search.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/jonathan/catalog-sync/internal/crawling"
	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/jonathan/catalog-sync/internal/search"
	"github.com/jonathan/catalog-sync/internal/snapshot"
	"github.com/jonathan/catalog-sync/internal/types"
)

// Step names reported through progress events.
const (
	StepLoadSellers = "load_sellers"
	StepScrape      = "scrape"
	StepSave        = "save_snapshot"
	StepReconcile   = "reconcile"
	StepIndex       = "index"
	StepStats       = "stats"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Step    string `json:"step"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
	Content any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// SellerSource lists the sellers to crawl.
type SellerSource interface {
	ListActiveSellers(ctx context.Context) ([]types.Seller, error)
}

// Crawler records seller catalogs on a builder.
type Crawler interface {
	Crawl(ctx context.Context, b *snapshot.Builder, sellers []types.Seller) (*crawling.Summary, error)
}

// Reconciler applies a snapshot to the store.
type Reconciler interface {
	Reconcile(ctx context.Context, snap *types.Snapshot) (*reconcile.Result, error)
}

// JobRecorder persists the failed state of a job whose reconciliation was rolled back.
type JobRecorder interface {
	FailScrapeJob(ctx context.Context, job *types.ScrapeJob, message string) error
}

// StatsReader reports store totals.
type StatsReader interface {
	Stats(ctx context.Context) (*db.Stats, error)
}

// Deps are the collaborators of a run. Index and Stats are optional.
type Deps struct {
	Sellers  SellerSource
	Crawler  Crawler
	Engine   Reconciler
	Jobs     JobRecorder
	Index    search.Index
	Stats    StatsReader
	Logger   *slog.Logger
	Builders []snapshot.Option // passed to every new builder
}

// RunOptions holds configuration for running the pipeline
type RunOptions struct {
	SnapshotPath string
	LockPath     string // skipped when empty
	LockTimeout  time.Duration
	OnProgress   ProgressCallback
}

// RunResult collects the outputs of each step.
type RunResult struct {
	JobID     string             `json:"job_id"`
	Crawl     *crawling.Summary  `json:"crawl,omitempty"`
	Reconcile *reconcile.Result  `json:"reconcile,omitempty"`
	Index     *search.SyncResult `json:"index,omitempty"`
	Stats     *db.Stats          `json:"stats,omitempty"`
	Snapshot  *types.Snapshot    `json:"-"`
}

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another sync run holds the lock")

func emitProgress(opts *RunOptions, step, jobID, message string, content any) {
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressEvent{Step: step, JobID: jobID, Message: message, Content: content})
	}
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// AcquireLock takes the single-writer file lock at path, waiting up to
// timeout. The returned func releases it.
func AcquireLock(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fl := flock.New(path)
	locked, err := fl.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Run executes the full sync. The lock is held from crawl start to the end
// of reconciliation so two runs never write concurrently.
func Run(ctx context.Context, deps Deps, opts RunOptions) (*RunResult, error) {
	log := deps.logger()

	release, err := AcquireLock(ctx, opts.LockPath, opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	emitProgress(&opts, StepLoadSellers, "", "loading active sellers", nil)
	sellers, err := deps.Sellers.ListActiveSellers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sellers: %w", err)
	}
	if len(sellers) == 0 {
		return nil, fmt.Errorf("no active sellers to scrape")
	}
	log.Info("loaded active sellers", slog.Int("count", len(sellers)))

	snap, sum, err := Scrape(ctx, deps, sellers, opts)
	res := &RunResult{Crawl: sum, Snapshot: snap}
	if snap != nil {
		res.JobID = snap.ScrapeJob.ID.String()
	}
	if err != nil {
		return res, err
	}

	emitProgress(&opts, StepReconcile, res.JobID, "reconciling snapshot", nil)
	res.Reconcile, err = Reconcile(ctx, deps, snap)
	if err != nil {
		return res, err
	}

	if deps.Index != nil {
		emitProgress(&opts, StepIndex, res.JobID, "syncing search index", nil)
		res.Index, err = Index(ctx, deps, search.RecordsFromSnapshot(snap))
		if err != nil {
			// Search is a derived view; the committed run stands.
			log.Error("search index sync failed", slog.Any("error", err))
		}
	}

	if deps.Stats != nil {
		emitProgress(&opts, StepStats, res.JobID, "reading store totals", nil)
		res.Stats, err = deps.Stats.Stats(ctx)
		if err != nil {
			log.Warn("failed to read store stats", slog.Any("error", err))
		}
	}
	return res, nil
}

// Scrape crawls sellers into a new snapshot and writes it to
// opts.SnapshotPath when set. A cancelled crawl yields a failed snapshot.
func Scrape(ctx context.Context, deps Deps, sellers []types.Seller, opts RunOptions) (*types.Snapshot, *crawling.Summary, error) {
	log := deps.logger()
	b := snapshot.NewBuilder(deps.Builders...)
	jobID := b.JobID().String()

	emitProgress(&opts, StepScrape, jobID, fmt.Sprintf("scraping %d sellers", len(sellers)), nil)
	sum, crawlErr := deps.Crawler.Crawl(ctx, b, sellers)

	var snap *types.Snapshot
	if crawlErr != nil {
		snap = b.Fail(crawlErr)
	} else {
		snap = b.Finish()
	}
	log.Info("scrape finished",
		slog.String("job_id", jobID),
		slog.String("status", string(snap.ScrapeJob.Status)),
		slog.Int("items", snap.ScrapeJob.TotalItems),
		slog.Int("sellers", snap.ScrapeJob.TotalSellers),
	)

	if opts.SnapshotPath != "" {
		emitProgress(&opts, StepSave, jobID, "writing snapshot", opts.SnapshotPath)
		if err := snapshot.Save(opts.SnapshotPath, snap); err != nil {
			return snap, sum, fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	if crawlErr != nil {
		if deps.Jobs != nil {
			// Use a fresh context: the crawl context is already done.
			if err := deps.Jobs.FailScrapeJob(context.WithoutCancel(ctx), &snap.ScrapeJob, crawlErr.Error()); err != nil {
				log.Error("failed to record failed job", slog.Any("error", err))
			}
		}
		return snap, sum, fmt.Errorf("scrape aborted: %w", crawlErr)
	}
	return snap, sum, nil
}

// Reconcile applies snap and, if it is rolled back, records the job as
// failed with the step error.
func Reconcile(ctx context.Context, deps Deps, snap *types.Snapshot) (*reconcile.Result, error) {
	res, err := deps.Engine.Reconcile(ctx, snap)
	if err == nil {
		return res, nil
	}

	var stepErr *reconcile.StepError
	if errors.As(err, &stepErr) && stepErr.Step != reconcile.StepValidate && deps.Jobs != nil && snap != nil {
		if ferr := deps.Jobs.FailScrapeJob(context.WithoutCancel(ctx), &snap.ScrapeJob, err.Error()); ferr != nil {
			deps.logger().Error("failed to record failed job", slog.Any("error", ferr))
		}
	}
	return nil, err
}

// Index clears the search index and fills it with records.
func Index(ctx context.Context, deps Deps, records []search.Record) (*search.SyncResult, error) {
	settings := search.DefaultSettings()
	return search.Sync(ctx, deps.Index, records, search.SyncOptions{
		Clear:    true,
		Settings: &settings,
		Logger:   deps.logger(),
	})
}
