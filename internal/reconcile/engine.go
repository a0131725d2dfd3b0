// Package reconcile merges a scrape snapshot into the durable dataset inside a
// single transaction, keeping product identities stable and tracking which
// listings disappeared or came back.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/types"
)

// Result counts the product transitions applied by one reconciliation.
type Result struct {
	Inserted    int `json:"inserted"`
	Updated     int `json:"updated"`
	Removed     int `json:"removed"`
	Reactivated int `json:"reactivated"`
}

// Engine reconciles snapshots against a Store. It holds no per-run state.
type Engine struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger falls back to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source used for removed_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics records run outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile applies snap to the store. On any error nothing is persisted and
// the returned error is a *StepError naming the failing step.
func (e *Engine) Reconcile(ctx context.Context, snap *types.Snapshot) (*Result, error) {
	if snap == nil {
		return nil, e.fail(&StepError{Step: StepValidate, Err: errors.New("nil snapshot")})
	}
	if err := snap.Validate(); err != nil {
		return nil, e.fail(&StepError{Step: StepValidate, Err: err})
	}

	started := time.Now()
	now := e.now()
	job := snap.ScrapeJob
	log := e.logger.With(slog.String("job_id", job.ID.String()))

	var res *Result
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		res = &Result{}

		if err := tx.UpsertJob(ctx, &job); err != nil {
			return &StepError{Step: StepUpsertJob, Err: err}
		}

		sellers := make([]types.Seller, 0, len(snap.Sellers))
		for _, id := range snap.SellerIDs() {
			sellers = append(sellers, *snap.Sellers[id])
		}
		if err := tx.BulkUpsertSellers(ctx, sellers); err != nil {
			return &StepError{Step: StepUpsertSellers, Err: err}
		}

		observed, err := e.upsertProducts(ctx, tx, job.ID, snap.Products, now, res)
		if err != nil {
			return &StepError{Step: StepUpsertProducts, Err: err}
		}

		removed, err := tx.MarkMissingAsRemoved(ctx, snap.SellerIDs(), job.ID, observed, now)
		if err != nil {
			return &StepError{Step: StepLifecycle, Err: err}
		}
		reactivated, err := tx.MarkReappearedAsActive(ctx, job.ID, observed)
		if err != nil {
			return &StepError{Step: StepLifecycle, Err: err}
		}
		res.Removed = removed
		res.Reactivated = reactivated
		return nil
	})
	if err != nil {
		var stepErr *StepError
		if !errors.As(err, &stepErr) {
			stepErr = &StepError{Step: StepCommit, Err: err}
		}
		log.Error("reconciliation rolled back",
			slog.String("step", stepErr.Step),
			slog.Any("error", stepErr.Err),
		)
		return nil, e.fail(stepErr)
	}

	e.metrics.observeSuccess(res, time.Since(started))
	log.Info("reconciliation committed",
		slog.Int("sellers", len(snap.Sellers)),
		slog.Int("inserted", res.Inserted),
		slog.Int("updated", res.Updated),
		slog.Int("removed", res.Removed),
		slog.Int("reactivated", res.Reactivated),
	)
	return res, nil
}

func (e *Engine) fail(err *StepError) error {
	e.metrics.observeFailure(err.Step)
	return err
}

// upsertProducts routes every observed product to insert or update and
// returns the keys that were observed.
func (e *Engine) upsertProducts(ctx context.Context, tx Tx, jobID uuid.UUID, products []types.Product, now time.Time, res *Result) (types.ObservedKeys, error) {
	linked, unlinked := partition(products)

	links := make([]string, len(linked))
	for i := range linked {
		links[i] = linked[i].Link()
	}
	byLink, err := tx.FindExistingByNaturalKey(ctx, links)
	if err != nil {
		return types.ObservedKeys{}, err
	}

	var inserts, updates []types.Product
	var rest []types.Product
	for _, p := range linked {
		if storedID, ok := byLink[p.Link()]; ok {
			p.ID = storedID
			updates = append(updates, p)
			continue
		}
		rest = append(rest, p)
	}
	rest = append(rest, unlinked...)

	ids := make([]uuid.UUID, len(rest))
	for i := range rest {
		ids[i] = rest[i].ID
	}
	existing, err := tx.FindExistingIDs(ctx, ids)
	if err != nil {
		return types.ObservedKeys{}, err
	}
	for _, p := range rest {
		if existing[p.ID] {
			updates = append(updates, p)
		} else {
			inserts = append(inserts, p)
		}
	}

	for i := range inserts {
		stamp(&inserts[i], jobID, now)
		if inserts[i].ScrapeJobID == uuid.Nil {
			inserts[i].ScrapeJobID = jobID
		}
		if inserts[i].CreatedAt.IsZero() {
			inserts[i].CreatedAt = now
		}
	}
	for i := range updates {
		stamp(&updates[i], jobID, now)
	}

	if len(inserts) > 0 {
		n, err := tx.BulkInsertProducts(ctx, inserts)
		if err != nil {
			return types.ObservedKeys{}, err
		}
		res.Inserted = n
	}
	if len(updates) > 0 {
		n, err := tx.BulkUpdateProducts(ctx, updates)
		if err != nil {
			return types.ObservedKeys{}, err
		}
		res.Updated = n
	}

	observed := types.ObservedKeys{
		Links: links,
		IDs:   make([]uuid.UUID, 0, len(inserts)+len(updates)),
	}
	for _, p := range inserts {
		observed.IDs = append(observed.IDs, p.ID)
	}
	for _, p := range updates {
		observed.IDs = append(observed.IDs, p.ID)
	}
	return observed, nil
}

// partition splits products into linked and unlinked sets. Linked products
// are de-duplicated by normalized link and unlinked ones by id; a later
// observation replaces an earlier one in place.
func partition(products []types.Product) (linked, unlinked []types.Product) {
	linkIdx := make(map[string]int)
	idIdx := make(map[uuid.UUID]int)
	for _, p := range products {
		p = p.Clone()
		if p.HasLink() {
			key := identity.NormalizeURL(p.Link())
			if i, ok := linkIdx[key]; ok {
				linked[i] = p
				continue
			}
			linkIdx[key] = len(linked)
			linked = append(linked, p)
			continue
		}
		if i, ok := idIdx[p.ID]; ok {
			unlinked[i] = p
			continue
		}
		idIdx[p.ID] = len(unlinked)
		unlinked = append(unlinked, p)
	}
	return linked, unlinked
}

func stamp(p *types.Product, jobID uuid.UUID, now time.Time) {
	p.LastSeenScrapeJobID = jobID
	p.IsRemoved = false
	p.RemovedAt = nil
	p.UpdatedAt = now
}
