package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/snapshot"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shopURL  = "https://shop.example/catalog"
	otherURL = "https://other.example/catalog"
)

type listing struct {
	title string
	link  string
}

type catalog struct {
	url      string
	listings []listing
}

func clock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func buildSnapshot(now func() time.Time, catalogs ...catalog) *types.Snapshot {
	b := snapshot.NewBuilder(snapshot.WithClock(now))
	for _, c := range catalogs {
		seller := b.ObserveSeller("Seller "+c.url, "", "", c.url)
		for _, l := range c.listings {
			b.ObserveProduct(seller, snapshot.ProductFields{Title: l.title, ProductLink: l.link, Price: "100"})
		}
		b.MarkSellerProcessed(seller.Name)
	}
	return b.Finish()
}

func newEngine(store Store, now func() time.Time) *Engine {
	return NewEngine(store, WithClock(now))
}

func TestReconcile_ThreeRunScenario(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	engine := newEngine(store, now)
	p1 := "https://shop.example/p1"
	id := identity.ProductID(p1, "", "")

	run1 := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "iPhone 13", link: p1}}})
	res, err := engine.Reconcile(ctx, run1)
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, *res)

	stored, ok := store.Product(id)
	require.True(t, ok)
	assert.False(t, stored.IsRemoved)
	assert.Equal(t, run1.ScrapeJob.ID, stored.LastSeenScrapeJobID)

	run2 := buildSnapshot(now, catalog{url: shopURL})
	res, err = engine.Reconcile(ctx, run2)
	require.NoError(t, err)
	assert.Equal(t, Result{Removed: 1}, *res)

	stored, _ = store.Product(id)
	assert.True(t, stored.IsRemoved)
	require.NotNil(t, stored.RemovedAt)
	assert.Equal(t, run1.ScrapeJob.ID, stored.LastSeenScrapeJobID)

	run3 := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "iPhone 13 Pro", link: p1}}})
	res, err = engine.Reconcile(ctx, run3)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1, Reactivated: 1}, *res)

	stored, _ = store.Product(id)
	assert.False(t, stored.IsRemoved)
	assert.Nil(t, stored.RemovedAt)
	assert.Equal(t, "iPhone 13 Pro", stored.Title)
	assert.Equal(t, run3.ScrapeJob.ID, stored.LastSeenScrapeJobID)
	assert.Equal(t, run1.ScrapeJob.ID, stored.ScrapeJobID)
	assert.Len(t, store.Products(), 1)
}

func TestReconcile_RepeatedAbsenceKeepsRemovedAt(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	engine := newEngine(store, now)
	p1 := "https://shop.example/p1"
	id := identity.ProductID(p1, "", "")

	res, err := engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "iPhone 13", link: p1}}}))
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, *res)

	res, err = engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL}))
	require.NoError(t, err)
	assert.Equal(t, Result{Removed: 1}, *res)
	stored, _ := store.Product(id)
	require.NotNil(t, stored.RemovedAt)
	removedAt := *stored.RemovedAt

	res, err = engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL}))
	require.NoError(t, err)
	assert.Equal(t, Result{}, *res)
	stored, _ = store.Product(id)
	assert.True(t, stored.IsRemoved)
	require.NotNil(t, stored.RemovedAt)
	assert.Equal(t, removedAt, *stored.RemovedAt)

	run4 := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "iPhone 13", link: p1}}})
	res, err = engine.Reconcile(ctx, run4)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1, Reactivated: 1}, *res)
	stored, _ = store.Product(id)
	assert.False(t, stored.IsRemoved)
	assert.Nil(t, stored.RemovedAt)
	assert.Equal(t, run4.ScrapeJob.ID, stored.LastSeenScrapeJobID)
}

func TestReconcile_LinkVariantsCollapse(t *testing.T) {
	now := clock()
	store := NewMemoryStore()
	snap := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "first", link: "https://shop.example/p1"}}})
	variant := snap.Products[0].Clone()
	variant.Title = "second"
	variant.ProductLink = types.StringPtr("https://SHOP.example/p1/")
	snap.Products = append(snap.Products, variant)

	res, err := newEngine(store, now).Reconcile(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, *res)

	products := store.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "second", products[0].Title)
	assert.Equal(t, snap.Products[0].ID, products[0].ID)
}

func TestReconcile_IdempotentRerun(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	engine := newEngine(store, now)
	listings := []listing{
		{title: "iPhone 13", link: "https://shop.example/p1"},
		{title: "iPhone 14", link: "https://shop.example/p2"},
		{title: "iPhone 12 no link"},
	}

	first, err := engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: listings}))
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 3}, *first)
	createdAt := make(map[uuid.UUID]time.Time)
	for _, p := range store.Products() {
		createdAt[p.ID] = p.CreatedAt
	}

	second, err := engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: listings}))
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 3}, *second)

	for _, p := range store.Products() {
		assert.Equal(t, createdAt[p.ID], p.CreatedAt, "created_at must survive updates")
	}
}

func TestReconcile_SameSnapshotTwice(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	engine := newEngine(store, now)
	snap := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "a", link: "https://shop.example/a"}}})

	_, err := engine.Reconcile(ctx, snap)
	require.NoError(t, err)
	res, err := engine.Reconcile(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1}, *res)
}

func TestReconcile_WithinRunDedupLaterWins(t *testing.T) {
	now := clock()
	snap := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "first", link: "https://shop.example/p1"}}})
	dup := snap.Products[0].Clone()
	dup.Title = "second"
	dup.Price = "999"
	snap.Products = append(snap.Products, dup)

	store := NewMemoryStore()
	res, err := newEngine(store, now).Reconcile(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, *res)

	products := store.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "second", products[0].Title)
	assert.Equal(t, "999", products[0].Price)
}

func TestReconcile_LifecycleScopedToSnapshotSellers(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	engine := newEngine(store, now)

	_, err := engine.Reconcile(ctx, buildSnapshot(now,
		catalog{url: shopURL, listings: []listing{{title: "a", link: "https://shop.example/a"}}},
		catalog{url: otherURL, listings: []listing{{title: "b", link: "https://other.example/b"}}},
	))
	require.NoError(t, err)

	res, err := engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL}))
	require.NoError(t, err)
	assert.Equal(t, Result{Removed: 1}, *res)

	other, ok := store.Product(identity.ProductID("https://other.example/b", "", ""))
	require.True(t, ok)
	assert.False(t, other.IsRemoved, "sellers outside the snapshot are untouched")
}

func TestReconcile_UnlinkedProducts(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	engine := newEngine(store, now)

	res, err := engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: []listing{
		{title: "iPhone 13"},
		{title: "iPhone 13"},
		{title: "iPhone 13 Pro"},
	}}))
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 2}, *res)

	res, err = engine.Reconcile(ctx, buildSnapshot(now, catalog{url: otherURL, listings: []listing{
		{title: "iPhone 13"},
	}}))
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, *res, "same title in another catalog is a distinct product")

	res, err = engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: []listing{
		{title: "iPhone 13"},
	}}))
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1, Removed: 1}, *res)
	assert.Len(t, store.Products(), 3)
}

func TestReconcile_RemapsByNaturalKey(t *testing.T) {
	ctx := context.Background()
	now := clock()
	store := NewMemoryStore()
	link := "https://shop.example/legacy"
	legacyID := uuid.New()
	sellerID := identity.SellerID(shopURL)
	oldJob := uuid.New()

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.BulkInsertProducts(ctx, []types.Product{{
			ID:                  legacyID,
			SellerID:            sellerID,
			ScrapeJobID:         oldJob,
			Title:               "old",
			ProductLink:         &link,
			LastSeenScrapeJobID: oldJob,
		}})
		return err
	}))

	res, err := newEngine(store, now).Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "new", link: link}}}))
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1}, *res)

	products := store.Products()
	require.Len(t, products, 1)
	assert.Equal(t, legacyID, products[0].ID)
	assert.Equal(t, "new", products[0].Title)
	assert.Equal(t, oldJob, products[0].ScrapeJobID)
}

func TestReconcile_RollbackOnStepFailure(t *testing.T) {
	tests := []struct {
		method string
		step   string
	}{
		{method: "UpsertJob", step: StepUpsertJob},
		{method: "BulkUpsertSellers", step: StepUpsertSellers},
		{method: "FindExistingByNaturalKey", step: StepUpsertProducts},
		{method: "FindExistingIDs", step: StepUpsertProducts},
		{method: "BulkInsertProducts", step: StepUpsertProducts},
		{method: "BulkUpdateProducts", step: StepUpsertProducts},
		{method: "MarkMissingAsRemoved", step: StepLifecycle},
		{method: "MarkReappearedAsActive", step: StepLifecycle},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			ctx := context.Background()
			now := clock()
			store := NewMemoryStore()
			engine := newEngine(store, now)
			first := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "a", link: "https://shop.example/a"}}})
			_, err := engine.Reconcile(ctx, first)
			require.NoError(t, err)
			before := store.Products()

			boom := errors.New("boom")
			store.FailOn(tt.method, boom)
			second := buildSnapshot(now, catalog{url: shopURL, listings: []listing{
				{title: "a changed", link: "https://shop.example/a"},
				{title: "b", link: "https://shop.example/b"},
			}})
			res, err := engine.Reconcile(ctx, second)
			require.Error(t, err)
			assert.Nil(t, res)

			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tt.step, stepErr.Step)
			assert.ErrorIs(t, err, boom)

			assert.Equal(t, before, store.Products())
			_, ok := store.Job(second.ScrapeJob.ID)
			assert.False(t, ok)
		})
	}
}

func TestReconcile_CommitFailure(t *testing.T) {
	now := clock()
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(store, now).Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL}))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepCommit, stepErr.Step)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcile_ValidationBeforeMutation(t *testing.T) {
	now := clock()
	store := NewMemoryStore()
	snap := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "a", link: "https://shop.example/a"}}})
	snap.Products[0].SellerID = uuid.New()

	_, err := newEngine(store, now).Reconcile(context.Background(), snap)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepValidate, stepErr.Step)
	var verr *types.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, ok := store.Job(snap.ScrapeJob.ID)
	assert.False(t, ok)
	assert.Empty(t, store.Products())

	_, err = newEngine(store, now).Reconcile(context.Background(), nil)
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepValidate, stepErr.Step)
}

func TestReconcile_DoesNotMutateSnapshot(t *testing.T) {
	now := clock()
	snap := buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "a", link: "https://shop.example/a"}}})
	before := snap.Products[0].Clone()

	store := NewMemoryStore()
	_, err := newEngine(store, now).Reconcile(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, before, snap.Products[0])

	stored, ok := store.Product(snap.Products[0].ID)
	require.True(t, ok)
	assert.NotNil(t, stored.Images)
	assert.Empty(t, stored.Images)
}

func TestReconcile_Metrics(t *testing.T) {
	ctx := context.Background()
	now := clock()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := NewMemoryStore()
	engine := NewEngine(store, WithClock(now), WithMetrics(metrics), WithLogger(nil))

	_, err := engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL, listings: []listing{{title: "a", link: "https://shop.example/a"}}}))
	require.NoError(t, err)
	_, err = engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL}))
	require.NoError(t, err)
	store.FailOn("UpsertJob", errors.New("down"))
	_, err = engine.Reconcile(ctx, buildSnapshot(now, catalog{url: shopURL}))
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("failed_"+StepUpsertJob)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProductsTotal.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProductsTotal.WithLabelValues("removed")))
}
