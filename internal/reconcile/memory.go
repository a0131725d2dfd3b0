package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/types"
)

// MemoryStore is an in-process Store. Each transaction works on a private
// copy of the data that replaces the committed state only on success.
type MemoryStore struct {
	mu       sync.Mutex
	state    *memState
	failures map[string]error
	now      func() time.Time
}

type memState struct {
	jobs     map[uuid.UUID]types.ScrapeJob
	sellers  map[uuid.UUID]types.Seller
	products map[uuid.UUID]types.Product
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			jobs:     make(map[uuid.UUID]types.ScrapeJob),
			sellers:  make(map[uuid.UUID]types.Seller),
			products: make(map[uuid.UUID]types.Product),
		},
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for updated_at on reactivation.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailOn makes the named Tx method (e.g. "BulkInsertProducts") return err.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// WithTx implements Store.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), failures: m.failures, now: m.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	m.state = tx.state
	return nil
}

// Products returns every committed product ordered by creation time, then ID.
func (m *MemoryStore) Products() []types.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Product, 0, len(m.state.products))
	for _, p := range m.state.products {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Product returns the committed product with id.
func (m *MemoryStore) Product(id uuid.UUID) (types.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.products[id]
	return p.Clone(), ok
}

// Seller returns the committed seller with id.
func (m *MemoryStore) Seller(id uuid.UUID) (types.Seller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state.sellers[id]
	return s, ok
}

// Job returns the committed scrape job with id.
func (m *MemoryStore) Job(id uuid.UUID) (types.ScrapeJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.state.jobs[id]
	return j, ok
}

func (s *memState) clone() *memState {
	c := &memState{
		jobs:     make(map[uuid.UUID]types.ScrapeJob, len(s.jobs)),
		sellers:  make(map[uuid.UUID]types.Seller, len(s.sellers)),
		products: make(map[uuid.UUID]types.Product, len(s.products)),
	}
	for k, v := range s.jobs {
		c.jobs[k] = v
	}
	for k, v := range s.sellers {
		c.sellers[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v.Clone()
	}
	return c
}

type memTx struct {
	state    *memState
	failures map[string]error
	now      func() time.Time
}

func (t *memTx) injected(method string) error {
	if err, ok := t.failures[method]; ok {
		return err
	}
	return nil
}

func (t *memTx) UpsertJob(_ context.Context, job *types.ScrapeJob) error {
	if err := t.injected("UpsertJob"); err != nil {
		return err
	}
	t.state.jobs[job.ID] = *job
	return nil
}

func (t *memTx) BulkUpsertSellers(_ context.Context, sellers []types.Seller) error {
	if err := t.injected("BulkUpsertSellers"); err != nil {
		return err
	}
	for _, s := range sellers {
		if stored, ok := t.state.sellers[s.ID]; ok {
			s.CreatedAt = stored.CreatedAt
		}
		t.state.sellers[s.ID] = s
	}
	return nil
}

func (t *memTx) FindExistingByNaturalKey(_ context.Context, links []string) (map[string]uuid.UUID, error) {
	if err := t.injected("FindExistingByNaturalKey"); err != nil {
		return nil, err
	}
	want := stringSet(links)
	out := make(map[string]uuid.UUID)
	for id, p := range t.state.products {
		if p.HasLink() && want[p.Link()] {
			out[p.Link()] = id
		}
	}
	return out, nil
}

func (t *memTx) FindExistingIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if err := t.injected("FindExistingIDs"); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if _, ok := t.state.products[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (t *memTx) BulkInsertProducts(_ context.Context, products []types.Product) (int, error) {
	if err := t.injected("BulkInsertProducts"); err != nil {
		return 0, err
	}
	links := make(map[string]uuid.UUID)
	for id, p := range t.state.products {
		if p.HasLink() {
			links[p.Link()] = id
		}
	}
	for _, p := range products {
		if _, ok := t.state.products[p.ID]; ok {
			return 0, fmt.Errorf("duplicate product id %s", p.ID)
		}
		if p.HasLink() {
			if _, ok := links[p.Link()]; ok {
				return 0, fmt.Errorf("duplicate product link %s", p.Link())
			}
			links[p.Link()] = p.ID
		}
		t.state.products[p.ID] = p.Clone()
	}
	return len(products), nil
}

func (t *memTx) BulkUpdateProducts(_ context.Context, products []types.Product) (int, error) {
	if err := t.injected("BulkUpdateProducts"); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range products {
		stored, ok := t.state.products[p.ID]
		if !ok {
			continue
		}
		next := p.Clone()
		next.CreatedAt = stored.CreatedAt
		next.ScrapeJobID = stored.ScrapeJobID
		next.IsRemoved = stored.IsRemoved
		next.RemovedAt = stored.RemovedAt
		if next.ProductLink == nil {
			next.ProductLink = stored.ProductLink
		}
		t.state.products[p.ID] = next
		n++
	}
	return n, nil
}

func (t *memTx) MarkMissingAsRemoved(_ context.Context, sellerIDs []uuid.UUID, jobID uuid.UUID, observed types.ObservedKeys, removedAt time.Time) (int, error) {
	if err := t.injected("MarkMissingAsRemoved"); err != nil {
		return 0, err
	}
	scope := make(map[uuid.UUID]bool, len(sellerIDs))
	for _, id := range sellerIDs {
		scope[id] = true
	}
	n := 0
	for id, p := range t.state.products {
		if !scope[p.SellerID] || p.IsRemoved || p.LastSeenScrapeJobID == jobID {
			continue
		}
		if observed.Contains(p.Link(), p.ID) {
			continue
		}
		at := removedAt
		p.IsRemoved = true
		p.RemovedAt = &at
		p.UpdatedAt = removedAt
		t.state.products[id] = p
		n++
	}
	return n, nil
}

func (t *memTx) MarkReappearedAsActive(_ context.Context, jobID uuid.UUID, observed types.ObservedKeys) (int, error) {
	if err := t.injected("MarkReappearedAsActive"); err != nil {
		return 0, err
	}
	now := t.now()
	n := 0
	for id, p := range t.state.products {
		if !p.IsRemoved || !observed.Contains(p.Link(), p.ID) {
			continue
		}
		p.IsRemoved = false
		p.RemovedAt = nil
		p.LastSeenScrapeJobID = jobID
		p.UpdatedAt = now
		t.state.products[id] = p
		n++
	}
	return n, nil
}

func stringSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
