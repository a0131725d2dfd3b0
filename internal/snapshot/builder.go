// Package snapshot accumulates one run's observations into a types.Snapshot
// and reads and writes the snapshot interchange file.
package snapshot

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/types"
)

// ProductFields are the raw listing attributes extracted by the crawler.
type ProductFields struct {
	Title        string
	Price        string
	Description  string
	Images       []string
	ProductLink  string
	IsOutOfStock bool
	PhotoCount   int
}

// Builder collects sellers and products for a single scrape job. It is not
// safe for concurrent use.
type Builder struct {
	now       func() time.Time
	started   time.Time
	job       types.ScrapeJob
	sellers   map[uuid.UUID]*types.Seller
	products  []*types.Product
	byID      map[uuid.UUID]int
	byTitle   map[string]int
	processed []string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithJobID pins the scrape job ID instead of generating a random one.
func WithJobID(id uuid.UUID) Option {
	return func(b *Builder) { b.job.ID = id }
}

// NewBuilder starts a new running scrape job.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:     func() time.Time { return time.Now().UTC() },
		sellers: make(map[uuid.UUID]*types.Seller),
		byID:    make(map[uuid.UUID]int),
		byTitle: make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.job.ID == uuid.Nil {
		b.job.ID = uuid.New()
	}
	b.started = b.now()
	b.job.Status = types.JobRunning
	b.job.StartedAt = b.started
	b.job.JobMetadata = map[string]any{
		types.MetaTimestamp:        b.started.Format(time.RFC3339),
		types.MetaSellersProcessed: []string{},
	}
	return b
}

// JobID returns the ID of the job being built.
func (b *Builder) JobID() uuid.UUID {
	return b.job.ID
}

// ObserveSeller returns the seller for catalogueURL, creating it on first
// sight. Later calls only refresh UpdatedAt.
func (b *Builder) ObserveSeller(name, city, contact, catalogueURL string) *types.Seller {
	id := identity.SellerID(catalogueURL)
	now := b.now()
	if s, ok := b.sellers[id]; ok {
		s.UpdatedAt = now
		return s
	}
	s := &types.Seller{
		ID:           id,
		Name:         strings.TrimSpace(name),
		City:         types.StringPtr(strings.TrimSpace(city)),
		Contact:      types.StringPtr(strings.TrimSpace(contact)),
		CatalogueURL: strings.TrimSpace(catalogueURL),
		CreatedAt:    now,
		UpdatedAt:    now,
		IsActive:     true,
	}
	b.sellers[id] = s
	return s
}

// Lookup returns the product already observed in this run for the given
// fields, if any. Callers use it to skip image work.
func (b *Builder) Lookup(seller *types.Seller, f ProductFields) (*types.Product, bool) {
	id := identity.ProductID(f.ProductLink, f.Title, seller.CatalogueURL)
	if idx, ok := b.byID[id]; ok {
		return b.products[idx], true
	}
	if idx, ok := b.byTitle[identity.TitleKey(f.Title, seller.CatalogueURL)]; ok && !b.products[idx].HasLink() {
		return b.products[idx], true
	}
	return nil, false
}

// ObserveProduct records a listing for seller. A repeat observation within the
// run overwrites the mutable fields of the existing record, including the
// seller when the same link is listed by another catalog. A listing first
// seen without a link is re-keyed to its link-derived ID once a link shows up.
func (b *Builder) ObserveProduct(seller *types.Seller, f ProductFields) *types.Product {
	link := identity.NormalizeURL(f.ProductLink)
	id := identity.ProductID(link, f.Title, seller.CatalogueURL)
	titleKey := identity.TitleKey(f.Title, seller.CatalogueURL)
	now := b.now()

	if idx, ok := b.byID[id]; ok {
		p := b.products[idx]
		b.merge(p, seller, f, link, now)
		return p
	}

	if link != "" {
		if idx, ok := b.byTitle[titleKey]; ok && !b.products[idx].HasLink() {
			p := b.products[idx]
			delete(b.byID, p.ID)
			delete(b.byTitle, titleKey)
			p.ID = id
			b.byID[id] = idx
			b.merge(p, seller, f, link, now)
			return p
		}
	}

	p := &types.Product{
		ID:                  id,
		SellerID:            seller.ID,
		ScrapeJobID:         b.job.ID,
		Title:               f.Title,
		Price:               priceOrDefault(f.Price),
		Description:         f.Description,
		Images:              append([]string{}, f.Images...),
		ProductLink:         types.StringPtr(link),
		IsOutOfStock:        f.IsOutOfStock,
		PhotoCount:          f.PhotoCount,
		Metadata:            metadataFor(seller),
		ScrapedAt:           now,
		LastSeenScrapeJobID: b.job.ID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	b.byID[id] = len(b.products)
	if link == "" {
		b.byTitle[titleKey] = len(b.products)
	}
	b.products = append(b.products, p)
	return p
}

func (b *Builder) merge(p *types.Product, seller *types.Seller, f ProductFields, link string, now time.Time) {
	p.SellerID = seller.ID
	p.Metadata = metadataFor(seller)
	p.Title = f.Title
	p.Price = priceOrDefault(f.Price)
	p.Description = f.Description
	p.IsOutOfStock = f.IsOutOfStock
	p.PhotoCount = f.PhotoCount
	if link != "" && !p.HasLink() {
		p.ProductLink = &link
	}
	if len(p.Images) == 0 && len(f.Images) > 0 {
		p.Images = append([]string{}, f.Images...)
	}
	p.ScrapedAt = now
	p.UpdatedAt = now
}

// MarkSellerProcessed appends name to the job's sellers_processed list.
func (b *Builder) MarkSellerProcessed(name string) {
	b.processed = append(b.processed, name)
	b.job.JobMetadata[types.MetaSellersProcessed] = append([]string{}, b.processed...)
}

// Finish completes the job and returns the snapshot. The builder must not be
// used afterwards.
func (b *Builder) Finish() *types.Snapshot {
	now := b.now()
	b.job.Status = types.JobCompleted
	b.job.CompletedAt = &now
	return b.snapshot(now)
}

// Fail marks the job failed with err and returns what was observed so far.
func (b *Builder) Fail(err error) *types.Snapshot {
	now := b.now()
	msg := err.Error()
	b.job.Status = types.JobFailed
	b.job.CompletedAt = &now
	b.job.ErrorMessage = &msg
	return b.snapshot(now)
}

func (b *Builder) snapshot(now time.Time) *types.Snapshot {
	b.job.TotalItems = len(b.products)
	b.job.TotalSellers = len(b.sellers)
	elapsed := now.Sub(b.started).Seconds()
	b.job.JobMetadata[types.MetaTotalTimeSeconds] = math.Round(elapsed*100) / 100

	products := make([]types.Product, len(b.products))
	for i, p := range b.products {
		products[i] = *p
	}
	return &types.Snapshot{
		ScrapeJob: b.job,
		Sellers:   b.sellers,
		Products:  products,
	}
}

func metadataFor(s *types.Seller) types.ProductMetadata {
	return types.ProductMetadata{
		CatalogueURL:  s.CatalogueURL,
		SellerName:    s.Name,
		SellerCity:    s.CityOrEmpty(),
		SellerContact: s.ContactOrEmpty(),
	}
}

func priceOrDefault(price string) string {
	if strings.TrimSpace(price) == "" {
		return types.PriceNotMentioned
	}
	return price
}
