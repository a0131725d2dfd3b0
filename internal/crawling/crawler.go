package crawling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/fetch"
	"github.com/jonathan/catalog-sync/internal/snapshot"
	"github.com/jonathan/catalog-sync/internal/types"
)

// ImageUploader copies listing images to durable storage and returns the
// stored URLs. Failures for individual images are dropped.
type ImageUploader interface {
	UploadAll(ctx context.Context, urls []string) []string
}

// Crawler fetches seller catalogs and records matching listings on a
// snapshot builder.
type Crawler struct {
	fetcher   fetch.Fetcher
	selectors config.Selectors
	filter    *KeywordFilter
	images    ImageUploader
	logger    *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithImages uploads listing images through u. Without it the source URLs are kept.
func WithImages(u ImageUploader) Option {
	return func(c *Crawler) { c.images = u }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Crawler) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a crawler.
func New(fetcher fetch.Fetcher, selectors config.Selectors, filter *KeywordFilter, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:   fetcher,
		selectors: selectors,
		filter:    filter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.filter == nil {
		c.filter = NewKeywordFilter(nil, 0)
	}
	return c
}

// Summary reports the outcome of crawling a seller list.
type Summary struct {
	Items   int
	Sellers int
	Failed  []string
}

// Crawl visits every seller in order. A seller whose catalog cannot be
// fetched is logged and left out of the snapshot, so its stored products are
// not touched by the following reconciliation. Only context cancellation
// stops the crawl early.
func (c *Crawler) Crawl(ctx context.Context, b *snapshot.Builder, sellers []types.Seller) (*Summary, error) {
	sum := &Summary{}
	for i := range sellers {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		n, err := c.CrawlSeller(ctx, b, sellers[i])
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			sum.Failed = append(sum.Failed, sellers[i].Name)
			continue
		}
		sum.Sellers++
		sum.Items += n
	}
	return sum, nil
}

// CrawlSeller fetches one catalog and records its matching listings.
// It returns the number of listings recorded.
func (c *Crawler) CrawlSeller(ctx context.Context, b *snapshot.Builder, s types.Seller) (int, error) {
	start := time.Now()
	log := c.logger.With(slog.String("seller", s.Name), slog.String("url", s.CatalogueURL))
	log.Info("scraping seller")

	page, err := c.fetcher.Fetch(ctx, s.CatalogueURL)
	if err != nil {
		log.Error("failed to fetch catalog", slog.Any("error", err))
		return 0, &CrawlError{Seller: s.Name, URL: s.CatalogueURL, Message: "failed to fetch catalog", Cause: err}
	}

	listings, err := ExtractListings(page.HTML, s.CatalogueURL, c.selectors)
	if err != nil {
		log.Error("failed to parse catalog", slog.Any("error", err))
		return 0, &CrawlError{Seller: s.Name, URL: s.CatalogueURL, Message: "failed to parse catalog", Cause: err}
	}

	seller := b.ObserveSeller(s.Name, s.CityOrEmpty(), s.ContactOrEmpty(), s.CatalogueURL)

	count := 0
	for i, l := range listings {
		if !c.filter.Match(l.Title) {
			continue
		}
		price, outOfStock := ParsePrice(l.PriceText)
		if outOfStock {
			log.Debug("skipping out of stock listing", slog.String("title", l.Title))
			continue
		}

		fields := snapshot.ProductFields{
			Title:        l.Title,
			Price:        price,
			Description:  l.Description,
			ProductLink:  l.Link,
			IsOutOfStock: outOfStock,
			PhotoCount:   l.PhotoCount,
		}
		fields.Images = c.imagesFor(ctx, b, seller, fields, l.Images)

		b.ObserveProduct(seller, fields)
		count++
		log.Debug("scraped listing",
			slog.Int("index", i+1),
			slog.String("title", l.Title),
			slog.String("price", price),
		)
	}

	if count > 0 {
		b.MarkSellerProcessed(seller.Name)
	}
	log.Info("scraped seller",
		slog.Int("items", count),
		slog.Int("listings", len(listings)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return count, nil
}

// imagesFor uploads sources unless the product was already recorded in this
// run with images, which the builder keeps.
func (c *Crawler) imagesFor(ctx context.Context, b *snapshot.Builder, seller *types.Seller, f snapshot.ProductFields, sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	if existing, ok := b.Lookup(seller, f); ok && len(existing.Images) > 0 {
		return nil
	}
	if c.images == nil {
		return sources
	}
	return c.images.UploadAll(ctx, sources)
}
