// Package search publishes products to a hosted search index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/types"
)

// DefaultBatchSize is the number of records sent per save call.
const DefaultBatchSize = 100

// Record is the indexed form of a product.
type Record struct {
	ObjectID       string    `json:"objectID"`
	Title          string    `json:"title"`
	Price          string    `json:"price"`
	Description    string    `json:"description"`
	ProductLink    string    `json:"product_link,omitempty"`
	Images         []string  `json:"images,omitempty"`
	PhotoCount     int       `json:"photo_count"`
	IsOutOfStock   bool      `json:"is_out_of_stock"`
	IsRemoved      bool      `json:"is_removed"`
	SellerID       string    `json:"seller_id"`
	SellerName     string    `json:"seller_name"`
	SellerCity     string    `json:"seller_city,omitempty"`
	SellerContact  string    `json:"seller_contact,omitempty"`
	CatalogueURL   string    `json:"catalogue_url"`
	ScrapedAt      time.Time `json:"scraped_at"`
	SearchableText string    `json:"searchable_text"`
}

// Settings are the ranking and retrieval settings applied to the index.
type Settings struct {
	SearchableAttributes  []string
	AttributesForFaceting []string
	CustomRanking         []string
	AttributesToRetrieve  []string
}

// DefaultSettings favours recent listings with more photos that are in stock.
func DefaultSettings() Settings {
	return Settings{
		SearchableAttributes:  []string{"title", "description", "seller_name", "seller_city", "searchable_text"},
		AttributesForFaceting: []string{"seller_name", "seller_city", "is_out_of_stock", "is_removed", "photo_count"},
		CustomRanking:         []string{"desc(scraped_at)", "desc(photo_count)", "asc(is_out_of_stock)"},
		AttributesToRetrieve: []string{
			"title", "price", "description", "product_link", "images",
			"seller_name", "seller_city", "seller_contact", "catalogue_url", "photo_count",
		},
	}
}

// Index is a search index that accepts whole-record writes.
type Index interface {
	ClearObjects(ctx context.Context) error
	SaveObjects(ctx context.Context, records []Record) error
	SetSettings(ctx context.Context, settings Settings) error
}

// NewRecord builds the indexed form of p. Seller fields come from seller
// when known, else from the product's denormalized metadata.
func NewRecord(p types.Product, seller *types.Seller) Record {
	r := Record{
		ObjectID:      p.ID.String(),
		Title:         p.Title,
		Price:         p.Price,
		Description:   p.Description,
		ProductLink:   p.Link(),
		Images:        p.Images,
		PhotoCount:    p.PhotoCount,
		IsOutOfStock:  p.IsOutOfStock,
		IsRemoved:     p.IsRemoved,
		SellerID:      p.SellerID.String(),
		SellerName:    p.Metadata.SellerName,
		SellerCity:    p.Metadata.SellerCity,
		SellerContact: p.Metadata.SellerContact,
		CatalogueURL:  p.Metadata.CatalogueURL,
		ScrapedAt:     p.ScrapedAt,
	}
	if seller != nil {
		r.SellerName = seller.Name
		r.SellerCity = seller.CityOrEmpty()
		r.SellerContact = seller.ContactOrEmpty()
		r.CatalogueURL = seller.CatalogueURL
	}
	r.SearchableText = strings.Join(strings.Fields(
		strings.Join([]string{r.Title, r.Description, r.SellerName, r.SellerCity}, " "),
	), " ")
	return r
}

// RecordsFromSnapshot converts every product in snap, skipping removed ones.
func RecordsFromSnapshot(snap *types.Snapshot) []Record {
	return Records(snap.Products, snap.Sellers)
}

// Records converts products that are not removed, joining their sellers.
func Records(products []types.Product, sellers map[uuid.UUID]*types.Seller) []Record {
	out := make([]Record, 0, len(products))
	for _, p := range products {
		if p.IsRemoved {
			continue
		}
		out = append(out, NewRecord(p, sellers[p.SellerID]))
	}
	return out
}

// SyncOptions controls Sync.
type SyncOptions struct {
	Clear     bool // empty the index before writing
	BatchSize int
	Settings  *Settings // applied after writing when non-nil
	Logger    *slog.Logger
}

// SyncResult reports what Sync wrote.
type SyncResult struct {
	Indexed       int `json:"indexed"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
}

// Sync writes records to idx in batches. A failed batch is logged and
// skipped; failing to clear or to apply settings is returned as an error.
func Sync(ctx context.Context, idx Index, records []Record, opts SyncOptions) (*SyncResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	if opts.Clear {
		logger.Info("clearing search index")
		if err := idx.ClearObjects(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear index: %w", err)
		}
	}

	res := &SyncResult{}
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		res.Batches++
		if err := idx.SaveObjects(ctx, batch); err != nil {
			res.FailedBatches++
			logger.Error("failed to index batch",
				slog.Int("batch", res.Batches),
				slog.Int("size", len(batch)),
				slog.Any("error", err),
			)
			continue
		}
		res.Indexed += len(batch)
		logger.Debug("indexed batch", slog.Int("batch", res.Batches), slog.Int("size", len(batch)))
	}

	if opts.Settings != nil && len(records) > 0 {
		if err := idx.SetSettings(ctx, *opts.Settings); err != nil {
			return res, fmt.Errorf("failed to apply index settings: %w", err)
		}
	}

	logger.Info("search index synced",
		slog.Int("indexed", res.Indexed),
		slog.Int("failed_batches", res.FailedBatches),
	)
	return res, nil
}
