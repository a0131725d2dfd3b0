package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/jonathan/catalog-sync/internal/types"
)

// pgTx implements reconcile.Tx with one set-based statement per call.
type pgTx struct {
	tx pgx.Tx
}

var _ reconcile.Tx = (*pgTx)(nil)

func (t *pgTx) UpsertJob(ctx context.Context, job *types.ScrapeJob) error {
	metadata, err := marshalMetadata(job.JobMetadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO scrape_jobs (id, status, started_at, completed_at, total_items, total_sellers, error_message, job_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     status = EXCLUDED.status,
		     started_at = EXCLUDED.started_at,
		     completed_at = EXCLUDED.completed_at,
		     total_items = EXCLUDED.total_items,
		     total_sellers = EXCLUDED.total_sellers,
		     error_message = EXCLUDED.error_message,
		     job_metadata = EXCLUDED.job_metadata`,
		job.ID, string(job.Status), job.StartedAt, job.CompletedAt, job.TotalItems, job.TotalSellers,
		job.ErrorMessage, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert scrape job: %w", err)
	}
	return nil
}

func (t *pgTx) BulkUpsertSellers(ctx context.Context, sellers []types.Seller) error {
	if len(sellers) == 0 {
		return nil
	}
	cols := sellerColumnsOf(sellers)
	_, err := t.tx.Exec(ctx,
		`INSERT INTO sellers (id, name, city, contact, catalogue_url, created_at, updated_at, is_active)
		 SELECT u.id, u.name, u.city, u.contact, u.catalogue_url, u.created_at, u.updated_at, u.is_active
		 FROM unnest($1::uuid[], $2::text[], $3::text[], $4::text[], $5::text[], $6::timestamptz[], $7::timestamptz[], $8::bool[])
		     AS u(id, name, city, contact, catalogue_url, created_at, updated_at, is_active)
		 ON CONFLICT (id) DO UPDATE SET
		     name = EXCLUDED.name,
		     city = EXCLUDED.city,
		     contact = EXCLUDED.contact,
		     catalogue_url = EXCLUDED.catalogue_url,
		     updated_at = EXCLUDED.updated_at,
		     is_active = EXCLUDED.is_active`,
		cols.ids, cols.names, cols.cities, cols.contacts, cols.urls, cols.createdAt, cols.updatedAt, cols.active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sellers: %w", err)
	}
	return nil
}

func (t *pgTx) FindExistingByNaturalKey(ctx context.Context, links []string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID)
	if len(links) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT product_link, id FROM products WHERE product_link = ANY($1::text[])`,
		links,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up products by link: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link string
		var id uuid.UUID
		if err := rows.Scan(&link, &id); err != nil {
			return nil, fmt.Errorf("failed to scan product link: %w", err)
		}
		out[link] = id
	}
	return out, rows.Err()
}

func (t *pgTx) FindExistingIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool)
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT id FROM products WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (t *pgTx) BulkInsertProducts(ctx context.Context, products []types.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}
	cols, err := productColumnsOf(products)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO products (id, seller_id, scrape_job_id, title, price, description, images, product_link,
		                       is_out_of_stock, photo_count, metadata, scraped_at, last_seen_scrape_job_id,
		                       is_removed, removed_at, created_at, updated_at)
		 SELECT u.id, u.seller_id, u.scrape_job_id, u.title, u.price, u.description, u.images::jsonb, u.product_link,
		        u.is_out_of_stock, u.photo_count, u.metadata::jsonb, u.scraped_at, u.last_seen,
		        FALSE, NULL, u.created_at, u.updated_at
		 FROM unnest($1::uuid[], $2::uuid[], $3::uuid[], $4::text[], $5::text[], $6::text[], $7::text[], $8::text[],
		             $9::bool[], $10::int[], $11::text[], $12::timestamptz[], $13::uuid[], $14::timestamptz[], $15::timestamptz[])
		     AS u(id, seller_id, scrape_job_id, title, price, description, images, product_link,
		          is_out_of_stock, photo_count, metadata, scraped_at, last_seen, created_at, updated_at)`,
		cols.ids, cols.sellerIDs, cols.jobIDs, cols.titles, cols.prices, cols.descriptions, cols.images, cols.links,
		cols.outOfStock, cols.photoCounts, cols.metadata, cols.scrapedAt, cols.lastSeen, cols.createdAt, cols.updatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert products: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) BulkUpdateProducts(ctx context.Context, products []types.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}
	cols, err := productColumnsOf(products)
	if err != nil {
		return 0, err
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE products AS p SET
		     seller_id = u.seller_id,
		     title = u.title,
		     price = u.price,
		     description = u.description,
		     images = u.images::jsonb,
		     product_link = COALESCE(u.product_link, p.product_link),
		     is_out_of_stock = u.is_out_of_stock,
		     photo_count = u.photo_count,
		     metadata = u.metadata::jsonb,
		     scraped_at = u.scraped_at,
		     last_seen_scrape_job_id = u.last_seen,
		     updated_at = u.updated_at
		 FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[],
		             $8::bool[], $9::int[], $10::text[], $11::timestamptz[], $12::uuid[], $13::timestamptz[])
		     AS u(id, seller_id, title, price, description, images, product_link,
		          is_out_of_stock, photo_count, metadata, scraped_at, last_seen, updated_at)
		 WHERE p.id = u.id`,
		cols.ids, cols.sellerIDs, cols.titles, cols.prices, cols.descriptions, cols.images, cols.links,
		cols.outOfStock, cols.photoCounts, cols.metadata, cols.scrapedAt, cols.lastSeen, cols.updatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update products: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) MarkMissingAsRemoved(ctx context.Context, sellerIDs []uuid.UUID, jobID uuid.UUID, observed types.ObservedKeys, removedAt time.Time) (int, error) {
	if len(sellerIDs) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET is_removed = TRUE, removed_at = $3, updated_at = $3
		 WHERE seller_id = ANY($1::uuid[])
		   AND is_removed = FALSE
		   AND last_seen_scrape_job_id IS DISTINCT FROM $2
		   AND NOT (id = ANY($4::uuid[]))
		   AND (product_link IS NULL OR NOT (product_link = ANY($5::text[])))`,
		sellerIDs, jobID, removedAt, nonNilIDs(observed.IDs), nonNilStrings(observed.Links),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark missing products removed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) MarkReappearedAsActive(ctx context.Context, jobID uuid.UUID, observed types.ObservedKeys) (int, error) {
	if len(observed.IDs) == 0 && len(observed.Links) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET is_removed = FALSE, removed_at = NULL, last_seen_scrape_job_id = $1, updated_at = NOW()
		 WHERE is_removed = TRUE
		   AND (id = ANY($2::uuid[]) OR product_link = ANY($3::text[]))`,
		jobID, nonNilIDs(observed.IDs), nonNilStrings(observed.Links),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reactivate products: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// -----------------------------------------------------------------------------
// Column builders
// -----------------------------------------------------------------------------

type sellerColumns struct {
	ids       []uuid.UUID
	names     []string
	cities    []*string
	contacts  []*string
	urls      []string
	createdAt []time.Time
	updatedAt []time.Time
	active    []bool
}

func sellerColumnsOf(sellers []types.Seller) sellerColumns {
	n := len(sellers)
	c := sellerColumns{
		ids:       make([]uuid.UUID, 0, n),
		names:     make([]string, 0, n),
		cities:    make([]*string, 0, n),
		contacts:  make([]*string, 0, n),
		urls:      make([]string, 0, n),
		createdAt: make([]time.Time, 0, n),
		updatedAt: make([]time.Time, 0, n),
		active:    make([]bool, 0, n),
	}
	now := time.Now().UTC()
	for _, s := range sellers {
		c.ids = append(c.ids, s.ID)
		c.names = append(c.names, s.Name)
		c.cities = append(c.cities, s.City)
		c.contacts = append(c.contacts, s.Contact)
		c.urls = append(c.urls, s.CatalogueURL)
		c.createdAt = append(c.createdAt, orNow(s.CreatedAt, now))
		c.updatedAt = append(c.updatedAt, orNow(s.UpdatedAt, now))
		c.active = append(c.active, s.IsActive)
	}
	return c
}

type productColumns struct {
	ids          []uuid.UUID
	sellerIDs    []uuid.UUID
	jobIDs       []uuid.UUID
	titles       []string
	prices       []string
	descriptions []string
	images       []string
	links        []*string
	outOfStock   []bool
	photoCounts  []int32
	metadata     []string
	scrapedAt    []time.Time
	lastSeen     []uuid.UUID
	createdAt    []time.Time
	updatedAt    []time.Time
}

// productColumnsOf transposes products into parallel arrays for unnest.
// JSON columns travel as text and are cast to jsonb in SQL.
func productColumnsOf(products []types.Product) (productColumns, error) {
	n := len(products)
	c := productColumns{
		ids:          make([]uuid.UUID, 0, n),
		sellerIDs:    make([]uuid.UUID, 0, n),
		jobIDs:       make([]uuid.UUID, 0, n),
		titles:       make([]string, 0, n),
		prices:       make([]string, 0, n),
		descriptions: make([]string, 0, n),
		images:       make([]string, 0, n),
		links:        make([]*string, 0, n),
		outOfStock:   make([]bool, 0, n),
		photoCounts:  make([]int32, 0, n),
		metadata:     make([]string, 0, n),
		scrapedAt:    make([]time.Time, 0, n),
		lastSeen:     make([]uuid.UUID, 0, n),
		createdAt:    make([]time.Time, 0, n),
		updatedAt:    make([]time.Time, 0, n),
	}
	now := time.Now().UTC()
	for _, p := range products {
		images, err := json.Marshal(nonNilStrings(p.Images))
		if err != nil {
			return productColumns{}, fmt.Errorf("failed to marshal images for %s: %w", p.ID, err)
		}
		metadata, err := json.Marshal(p.Metadata)
		if err != nil {
			return productColumns{}, fmt.Errorf("failed to marshal metadata for %s: %w", p.ID, err)
		}
		var link *string
		if p.HasLink() {
			l := p.Link()
			link = &l
		}
		c.ids = append(c.ids, p.ID)
		c.sellerIDs = append(c.sellerIDs, p.SellerID)
		c.jobIDs = append(c.jobIDs, p.ScrapeJobID)
		c.titles = append(c.titles, p.Title)
		c.prices = append(c.prices, p.Price)
		c.descriptions = append(c.descriptions, p.Description)
		c.images = append(c.images, string(images))
		c.links = append(c.links, link)
		c.outOfStock = append(c.outOfStock, p.IsOutOfStock)
		c.photoCounts = append(c.photoCounts, int32(p.PhotoCount))
		c.metadata = append(c.metadata, string(metadata))
		c.scrapedAt = append(c.scrapedAt, orNow(p.ScrapedAt, now))
		c.lastSeen = append(c.lastSeen, p.LastSeenScrapeJobID)
		c.createdAt = append(c.createdAt, orNow(p.CreatedAt, now))
		c.updatedAt = append(c.updatedAt, orNow(p.UpdatedAt, now))
	}
	return c, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job metadata: %w", err)
	}
	return data, nil
}

// pgx encodes nil slices as NULL, which would turn ANY() into NULL.
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
