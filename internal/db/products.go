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
// Product Methods
// -----------------------------------------------------------------------------

// Product status filters
const (
	StatusActive  = "active"
	StatusRemoved = "removed"
	StatusAll     = "all"
)

const (
	defaultProductLimit = 100
	maxProductLimit     = 1000
)

// ProductFilters holds optional filters for listing products
type ProductFilters struct {
	Status   string
	SellerID uuid.UUID
	Limit    int
}

const productColumnList = `id, seller_id, scrape_job_id, title, price, description, images, product_link,
	is_out_of_stock, photo_count, metadata, scraped_at, last_seen_scrape_job_id, is_removed, removed_at,
	created_at, updated_at`

func scanProduct(row pgx.Row) (*types.Product, error) {
	var p types.Product
	var imagesJSON, metadataJSON []byte
	var lastSeen *uuid.UUID
	err := row.Scan(&p.ID, &p.SellerID, &p.ScrapeJobID, &p.Title, &p.Price, &p.Description, &imagesJSON,
		&p.ProductLink, &p.IsOutOfStock, &p.PhotoCount, &metadataJSON, &p.ScrapedAt, &lastSeen,
		&p.IsRemoved, &p.RemovedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen != nil {
		p.LastSeenScrapeJobID = *lastSeen
	}

	// Parse JSONB fields
	if imagesJSON != nil {
		_ = json.Unmarshal(imagesJSON, &p.Images)
	}
	if metadataJSON != nil {
		_ = json.Unmarshal(metadataJSON, &p.Metadata)
	}
	return &p, nil
}

// buildProductQuery renders the SELECT for ListProducts.
func buildProductQuery(filters ProductFilters) (string, []any, error) {
	query := `SELECT ` + productColumnList + ` FROM products WHERE 1=1`
	args := []any{}
	argNum := 1

	switch filters.Status {
	case "", StatusActive:
		query += " AND is_removed = FALSE"
	case StatusRemoved:
		query += " AND is_removed = TRUE"
	case StatusAll:
	default:
		return "", nil, fmt.Errorf("unknown product status %q", filters.Status)
	}

	if filters.SellerID != uuid.Nil {
		query += fmt.Sprintf(" AND seller_id = $%d", argNum)
		args = append(args, filters.SellerID)
		argNum++
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultProductLimit
	}
	if limit > maxProductLimit {
		limit = maxProductLimit
	}
	query += fmt.Sprintf(" ORDER BY scraped_at DESC, id LIMIT $%d", argNum)
	args = append(args, limit)

	return query, args, nil
}

// ListProducts retrieves products with optional filters. Active products are
// returned by default.
func (db *DB) ListProducts(ctx context.Context, filters ProductFilters) ([]types.Product, error) {
	query, args, err := buildProductQuery(filters)
	if err != nil {
		return nil, err
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// GetProduct retrieves a product by ID. Returns nil, nil when not found.
func (db *DB) GetProduct(ctx context.Context, id uuid.UUID) (*types.Product, error) {
	p, err := scanProduct(db.pool.QueryRow(ctx,
		`SELECT `+productColumnList+` FROM products WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ActiveProducts returns every product that is currently listed, newest first.
func (db *DB) ActiveProducts(ctx context.Context) ([]types.Product, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+productColumnList+` FROM products WHERE is_removed = FALSE ORDER BY scraped_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active products: %w", err)
	}
	defer rows.Close()

	var products []types.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}
