package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/catalog-sync/internal/types"
)

// -----------------------------------------------------------------------------
// Seller Methods
// -----------------------------------------------------------------------------

const sellerColumnList = `id, name, city, contact, catalogue_url, created_at, updated_at, is_active`

func scanSeller(row pgx.Row) (*types.Seller, error) {
	var s types.Seller
	if err := row.Scan(&s.ID, &s.Name, &s.City, &s.Contact, &s.CatalogueURL, &s.CreatedAt, &s.UpdatedAt, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListActiveSellers returns every active seller, ordered by name
func (db *DB) ListActiveSellers(ctx context.Context) ([]types.Seller, error) {
	return db.listSellers(ctx, true)
}

// ListSellers returns all sellers, active or not, ordered by name
func (db *DB) ListSellers(ctx context.Context) ([]types.Seller, error) {
	return db.listSellers(ctx, false)
}

func (db *DB) listSellers(ctx context.Context, activeOnly bool) ([]types.Seller, error) {
	query := `SELECT ` + sellerColumnList + ` FROM sellers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name, id`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sellers: %w", err)
	}
	defer rows.Close()

	var sellers []types.Seller
	for rows.Next() {
		s, err := scanSeller(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seller: %w", err)
		}
		sellers = append(sellers, *s)
	}
	return sellers, rows.Err()
}

// GetSeller retrieves a seller by ID. Returns nil, nil when not found.
func (db *DB) GetSeller(ctx context.Context, id uuid.UUID) (*types.Seller, error) {
	s, err := scanSeller(db.pool.QueryRow(ctx,
		`SELECT `+sellerColumnList+` FROM sellers WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get seller: %w", err)
	}
	return s, nil
}

// SetSellerActive activates or deactivates a seller. Sellers are never deleted.
func (db *DB) SetSellerActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE sellers SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update seller: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("seller not found: %s", id)
	}
	return nil
}

// UpsertResult counts rows created and refreshed by UpsertSellerRows
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// UpsertSellerRows inserts or refreshes sellers one statement per row in a
// single batch, reporting for each whether it was new.
func (db *DB) UpsertSellerRows(ctx context.Context, sellers []types.Seller) (*UpsertResult, error) {
	res := &UpsertResult{}
	if len(sellers) == 0 {
		return res, nil
	}

	b := &pgx.Batch{}
	for _, s := range sellers {
		b.Queue(
			`INSERT INTO sellers (id, name, city, contact, catalogue_url, is_active)
			 VALUES ($1, $2, $3, $4, $5, TRUE)
			 ON CONFLICT (id) DO UPDATE SET
			     name = EXCLUDED.name,
			     city = EXCLUDED.city,
			     contact = EXCLUDED.contact,
			     catalogue_url = EXCLUDED.catalogue_url,
			     is_active = TRUE,
			     updated_at = NOW()
			 RETURNING (xmax = 0) AS inserted`,
			s.ID, s.Name, s.City, s.Contact, s.CatalogueURL,
		)
	}

	br := db.pool.SendBatch(ctx, b)
	for _, s := range sellers {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			_ = br.Close()
			return res, fmt.Errorf("failed to upsert seller %s: %w", s.Name, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := br.Close(); err != nil {
		return res, fmt.Errorf("failed to close seller batch: %w", err)
	}
	return res, nil
}
