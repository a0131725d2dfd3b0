package db

import (
	"context"
	"fmt"
)

// schemaStatements create the catalog tables. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scrape_jobs (
		id             UUID PRIMARY KEY,
		status         TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
		started_at     TIMESTAMPTZ NOT NULL,
		completed_at   TIMESTAMPTZ,
		total_items    INTEGER NOT NULL DEFAULT 0,
		total_sellers  INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		job_metadata   JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS sellers (
		id             UUID PRIMARY KEY,
		name           TEXT NOT NULL,
		city           TEXT,
		contact        TEXT,
		catalogue_url  TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active      BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id                       UUID PRIMARY KEY,
		seller_id                UUID NOT NULL REFERENCES sellers(id),
		scrape_job_id            UUID NOT NULL REFERENCES scrape_jobs(id),
		title                    TEXT NOT NULL DEFAULT '',
		price                    TEXT NOT NULL DEFAULT 'Not mentioned',
		description              TEXT NOT NULL DEFAULT '',
		images                   JSONB NOT NULL DEFAULT '[]'::jsonb,
		product_link             TEXT,
		is_out_of_stock          BOOLEAN NOT NULL DEFAULT FALSE,
		photo_count              INTEGER NOT NULL DEFAULT 0,
		metadata                 JSONB NOT NULL DEFAULT '{}'::jsonb,
		scraped_at               TIMESTAMPTZ NOT NULL,
		last_seen_scrape_job_id  UUID REFERENCES scrape_jobs(id),
		is_removed               BOOLEAN NOT NULL DEFAULT FALSE,
		removed_at               TIMESTAMPTZ,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT products_removed_at_check CHECK (is_removed = (removed_at IS NOT NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS products_product_link_key
		ON products (product_link) WHERE product_link IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS products_seller_removed_idx ON products (seller_id, is_removed)`,
	`CREATE INDEX IF NOT EXISTS products_last_seen_idx ON products (last_seen_scrape_job_id)`,
	`CREATE OR REPLACE VIEW active_products AS
		SELECT p.*, s.name AS seller_name, s.city AS seller_city, s.contact AS seller_contact
		FROM products p JOIN sellers s ON s.id = p.seller_id
		WHERE p.is_removed = FALSE`,
}

// EnsureSchema creates the tables, indexes and views if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
