package types

import (
	"time"

	"github.com/google/uuid"
)

// PriceNotMentioned is stored when a listing carries no price text.
const PriceNotMentioned = "Not mentioned"

// ProductMetadata holds seller fields denormalized onto each product.
type ProductMetadata struct {
	CatalogueURL  string `json:"catalogue_url"`
	SellerName    string `json:"seller_name"`
	SellerCity    string `json:"seller_city"`
	SellerContact string `json:"seller_contact"`
}

// Product is a single listing observed in a seller's catalog.
type Product struct {
	ID                  uuid.UUID       `json:"id" validate:"required"`
	SellerID            uuid.UUID       `json:"seller_id" validate:"required"`
	ScrapeJobID         uuid.UUID       `json:"scrape_job_id" validate:"required"`
	Title               string          `json:"title"`
	Price               string          `json:"price"`
	Description         string          `json:"description"`
	Images              []string        `json:"images"`
	ProductLink         *string         `json:"product_link"`
	IsOutOfStock        bool            `json:"is_out_of_stock"`
	PhotoCount          int             `json:"photo_count" validate:"gte=0"`
	Metadata            ProductMetadata `json:"metadata"`
	ScrapedAt           time.Time       `json:"scraped_at"`
	LastSeenScrapeJobID uuid.UUID       `json:"last_seen_scrape_job_id"`
	IsRemoved           bool            `json:"is_removed"`
	RemovedAt           *time.Time      `json:"removed_at"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Link returns the product link, or "" when the listing has none.
func (p *Product) Link() string {
	if p.ProductLink == nil {
		return ""
	}
	return *p.ProductLink
}

// HasLink reports whether the product carries its natural de-dup key.
func (p *Product) HasLink() bool {
	return p.Link() != ""
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (p Product) Clone() Product {
	if p.Images != nil {
		p.Images = append(make([]string, 0, len(p.Images)), p.Images...)
	}
	if p.ProductLink != nil {
		link := *p.ProductLink
		p.ProductLink = &link
	}
	if p.RemovedAt != nil {
		at := *p.RemovedAt
		p.RemovedAt = &at
	}
	return p
}
