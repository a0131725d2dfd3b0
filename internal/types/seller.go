package types

import (
	"time"

	"github.com/google/uuid"
)

// Seller is a catalog owner. Its ID is derived from CatalogueURL, so sellers
// are never duplicated across runs.
type Seller struct {
	ID           uuid.UUID `json:"id" validate:"required"`
	Name         string    `json:"name" validate:"required"`
	City         *string   `json:"city"`
	Contact      *string   `json:"contact"`
	CatalogueURL string    `json:"catalogue_url" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsActive     bool      `json:"is_active"`
}

// CityOrEmpty returns the city, or "" when unknown.
func (s *Seller) CityOrEmpty() string {
	if s.City == nil {
		return ""
	}
	return *s.City
}

// ContactOrEmpty returns the contact, or "" when unknown.
func (s *Seller) ContactOrEmpty() string {
	if s.Contact == nil {
		return ""
	}
	return *s.Contact
}

// StringPtr returns nil for blank strings and a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
