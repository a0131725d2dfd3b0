// Package types holds the domain records shared by the crawler, the snapshot
// builder and the reconciliation engine.
package types

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Snapshot is everything one run observed: the job, the sellers it visited
// (keyed by seller ID) and the products in observation order.
type Snapshot struct {
	ScrapeJob ScrapeJob             `json:"scrape_job"`
	Sellers   map[uuid.UUID]*Seller `json:"sellers" validate:"dive,required"`
	Products  []Product             `json:"products" validate:"dive"`
}

// SellerIDs returns the seller scope of the snapshot in a stable order.
func (s *Snapshot) SellerIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Sellers))
	for id := range s.Sellers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// ValidationError lists every malformed field found in a snapshot.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid snapshot: %s", strings.Join(e.Problems, "; "))
}

// Validate checks the snapshot shape and the cross-record invariants the
// reconciliation relies on. It never mutates the snapshot.
func (s *Snapshot) Validate() error {
	var problems []string

	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); !ok {
			return fmt.Errorf("failed to validate snapshot: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	for key, seller := range s.Sellers {
		if seller != nil && seller.ID != key {
			problems = append(problems, fmt.Sprintf("sellers[%s]: key does not match id %s", key, seller.ID))
		}
	}

	for i := range s.Products {
		p := &s.Products[i]
		if _, ok := s.Sellers[p.SellerID]; !ok && p.SellerID != uuid.Nil {
			problems = append(problems, fmt.Sprintf("products[%d]: seller %s not in snapshot", i, p.SellerID))
		}
		if p.IsRemoved && p.RemovedAt == nil {
			problems = append(problems, fmt.Sprintf("products[%d]: removed without removed_at", i))
		}
		if !p.IsRemoved && p.RemovedAt != nil {
			problems = append(problems, fmt.Sprintf("products[%d]: removed_at set on active product", i))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// ObservedKeys is the set of natural keys a snapshot observed, used to diff
// against stored lifecycle state.
type ObservedKeys struct {
	Links []string
	IDs   []uuid.UUID
}

// Contains reports whether a product with the given link and id was observed.
func (o ObservedKeys) Contains(link string, id uuid.UUID) bool {
	for _, observed := range o.IDs {
		if observed == id {
			return true
		}
	}
	if link == "" {
		return false
	}
	for _, observed := range o.Links {
		if observed == link {
			return true
		}
	}
	return false
}
