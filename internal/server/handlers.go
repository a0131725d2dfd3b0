package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/catalog-sync/internal/db"
)

const defaultJobLimit = 20

// ListResponse wraps every collection endpoint.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

func (s *Server) handleListSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := s.store.ListSellers(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newListResponse(sellers))
}

func (s *Server) handleGetSeller(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "seller")
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	seller, err := s.store.GetSeller(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if seller == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "seller", ID: id.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, seller)
}

func (s *Server) handleListSellerProducts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "seller")
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	seller, err := s.store.GetSeller(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if seller == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "seller", ID: id.String()})
		return
	}

	filters, err := productFilters(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	filters.SellerID = id
	s.listProducts(w, r, filters)
}

// handleListProducts supports ?status=active|removed|all, ?seller_id= and ?limit=.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filters, err := productFilters(r)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("seller_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.handleError(w, r, &ErrValidation{Field: "seller_id", Message: "must be a UUID"})
			return
		}
		filters.SellerID = id
	}
	s.listProducts(w, r, filters)
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request, filters db.ProductFilters) {
	products, err := s.store.ListProducts(r.Context(), filters)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newListResponse(products))
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "product")
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	product, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if product == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "product", ID: id.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, product)
}

func (s *Server) handleListScrapeJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultJobLimit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	jobs, err := s.store.ListScrapeJobs(r.Context(), limit)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newListResponse(jobs))
}

func (s *Server) handleGetScrapeJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "scrape job")
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	job, err := s.store.GetScrapeJob(r.Context(), id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if job == nil {
		s.handleError(w, r, &ErrNotFound{Resource: "scrape job", ID: id.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func pathID(r *http.Request, resource string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "invalid " + resource + " ID"}
	}
	return id, nil
}

func productFilters(r *http.Request) (db.ProductFilters, error) {
	var filters db.ProductFilters

	switch status := r.URL.Query().Get("status"); status {
	case "", db.StatusActive, db.StatusRemoved, db.StatusAll:
		filters.Status = status
	default:
		return filters, &ErrValidation{Field: "status", Message: "must be one of active, removed, all"}
	}

	limit, err := queryLimit(r, 0)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit
	return filters, nil
}

func queryLimit(r *http.Request, fallback int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &ErrValidation{Field: "limit", Message: "must be a positive integer"}
	}
	return limit, nil
}
