// Package sellers reads seller lists and loads them into the store.
package sellers

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/types"
)

// Accepted header spellings, first match wins.
var (
	nameColumns    = []string{"name", "seller_name"}
	cityColumns    = []string{"city", "seller_city"}
	contactColumns = []string{"contact", "seller_contact"}
	linkColumns    = []string{"catalogue_link", "catalogue_url"}
)

// ColumnError reports a CSV header that lacks a required column.
type ColumnError struct {
	Missing   []string
	Available []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("missing required columns %v (available: %v)", e.Missing, e.Available)
}

// SkippedRow is a data row that was ignored, with the reason.
type SkippedRow struct {
	Line   int
	Reason string
}

// ReadResult holds the parsed sellers and the rows that were skipped.
type ReadResult struct {
	Sellers []types.Seller
	Skipped []SkippedRow
}

// Read parses a seller CSV. A name column and a catalogue link column are
// required; city and contact are optional. Rows without a catalogue link are
// skipped and rows without a name get a placeholder name.
func Read(r io.Reader) (*ReadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("seller CSV is empty")
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	nameCol := findColumn(index, nameColumns)
	linkCol := findColumn(index, linkColumns)
	cityCol := findColumn(index, cityColumns)
	contactCol := findColumn(index, contactColumns)

	var missing []string
	if nameCol < 0 {
		missing = append(missing, nameColumns[0])
	}
	if linkCol < 0 {
		missing = append(missing, linkColumns[0])
	}
	if len(missing) > 0 {
		return nil, &ColumnError{Missing: missing, Available: header}
	}

	res := &ReadResult{}
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line := row + 2
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedRow{Line: line, Reason: err.Error()})
			continue
		}

		link := field(record, linkCol)
		if link == "" {
			res.Skipped = append(res.Skipped, SkippedRow{Line: line, Reason: "no catalogue URL"})
			continue
		}
		name := field(record, nameCol)
		if name == "" {
			name = fmt.Sprintf("Seller_%d", row)
		}

		res.Sellers = append(res.Sellers, types.Seller{
			ID:           identity.SellerID(link),
			Name:         name,
			City:         types.StringPtr(field(record, cityCol)),
			Contact:      types.StringPtr(field(record, contactCol)),
			CatalogueURL: link,
			IsActive:     true,
		})
	}
	return res, nil
}

// ReadFile parses the seller CSV at path.
func ReadFile(path string) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seller CSV: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

func findColumn(index map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := index[n]; ok {
			return i
		}
	}
	return -1
}

func field(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

// Upserter persists sellers and reports inserted vs updated counts.
type Upserter interface {
	UpsertSellerRows(ctx context.Context, sellers []types.Seller) (*db.UpsertResult, error)
}

// Load reads the CSV at path and upserts every valid row by its deterministic ID.
func Load(ctx context.Context, store Upserter, path string, logger *slog.Logger) (*db.UpsertResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parsed, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, s := range parsed.Skipped {
		logger.Warn("skipping seller row", slog.Int("line", s.Line), slog.String("reason", s.Reason))
	}
	logger.Info("loaded seller CSV", slog.String("path", path), slog.Int("rows", len(parsed.Sellers)))

	res, err := store.UpsertSellerRows(ctx, parsed.Sellers)
	if err != nil {
		return res, fmt.Errorf("failed to load sellers: %w", err)
	}
	return res, nil
}
