package snapshot

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonathan/catalog-sync/internal/schemas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample() *Builder {
	b := NewBuilder(WithClock(fixedClock()))
	s := b.ObserveSeller("Shop", "Sfax", "", "https://shop.example")
	b.ObserveProduct(s, ProductFields{Title: "iPhone 13", Price: "650", ProductLink: "https://shop.example/p1", Images: []string{"a.jpg"}, PhotoCount: 1})
	b.ObserveProduct(s, ProductFields{Title: "iPhone 12", Description: "used"})
	b.MarkSellerProcessed("Shop")
	return b
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	snap := buildSample().Finish()
	path := filepath.Join(t.TempDir(), "out", "snapshot.json")

	require.NoError(t, Save(path, snap))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, snap.ScrapeJob.ID, loaded.ScrapeJob.ID)
	assert.Equal(t, snap.ScrapeJob.StartedAt, loaded.ScrapeJob.StartedAt)
	assert.Equal(t, snap.Products, loaded.Products)
	require.Len(t, loaded.Sellers, 1)
	for id, s := range snap.Sellers {
		assert.Equal(t, s, loaded.Sellers[id])
	}
	assert.NoError(t, loaded.Validate())

	// A second save of the loaded snapshot is byte-identical.
	again := filepath.Join(t.TempDir(), "again.json")
	require.NoError(t, Save(again, loaded))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestDecode_SchemaViolation(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"scrape_job": {"id": "nope", "status": "completed", "started_at": "x"}, "sellers": {}, "products": []}`))
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	var verr *schemas.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDecode_NotJSON(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not json")))
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open snapshot")
}
