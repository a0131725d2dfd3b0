package sellers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	input := "name,city,contact,catalogue_link\n" +
		"Shop A,Tunis,555,https://a.example/catalog\n" +
		"Shop B,,,https://b.example/catalog\n" +
		"Shop C,Sfax,1,\n" +
		",Sousse,,https://d.example/catalog\n"

	res, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Sellers, 3)

	a := res.Sellers[0]
	assert.Equal(t, identity.SellerID("https://a.example/catalog"), a.ID)
	assert.Equal(t, "Tunis", a.CityOrEmpty())
	assert.Equal(t, "555", a.ContactOrEmpty())
	assert.True(t, a.IsActive)

	assert.Nil(t, res.Sellers[1].City)
	assert.Equal(t, "Seller_3", res.Sellers[2].Name)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 4, res.Skipped[0].Line)
	assert.Equal(t, "no catalogue URL", res.Skipped[0].Reason)
}

func TestRead_AlternateHeaders(t *testing.T) {
	input := "\ufeffSeller_Name,seller_city,seller_contact,catalogue_url\nShop,City,1,https://x.example\n"
	res, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Sellers, 1)
	assert.Equal(t, "Shop", res.Sellers[0].Name)
	assert.Equal(t, "https://x.example", res.Sellers[0].CatalogueURL)
}

func TestRead_MissingColumns(t *testing.T) {
	_, err := Read(strings.NewReader("name,city\nShop,Tunis\n"))
	var colErr *ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, []string{"catalogue_link"}, colErr.Missing)
}

func TestRead_Empty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	assert.Error(t, err)
}

type fakeUpserter struct {
	got []types.Seller
	err error
}

func (f *fakeUpserter) UpsertSellerRows(_ context.Context, sellers []types.Seller) (*db.UpsertResult, error) {
	f.got = sellers
	if f.err != nil {
		return nil, f.err
	}
	return &db.UpsertResult{Inserted: len(sellers)}, nil
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sellers.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,catalogue_link\nShop,https://a.example\nNoLink,\n"), 0644))

	store := &fakeUpserter{}
	res, err := Load(context.Background(), store, path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Len(t, store.got, 1)

	store.err = errors.New("db down")
	_, err = Load(context.Background(), store, path, nil)
	assert.ErrorContains(t, err, "db down")

	_, err = Load(context.Background(), store, filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.ErrorContains(t, err, "failed to open seller CSV")
}
