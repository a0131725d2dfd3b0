package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/identity"
	"github.com/jonathan/catalog-sync/internal/pipeline"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/jonathan/catalog-sync/internal/snapshot"
	"github.com/jonathan/catalog-sync/internal/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopHTML = `<html><body>
<div class="catalog-item">
	<span class="title">iPhone 13 Pro 128GB</span>
	<span class="price">52000 INR</span>
	<a class="product-link" href="/p/13pro">View</a>
	<img src="/img/13pro.jpg">
</div>
<div class="catalog-item">
	<span class="title">iPhone 14</span>
	<span class="price">61000</span>
	<a class="product-link" href="/p/14">View</a>
</div>
<div class="catalog-item">
	<span class="title">Samsung Galaxy S21</span>
	<span class="price">30000</span>
	<a class="product-link" href="/p/s21">View</a>
</div>
</body></html>`

// clearSearchEnv keeps the developer's .env from reaching the keyring or Algolia.
func clearSearchEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ALGOLIA_APP_ID", "ALGOLIA_API_KEY", "GCS_BUCKET", "GOOGLE_APPLICATION_CREDENTIALS", "DATABASE_URL"} {
		t.Setenv(key, "")
	}
}

func newShopServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, shopHTML)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "snapshot.json")
	cfg.RequestsPerSecond = 100
	cfg.TimeoutSeconds = 5
	return &cfg
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearSearchEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snapshot_path: from-file.json\nfuzzy_threshold: 80\n"), 0o644))
	t.Setenv("DATABASE_URL", "postgres://env/db")

	configPath = path
	t.Cleanup(func() { configPath = "" })

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("snapshot", "", "")
	cmd.Flags().String("db-url", "", "")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-file.json", cfg.SnapshotPath)
	assert.Equal(t, 80, cfg.FuzzyThreshold)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL)
	assert.Equal(t, config.DefaultKeywords, cfg.Keywords)

	require.NoError(t, cmd.Flags().Set("snapshot", "from-flag.json"))
	cfg, err = loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-flag.json", cfg.SnapshotPath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	clearSearchEnv(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fuzzy_threshold": 150}`), 0o644))

	configPath = path
	t.Cleanup(func() { configPath = "" })

	_, err := loadConfig(&cobra.Command{Use: "test"})
	assert.ErrorContains(t, err, "FuzzyThreshold")
}

func TestRequireDatabaseURL(t *testing.T) {
	err := requireDatabaseURL(&config.Config{})
	assert.ErrorContains(t, err, "DATABASE_URL")
	assert.NoError(t, requireDatabaseURL(&config.Config{DatabaseURL: "postgres://x"}))
}

func TestNewSearchIndex_Disabled(t *testing.T) {
	idx, err := newSearchIndex(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, idx)
}

func TestScrapeThenImport(t *testing.T) {
	srv := newShopServer(t)
	cfg := testConfig(t)
	url := srv.URL + "/catalog"
	seller := types.Seller{ID: identity.SellerID(url), Name: "Shop", CatalogueURL: url, IsActive: true}

	logger := slog.Default()
	snap, sum, err := scrapeSellers(context.Background(), cfg, pipeline.Deps{Logger: logger}, []types.Seller{seller})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Items)
	assert.Equal(t, types.JobCompleted, snap.ScrapeJob.Status)

	saved, err := snapshot.Load(cfg.SnapshotPath)
	require.NoError(t, err)
	require.Len(t, saved.Products, 2)
	assert.Equal(t, "52000", saved.Products[0].Price)

	store := reconcile.NewMemoryStore()
	deps := pipeline.Deps{Engine: reconcile.NewEngine(store), Logger: logger}
	res, err := importSnapshot(context.Background(), deps, saved, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Len(t, store.Products(), 2)
}

func TestImportSnapshot_FailedJob(t *testing.T) {
	b := snapshot.NewBuilder()
	snap := b.Fail(context.Canceled)

	deps := pipeline.Deps{Engine: reconcile.NewEngine(reconcile.NewMemoryStore())}
	_, err := importSnapshot(context.Background(), deps, snap, false)
	assert.ErrorContains(t, err, "failed scrape job")

	res, err := importSnapshot(context.Background(), deps, snap, true)
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
}

func TestCLI_ScrapeCSVAndDryRunImport(t *testing.T) {
	clearSearchEnv(t)
	srv := newShopServer(t)
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "sellers.csv")
	csv := "name,city,contact,catalogue_link\nShop,Pune,+91 90000 00000," + srv.URL + "/catalog\nNoLink,Delhi,,\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0o644))
	snapPath := filepath.Join(dir, "out", "snapshot.json")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"scrape", "--csv", csvPath, "--snapshot", snapPath})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	assert.Contains(t, out.String(), "CRAWL SUMMARY")
	assert.Contains(t, out.String(), "Snapshot written to "+snapPath)

	out.Reset()
	rootCmd.SetArgs([]string{"import", "--dry-run", "--snapshot", snapPath})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	assert.Contains(t, out.String(), "RECONCILIATION")
	assert.Contains(t, out.String(), "Inserted:    2")
}

func TestCLI_StatsRequiresDatabase(t *testing.T) {
	clearSearchEnv(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"stats"})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "DATABASE_URL")
}
