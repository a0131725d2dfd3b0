package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/catalog-sync/internal/config"
	"github.com/jonathan/catalog-sync/internal/crawling"
	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/fetch"
	"github.com/jonathan/catalog-sync/internal/images"
	"github.com/jonathan/catalog-sync/internal/search"
	"google.golang.org/api/option"
)

func connectDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if err := requireDatabaseURL(cfg); err != nil {
		return nil, err
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

// newFetcher returns the static fetcher, wrapped with a headless browser
// fallback when use_browser is set. Both share one per-host limiter.
func newFetcher(cfg *config.Config, logger *slog.Logger) fetch.Fetcher {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	limiter := fetch.NewHostLimiter(cfg.RequestsPerSecond, 1)

	static := fetch.NewHTTPFetcher(&fetch.Options{
		Timeout:   timeout,
		UserAgent: cfg.UserAgent,
		Limiter:   limiter,
	})
	if !cfg.UseBrowser {
		return static
	}
	return &fetch.FallbackFetcher{
		Primary:  static,
		Fallback: fetch.NewBrowserFetcher(timeout, limiter, logger),
	}
}

// newImageUploader returns nil when no bucket is configured; listings then
// keep their source image URLs.
func newImageUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*images.Uploader, error) {
	if cfg.GCSBucket == "" {
		return nil, nil
	}
	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	store, err := images.NewGCSStore(ctx, cfg.GCSBucket, opts...)
	if err != nil {
		return nil, err
	}
	return images.NewUploader(store,
		images.WithConcurrency(cfg.ImageConcurrency),
		images.WithLogger(logger))
}

func newCrawler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*crawling.Crawler, error) {
	opts := []crawling.Option{crawling.WithLogger(logger)}

	uploader, err := newImageUploader(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up image storage: %w", err)
	}
	if uploader != nil {
		opts = append(opts, crawling.WithImages(uploader))
	}

	filter := crawling.NewKeywordFilter(cfg.Keywords, cfg.FuzzyThreshold)
	return crawling.New(newFetcher(cfg, logger), cfg.Selectors, filter, opts...), nil
}

// newSearchIndex returns nil when search credentials are not configured.
func newSearchIndex(cfg *config.Config) (search.Index, error) {
	if !cfg.SearchEnabled() {
		return nil, nil
	}
	idx, err := search.NewAlgoliaIndex(cfg.AlgoliaAppID, cfg.AlgoliaAPIKey, cfg.AlgoliaIndex)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
