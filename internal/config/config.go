// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Selectors are the CSS selectors used to pull listings out of a catalog page.
type Selectors struct {
	Item        string `json:"item,omitempty" yaml:"item,omitempty"`               // One element per listing
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`             // Listing title, relative to item
	Price       string `json:"price,omitempty" yaml:"price,omitempty"`             // Price text, may contain "out of stock"
	Description string `json:"description,omitempty" yaml:"description,omitempty"` // Free text description
	Link        string `json:"link,omitempty" yaml:"link,omitempty"`               // Anchor holding the product link
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`             // Image elements; src is used
}

// Config represents the CLI configuration that can be loaded from a JSON or YAML file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Storage
	DatabaseURL  string `json:"database_url,omitempty" yaml:"database_url,omitempty"`   // PostgreSQL connection URL
	SnapshotPath string `json:"snapshot_path,omitempty" yaml:"snapshot_path,omitempty"` // Where scrape writes the snapshot file
	LockPath     string `json:"lock_path,omitempty" yaml:"lock_path,omitempty"`         // Advisory lock held while reconciling
	SellersCSV   string `json:"sellers_csv,omitempty" yaml:"sellers_csv,omitempty"`     // Seller list for load-sellers

	// Crawling
	UseBrowser        bool      `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Render catalogs in headless Chrome
	UserAgent         string    `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	RequestsPerSecond float64   `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" validate:"gte=0"`
	TimeoutSeconds    int       `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"gte=0"`
	Keywords          []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	FuzzyThreshold    int       `json:"fuzzy_threshold,omitempty" yaml:"fuzzy_threshold,omitempty" validate:"gte=0,lte=100"`
	Selectors         Selectors `json:"selectors,omitempty" yaml:"selectors,omitempty"`

	// Images
	GCSBucket          string `json:"gcs_bucket,omitempty" yaml:"gcs_bucket,omitempty"`
	GCSCredentialsFile string `json:"gcs_credentials_file,omitempty" yaml:"gcs_credentials_file,omitempty"`
	ImageConcurrency   int    `json:"image_concurrency,omitempty" yaml:"image_concurrency,omitempty" validate:"gte=0,lte=64"`

	// Search
	AlgoliaAppID  string `json:"algolia_app_id,omitempty" yaml:"algolia_app_id,omitempty"`
	AlgoliaAPIKey string `json:"algolia_api_key,omitempty" yaml:"algolia_api_key,omitempty"`
	AlgoliaIndex  string `json:"algolia_index,omitempty" yaml:"algolia_index,omitempty"`

	// Server
	ServerAddr string `json:"server_addr,omitempty" yaml:"server_addr,omitempty"`
	Schedule   string `json:"schedule,omitempty" yaml:"schedule,omitempty"` // Cron expression for serve --schedule

	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"` // Print detailed debug information
}

// DefaultKeywords are matched against listing titles by the crawler.
var DefaultKeywords = []string{
	"iphone", "i phone", "apple phone",
	"iphone 13", "iphone 14", "iphone 15",
	"iphone pro",
}

// Default returns the configuration used when neither file nor flags set a value.
func Default() Config {
	return Config{
		SnapshotPath:      filepath.Join("output", "snapshot.json"),
		LockPath:          "catalog-sync.lock",
		SellersCSV:        "seller_catalog_links.csv",
		UserAgent:         "catalog-sync/1.0",
		RequestsPerSecond: 1,
		TimeoutSeconds:    30,
		Keywords:          append([]string(nil), DefaultKeywords...),
		FuzzyThreshold:    70,
		Selectors: Selectors{
			Item:        ".catalog-item",
			Title:       ".title",
			Price:       ".price",
			Description: ".description",
			Link:        "a.product-link",
			Image:       "img",
		},
		ImageConcurrency: 4,
		AlgoliaIndex:     "products",
		ServerAddr:       ":8080",
	}
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from well-known environment variables.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.DatabaseURL, "DATABASE_URL")
	setFromEnv(&c.AlgoliaAppID, "ALGOLIA_APP_ID")
	setFromEnv(&c.AlgoliaAPIKey, "ALGOLIA_API_KEY")
	setFromEnv(&c.AlgoliaIndex, "ALGOLIA_INDEX")
	setFromEnv(&c.GCSBucket, "GCS_BUCKET")
	setFromEnv(&c.GCSCredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

var validate = validator.New()

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config error: '%s' failed '%s' (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("config error: invalid schedule %q: %w", c.Schedule, err)
		}
	}

	if c.GCSCredentialsFile != "" {
		if _, err := os.Stat(c.GCSCredentialsFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: credentials file not found: %s", c.GCSCredentialsFile)
		}
	}

	if c.AlgoliaAPIKey != "" && c.AlgoliaAppID == "" {
		return fmt.Errorf("config error: 'algolia_api_key' requires 'algolia_app_id'")
	}

	return nil
}

// SearchEnabled reports whether search index credentials are configured.
func (c *Config) SearchEnabled() bool {
	return c.AlgoliaAppID != "" && c.AlgoliaAPIKey != ""
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	mergeString(&result.DatabaseURL, defaults.DatabaseURL)
	mergeString(&result.SnapshotPath, defaults.SnapshotPath)
	mergeString(&result.LockPath, defaults.LockPath)
	mergeString(&result.SellersCSV, defaults.SellersCSV)
	mergeString(&result.UserAgent, defaults.UserAgent)
	mergeString(&result.GCSBucket, defaults.GCSBucket)
	mergeString(&result.GCSCredentialsFile, defaults.GCSCredentialsFile)
	mergeString(&result.AlgoliaAppID, defaults.AlgoliaAppID)
	mergeString(&result.AlgoliaAPIKey, defaults.AlgoliaAPIKey)
	mergeString(&result.AlgoliaIndex, defaults.AlgoliaIndex)
	mergeString(&result.ServerAddr, defaults.ServerAddr)
	mergeString(&result.Schedule, defaults.Schedule)

	mergeString(&result.Selectors.Item, defaults.Selectors.Item)
	mergeString(&result.Selectors.Title, defaults.Selectors.Title)
	mergeString(&result.Selectors.Price, defaults.Selectors.Price)
	mergeString(&result.Selectors.Description, defaults.Selectors.Description)
	mergeString(&result.Selectors.Link, defaults.Selectors.Link)
	mergeString(&result.Selectors.Image, defaults.Selectors.Image)

	// Numeric fields: use default if zero
	if result.RequestsPerSecond == 0 {
		result.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if result.FuzzyThreshold == 0 {
		result.FuzzyThreshold = defaults.FuzzyThreshold
	}
	if result.ImageConcurrency == 0 {
		result.ImageConcurrency = defaults.ImageConcurrency
	}

	if len(result.Keywords) == 0 {
		result.Keywords = append([]string(nil), defaults.Keywords...)
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

func mergeString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}
