// Package images copies listing images into object storage under
// content-addressed paths.
package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// MaxImageBytes bounds a single download.
const MaxImageBytes = 10 << 20

// ObjectStore is a flat blob store addressed by path.
type ObjectStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Put(ctx context.Context, path, contentType string, body io.Reader) error
	URL(path string) string
}

// Error represents a failure to copy one image.
type Error struct {
	Source  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("image error for %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("image error for %s: %s", e.Source, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Uploader downloads images and stores each distinct payload once.
type Uploader struct {
	store       ObjectStore
	client      *http.Client
	cache       *lru.Cache[string, string]
	concurrency int
	logger      *slog.Logger
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) { u.client = c }
}

// WithConcurrency bounds parallel uploads per call to UploadAll.
func WithConcurrency(n int) Option {
	return func(u *Uploader) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// NewUploader creates an uploader over store. Source URLs already copied in
// this process are remembered in a bounded cache.
func NewUploader(store ObjectStore, opts ...Option) (*Uploader, error) {
	cache, err := lru.New[string, string](4096)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}
	u := &Uploader{
		store:       store,
		client:      &http.Client{Timeout: 30 * time.Second},
		cache:       cache,
		concurrency: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upload copies src into the store and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, src string) (string, error) {
	if stored, ok := u.cache.Get(src); ok {
		return stored, nil
	}

	data, contentType, err := u.download(ctx, src)
	if err != nil {
		return "", err
	}

	objectPath := ObjectPath(data, contentType, src)
	exists, err := u.store.Exists(ctx, objectPath)
	if err != nil {
		return "", &Error{Source: src, Message: "failed to check object", Cause: err}
	}
	if !exists {
		if err := u.store.Put(ctx, objectPath, contentType, bytes.NewReader(data)); err != nil {
			return "", &Error{Source: src, Message: "failed to upload object", Cause: err}
		}
		u.logger.Debug("uploaded image", slog.String("source", src), slog.String("path", objectPath))
	}

	stored := u.store.URL(objectPath)
	u.cache.Add(src, stored)
	return stored, nil
}

// UploadAll uploads urls concurrently and returns the stored URLs in input
// order. Images that fail are logged and left out.
func (u *Uploader) UploadAll(ctx context.Context, urls []string) []string {
	results := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, src := range urls {
		g.Go(func() error {
			stored, err := u.Upload(gctx, src)
			if err != nil {
				u.logger.Warn("skipping image", slog.String("source", src), slog.Any("error", err))
				return nil
			}
			results[i] = stored
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(results))
	for _, r := range results {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (u *Uploader) download(ctx context.Context, src string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", &Error{Source: src, Message: "failed to create request", Cause: err}
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, "", &Error{Source: src, Message: "download failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &Error{Source: src, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", &Error{Source: src, Message: "failed to read body", Cause: err}
	}
	if len(data) > MaxImageBytes {
		return nil, "", &Error{Source: src, Message: "image too large"}
	}
	if len(data) == 0 {
		return nil, "", &Error{Source: src, Message: "empty body"}
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", &Error{Source: src, Message: fmt.Sprintf("not an image (%s)", contentType)}
	}
	return data, contentType, nil
}

// ObjectPath returns products/<sha256 of data>.<ext>. The extension comes
// from the content type, then the source URL, then defaults to jpg.
func ObjectPath(data []byte, contentType, src string) string {
	sum := sha256.Sum256(data)
	return "products/" + hex.EncodeToString(sum[:]) + "." + extension(contentType, src)
}

func extension(contentType, src string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	}
	if u, err := url.Parse(src); err == nil {
		if ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), "."); ext != "" && len(ext) <= 4 {
			return ext
		}
	}
	return "jpg"
}
