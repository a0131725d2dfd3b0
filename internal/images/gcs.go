package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	svc    *storage.Service
	bucket string
}

// NewGCSStore connects to bucket. Extra client options (credentials file,
// endpoint) are passed through.
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is empty")
	}
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket}, nil
}

// Exists implements ObjectStore.
func (s *GCSStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.svc.Objects.Get(s.bucket, path).Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat gs://%s/%s: %w", s.bucket, path, err)
}

// Put implements ObjectStore.
func (s *GCSStore) Put(ctx context.Context, path, contentType string, body io.Reader) error {
	obj := &storage.Object{
		Name:         path,
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000",
	}
	_, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(body, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write gs://%s/%s: %w", s.bucket, path, err)
	}
	return nil
}

// URL implements ObjectStore.
func (s *GCSStore) URL(path string) string {
	return "https://storage.googleapis.com/" + s.bucket + "/" + (&url.URL{Path: path}).EscapedPath()
}
