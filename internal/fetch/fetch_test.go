package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Success(t *testing.T) {
	var gotUA, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotHeader = r.Header.Get("X-Test")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body><h1>Test</h1></body></html>"))
	}))
	defer server.Close()

	f := NewHTTPFetcher(&Options{UserAgent: "test-agent", Headers: map[string]string{"X-Test": "yes"}})
	result, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL, result.URL)
	assert.Contains(t, result.HTML, "<h1>Test</h1>")
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "text/html", result.ContentType)
	assert.False(t, result.Rendered)
	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "yes", gotHeader)

	// Same URL again must not be rejected as already visited.
	_, err = f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
}

func TestHTTPFetcher_InvalidURL(t *testing.T) {
	_, err := NewHTTPFetcher(nil).Fetch(context.Background(), "not-a-valid-url")
	require.Error(t, err)

	var fetchErr *Error
	assert.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestHTTPFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result, err := NewHTTPFetcher(nil).Fetch(context.Background(), server.URL)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPFetcher_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPFetcher(nil).Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestShouldUseBrowser(t *testing.T) {
	assert.True(t, ShouldUseBrowser(`<html><body><div id="app"></div><script>render()</script></body></html>`))
	long := "<html><body><p>" + strings.Repeat("listing ", 100) + "</p></body></html>"
	assert.False(t, ShouldUseBrowser(long))
}

type stubFetcher struct {
	html  string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (*Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Result{URL: url, HTML: s.html, StatusCode: 200}, nil
}

func TestFallbackFetcher(t *testing.T) {
	long := "<html><body>" + strings.Repeat("item ", 200) + "</body></html>"

	t.Run("static page is kept", func(t *testing.T) {
		primary := &stubFetcher{html: long}
		fallback := &stubFetcher{html: "rendered"}
		f := &FallbackFetcher{Primary: primary, Fallback: fallback}
		res, err := f.Fetch(context.Background(), "https://shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, long, res.HTML)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("thin page is rendered", func(t *testing.T) {
		f := &FallbackFetcher{Primary: &stubFetcher{html: "<body></body>"}, Fallback: &stubFetcher{html: "rendered"}}
		res, err := f.Fetch(context.Background(), "https://shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, "rendered", res.HTML)
	})

	t.Run("fallback failure keeps primary result", func(t *testing.T) {
		f := &FallbackFetcher{Primary: &stubFetcher{html: "<body></body>"}, Fallback: &stubFetcher{err: errors.New("no chrome")}}
		res, err := f.Fetch(context.Background(), "https://shop.example.com")
		require.NoError(t, err)
		assert.Equal(t, "<body></body>", res.HTML)
	})

	t.Run("browser-only host skips primary", func(t *testing.T) {
		primary := &stubFetcher{html: long}
		f := &FallbackFetcher{Primary: primary, Fallback: &stubFetcher{html: "rendered"}}
		res, err := f.Fetch(context.Background(), "https://wa.me/c/1")
		require.NoError(t, err)
		assert.Equal(t, "rendered", res.HTML)
		assert.Equal(t, 0, primary.calls)
	})

	t.Run("primary error is returned", func(t *testing.T) {
		f := &FallbackFetcher{Primary: &stubFetcher{err: errors.New("boom")}, Fallback: &stubFetcher{}}
		_, err := f.Fetch(context.Background(), "https://shop.example.com")
		assert.EqualError(t, err, "boom")
	})
}

func TestHostLimiter(t *testing.T) {
	var nilLimiter *HostLimiter
	require.NoError(t, nilLimiter.Wait(context.Background(), "https://a.example"))

	hl := NewHostLimiter(1, 1)
	require.NoError(t, hl.Wait(context.Background(), "https://a.example/x"))
	// A different host has its own bucket.
	require.NoError(t, hl.Wait(context.Background(), "https://b.example/x"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, hl.Wait(ctx, "https://A.example/y"))

	unlimited := NewHostLimiter(0, 0)
	for i := 0; i < 10; i++ {
		require.NoError(t, unlimited.Wait(context.Background(), "https://a.example"))
	}
}
