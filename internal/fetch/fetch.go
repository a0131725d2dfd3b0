// Package fetch retrieves catalog pages, either as served or rendered in a
// headless browser.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; CatalogSync/1.0)"

// Result holds the content retrieved for a URL.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
	Rendered    bool // true when produced by the browser
}

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fetcher retrieves the page at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Limiter   *HostLimiter // optional per-host pacing
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// HTTPFetcher fetches pages as served, without running scripts.
type HTTPFetcher struct {
	base    *colly.Collector
	headers map[string]string
	limiter *HostLimiter
}

// NewHTTPFetcher builds a static fetcher on a colly collector.
func NewHTTPFetcher(opts *Options) *HTTPFetcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	c := colly.NewCollector(
		colly.UserAgent(ua),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)

	return &HTTPFetcher{base: c, headers: opts.Headers, limiter: opts.Limiter}
}

// Fetch implements Fetcher. Non-2xx responses are returned as *Error
// together with the partial result.
func (f *HTTPFetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	if err := validateURL(urlStr); err != nil {
		return nil, err
	}
	if err := f.limiter.Wait(ctx, urlStr); err != nil {
		return nil, &Error{URL: urlStr, Message: "rate limiter wait aborted", Cause: err}
	}

	c := f.base.Clone()
	var result *Result
	c.OnRequest(func(r *colly.Request) {
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		result = responseResult(urlStr, r)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.StatusCode > 0 {
			result = responseResult(urlStr, r)
		}
	})

	visitErr := c.Visit(urlStr)
	if err := ctx.Err(); err != nil {
		return nil, &Error{URL: urlStr, Message: "request cancelled", Cause: err}
	}
	if result != nil && result.StatusCode != http.StatusOK {
		return result, &Error{
			URL:        urlStr,
			Message:    fmt.Sprintf("HTTP status %d", result.StatusCode),
			StatusCode: result.StatusCode,
		}
	}
	if visitErr != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: visitErr}
	}
	if result == nil {
		return nil, &Error{URL: urlStr, Message: "no response received"}
	}
	return result, nil
}

func responseResult(urlStr string, r *colly.Response) *Result {
	res := &Result{
		URL:        urlStr,
		HTML:       string(r.Body),
		StatusCode: r.StatusCode,
	}
	if r.Headers != nil {
		res.ContentType = r.Headers.Get("Content-Type")
	}
	return res
}

func validateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}
	return nil
}

// MinContentLength is the minimum body text length for a statically
// fetched page to be trusted. Shorter pages are likely rendered by scripts.
const MinContentLength = 500

// ShouldUseBrowser reports whether the page text is too short to hold a
// server-rendered catalog.
func ShouldUseBrowser(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	doc.Find("script, style, noscript").Remove()
	return len(strings.TrimSpace(doc.Find("body").Text())) < MinContentLength
}

// FallbackFetcher fetches with Primary and retries with Fallback when the
// host requires a browser or the primary result looks script-rendered.
type FallbackFetcher struct {
	Primary  Fetcher
	Fallback Fetcher
	// NeedsFallback decides whether a successful primary result should be
	// re-fetched. Defaults to ShouldUseBrowser on the HTML.
	NeedsFallback func(*Result) bool
}

// Fetch implements Fetcher. If the fallback fails, a usable primary
// result is still returned.
func (f *FallbackFetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	if f.Fallback != nil && DetectHost(urlStr).RequiresBrowser() {
		return f.Fallback.Fetch(ctx, urlStr)
	}

	res, err := f.Primary.Fetch(ctx, urlStr)
	if err != nil || f.Fallback == nil {
		return res, err
	}
	needs := f.NeedsFallback
	if needs == nil {
		needs = func(r *Result) bool { return ShouldUseBrowser(r.HTML) }
	}
	if !needs(res) {
		return res, nil
	}

	rendered, ferr := f.Fallback.Fetch(ctx, urlStr)
	if ferr != nil {
		return res, nil
	}
	return rendered, nil
}
