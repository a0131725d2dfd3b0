package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome so catalogs built by
// scripts can be parsed. Requires Chrome/Chromium on the host.
type BrowserFetcher struct {
	Timeout time.Duration
	// Settle is how long to wait after the body is ready for scripts to
	// populate the catalog.
	Settle  time.Duration
	Limiter *HostLimiter
	Logger  *slog.Logger
}

// NewBrowserFetcher returns a browser fetcher with the given timeout.
func NewBrowserFetcher(timeout time.Duration, limiter *HostLimiter, logger *slog.Logger) *BrowserFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{Timeout: timeout, Settle: 3 * time.Second, Limiter: limiter, Logger: logger}
}

// Fetch implements Fetcher.
func (b *BrowserFetcher) Fetch(ctx context.Context, urlStr string) (*Result, error) {
	if err := validateURL(urlStr); err != nil {
		return nil, err
	}
	if err := b.Limiter.Wait(ctx, urlStr); err != nil {
		return nil, &Error{URL: urlStr, Message: "rate limiter wait aborted", Cause: err}
	}
	b.Logger.Debug("starting headless browser", slog.String("url", urlStr))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.Settle),
		// Scroll to the bottom so lazily loaded listings are attached.
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "browser rendering failed", Cause: err}
	}

	b.Logger.Debug("rendered page", slog.String("url", urlStr), slog.Int("bytes", len(html)))
	return &Result{URL: urlStr, HTML: html, StatusCode: 200, ContentType: "text/html", Rendered: true}, nil
}
