// Package crawling turns catalog pages into product observations.
package crawling

import "fmt"

// CrawlError represents a failure to crawl one seller's catalog.
type CrawlError struct {
	Seller  string
	URL     string
	Message string
	Cause   error
}

func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crawl error for %s: %s: %v", e.Seller, e.Message, e.Cause)
	}
	return fmt.Sprintf("crawl error for %s: %s", e.Seller, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// ExtractionError represents a failure to parse listings out of a page.
type ExtractionError struct {
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction error: %s", e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
