// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/catalog-sync/internal/crawling"
	"github.com/jonathan/catalog-sync/internal/db"
	"github.com/jonathan/catalog-sync/internal/reconcile"
	"github.com/jonathan/catalog-sync/internal/search"
	"github.com/jonathan/catalog-sync/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintSnapshot outputs the scrape job and a sample of the captured products.
func (p *Printer) PrintSnapshot(snap *types.Snapshot) {
	if snap == nil {
		return
	}

	var sb strings.Builder
	job := snap.ScrapeJob
	sb.WriteString(fmt.Sprintf("Job:      %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Started:  %s\n", job.StartedAt.Format(time.RFC3339)))
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second)))
	}
	sb.WriteString(fmt.Sprintf("Sellers:  %d (%d with listings)\n", len(snap.Sellers), len(processedSellers(job))))
	sb.WriteString(fmt.Sprintf("Products: %d\n", len(snap.Products)))
	if job.ErrorMessage != nil {
		sb.WriteString(fmt.Sprintf("Error:    %s\n", *job.ErrorMessage))
	}

	if len(snap.Products) > 0 {
		sb.WriteString("\n")
		count := min(len(snap.Products), maxItemsToShow)
		for i := 0; i < count; i++ {
			prod := snap.Products[i]
			sb.WriteString(fmt.Sprintf("  • %s", prod.Title))
			if prod.Price != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", prod.Price))
			}
			sb.WriteString("\n")
		}
		if len(snap.Products) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(snap.Products)-maxItemsToShow))
		}
	}

	p.printBox("SCRAPE SNAPSHOT", strings.TrimSuffix(sb.String(), "\n"))
}

// processedSellers reads sellers_processed from job metadata. The value is a
// []string in memory and a []any after a JSON round trip.
func processedSellers(job types.ScrapeJob) []string {
	switch v := job.JobMetadata[types.MetaSellersProcessed].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// PrintCrawlSummary outputs crawl totals and the sellers that failed.
func (p *Printer) PrintCrawlSummary(sum *crawling.Summary) {
	if sum == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Items:   %d\n", sum.Items))
	sb.WriteString(fmt.Sprintf("Sellers: %d\n", sum.Sellers))

	if len(sum.Failed) > 0 {
		sb.WriteString(fmt.Sprintf("\nFailed sellers (%d):\n", len(sum.Failed)))
		count := min(len(sum.Failed), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", sum.Failed[i]))
		}
		if len(sum.Failed) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(sum.Failed)-maxItemsToShow))
		}
	}

	p.printBox("CRAWL SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintReconcileResult outputs the product transitions of one import.
func (p *Printer) PrintReconcileResult(res *reconcile.Result) {
	if res == nil {
		return
	}

	content := fmt.Sprintf("Inserted:    %d\nUpdated:     %d\nRemoved:     %d\nReactivated: %d",
		res.Inserted, res.Updated, res.Removed, res.Reactivated)
	p.printBox("RECONCILIATION", content)
}

// PrintSyncResult outputs search index totals.
func (p *Printer) PrintSyncResult(res *search.SyncResult) {
	if res == nil {
		return
	}

	content := fmt.Sprintf("Indexed: %d\nBatches: %d", res.Indexed, res.Batches)
	if res.FailedBatches > 0 {
		content += fmt.Sprintf("\n⚠ Failed batches: %d", res.FailedBatches)
	}
	p.printBox("SEARCH INDEX", content)
}

// PrintStats outputs store-wide counts.
func (p *Printer) PrintStats(stats *db.Stats) {
	if stats == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Active sellers:   %d\n", stats.ActiveSellers))
	sb.WriteString(fmt.Sprintf("Active products:  %d\n", stats.ActiveProducts))
	sb.WriteString(fmt.Sprintf("Removed products: %d\n", stats.RemovedProducts))
	sb.WriteString(fmt.Sprintf("Completed jobs:   %d\n", stats.CompletedJobs))
	sb.WriteString(fmt.Sprintf("Failed jobs:      %d", stats.FailedJobs))

	if job := stats.LastJob; job != nil {
		sb.WriteString(fmt.Sprintf("\n\nLast job %s\n", job.ID))
		sb.WriteString(fmt.Sprintf("  %s at %s, %d items", job.Status, job.StartedAt.Format(time.RFC3339), job.TotalItems))
	}

	p.printBox("CATALOG STATS", sb.String())
}
