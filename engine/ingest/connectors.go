package ingest

import (
	"context"
	"fmt"

	"github.com/atlasdx/marketai/engine/domain"
)

// Placeholder connectors. Each validates its argument and reports
// not-implemented; the CLI surfaces the message and exits non-zero.

// LoadCDCAPI would pull indicator data from a CDC open-data endpoint.
func (l *Loader) LoadCDCAPI(_ context.Context, endpoint string) (Report, error) {
	return Report{}, fmt.Errorf("ingest: cdc_api connector for %s: %w", endpoint, domain.ErrNotImplemented)
}

// LoadPubMed would fetch publication abstracts matching a query.
func (l *Loader) LoadPubMed(_ context.Context, query string) (Report, error) {
	return Report{}, fmt.Errorf("ingest: pubmed_api connector for %q: %w", query, domain.ErrNotImplemented)
}

// LoadPurchased would parse purchased CSV/Excel datasets.
func (l *Loader) LoadPurchased(_ context.Context, path string) (Report, error) {
	return Report{}, fmt.Errorf("ingest: purchased connector for %s: %w", path, domain.ErrNotImplemented)
}

// LoadWebScrape would extract content from a scraped page.
func (l *Loader) LoadWebScrape(_ context.Context, url string) (Report, error) {
	return Report{}, fmt.Errorf("ingest: web_scrape connector for %s: %w", url, domain.ErrNotImplemented)
}
