// Package domain holds the core data types shared across the ingestion,
// indexing, and retrieval components, plus the error taxonomy the API
// maps to response codes.
package domain

// Record is one ingested unit of market/health data. Records are
// append-only: created during ingestion, never updated or deleted.
type Record struct {
	ID       int64          `json:"id"`
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// ValidSources enumerates the accepted ingestion source tags.
var ValidSources = map[string]bool{
	"who_csv":    true,
	"cdc_api":    true,
	"pubmed_api": true,
	"purchased":  true,
	"web_scrape": true,
}

// MetadataAllowList is the fixed set of record metadata fields mirrored
// into the vector index payload for filtering.
var MetadataAllowList = []string{"region", "country", "year", "type", "category"}
