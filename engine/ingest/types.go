package ingest

// Row is one parsed CSV row: header name to raw cell value, plus the
// 1-based line number for error reporting.
type Row struct {
	Line   int
	Fields map[string]string
}

// Report summarizes one ingestion run.
type Report struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// BatchEvent announces a committed batch of records. Published to NATS
// so the embedding job's watch mode can pick new records up.
type BatchEvent struct {
	Source  string `json:"source"`
	Count   int    `json:"count"`
	FirstID int64  `json:"first_id"`
	LastID  int64  `json:"last_id"`
}

// Subject is the NATS subject batch events are published on.
const Subject = "marketai.records.ingested"

// contentFields is the fixed set of CSV columns assembled into record
// content, in order, with their display labels.
var contentFields = []struct {
	column string
	label  string
}{
	{"IndicatorName", "Indicator"},
	{"Location", "Location"},
	{"Period", "Period"},
	{"Dim1", "Dimension 1"},
	{"Value", "Value"},
}
