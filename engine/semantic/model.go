package semantic

// VectorEntry is one point to upsert. ID must be the relational record
// id so re-running the indexer overwrites rather than duplicates.
type VectorEntry struct {
	ID        int64
	Embedding []float32
	Payload   map[string]any // content, record_id, source + allow-listed metadata
}

// SearchResult is a single similarity hit.
type SearchResult struct {
	ID      int64          `json:"id"`
	Score   float32        `json:"score"`
	Content string         `json:"content"`
	Source  string         `json:"source"`
	Meta    map[string]any `json:"meta"`
}
