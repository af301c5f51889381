package domain

import (
	"fmt"
	"strings"
)

// Query types selecting the prompt template.
const (
	QueryTypeMarket  = "market"
	QueryTypePartner = "partner"
)

// QueryRequest is a single retrieval-and-answer request. Filters are
// equality constraints applied to vector payload metadata; they are a
// per-request parameter, never shared state.
type QueryRequest struct {
	Question string         `json:"question"`
	Type     string         `json:"query_type"`
	Filters  map[string]any `json:"metadata_filters,omitempty"`
}

// SourceDocument is one retrieved (and possibly compressed) passage
// cited by an answer.
type SourceDocument struct {
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResponse is the synthesized answer plus its citations.
type QueryResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceDocument `json:"sources"`
}

// IsPartner reports whether the query type selects the partner-discovery
// template. Anything else, including the empty string, falls back to the
// market-expansion template.
func (q QueryRequest) IsPartner() bool {
	return strings.EqualFold(q.Type, QueryTypePartner)
}

// Validate checks a QueryRequest before it reaches the pipeline.
func (q QueryRequest) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	return nil
}

// ValidateSource checks an ingestion source tag.
func ValidateSource(source string) error {
	if !ValidSources[source] {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, source)
	}
	return nil
}
