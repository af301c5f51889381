package domain

import "errors"

// Sentinel errors classifying failures for the API layer. Handlers wrap
// causes with %w so the transport can pick a status code without losing
// the underlying error.
var (
	// ErrInvalidInput marks client-caused failures (bad request body,
	// unknown source, empty question).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream marks failures of an external service (vector index,
	// embedding or generation endpoint, relational store).
	ErrUpstream = errors.New("upstream service error")

	// ErrNotFound marks references to resources that do not exist
	// (a missing vector collection at pipeline construction).
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented marks the placeholder ingestion connectors.
	ErrNotImplemented = errors.New("not implemented")
)

// IsClientError reports whether err should surface as a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
