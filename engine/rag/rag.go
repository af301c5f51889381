// Package rag orchestrates the retrieval-and-answer pipeline: embed the
// question, search the vector index (with the request's metadata filter
// applied per call, never stored), optionally compress the retrieved
// passages, and ask the generation model for a structured answer with
// cited sources.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atlasdx/marketai/engine/domain"
	"github.com/atlasdx/marketai/engine/semantic"
	"github.com/atlasdx/marketai/pkg/llm"
)

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Chat(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Searcher performs filtered similarity search.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, topK int, filters map[string]any) ([]semantic.SearchResult, error)
}

// Options configures the pipeline.
type Options struct {
	TopK          int
	Temperature   float32
	MaxTokens     int
	Compress      bool
	SearchTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          10,
		Temperature:   0.3,
		MaxTokens:     1024,
		Compress:      true,
		SearchTimeout: 10 * time.Second,
	}
}

// Service is the retrieval pipeline. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	embed  Embedder
	gen    Generator
	search Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a Service.
func New(embed Embedder, gen Generator, search Searcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embed: embed, gen: gen, search: search, opts: opts, logger: logger}
}

// Query answers one request. The request's metadata filter restricts the
// search for this call only.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s.logger.Info("rag: query", "type", req.Type, "question_len", len(req.Question), "filters", len(req.Filters))

	vec, err := s.embed.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w: %w", domain.ErrUpstream, err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()
	results, err := s.search.Search(searchCtx, vec, s.opts.TopK, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w: %w", domain.ErrUpstream, err)
	}
	s.logger.Info("rag: retrieved", "passages", len(results))

	if s.opts.Compress {
		results = s.compressResults(ctx, req.Question, results)
	}

	template := marketExpansionTemplate
	if req.IsPartner() {
		template = partnerDiscoveryTemplate
	}
	prompt := renderPrompt(template, contextBlock(results), req.Question)

	answer, err := s.gen.Chat(ctx, llm.ChatRequest{
		User:        prompt,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w: %w", domain.ErrUpstream, err)
	}

	return &domain.QueryResponse{
		Answer:  answer,
		Sources: toSourceDocuments(results),
	}, nil
}

// contextBlock concatenates retained passages for the "stuff" prompt.
func contextBlock(results []semantic.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n\n")
}

func toSourceDocuments(results []semantic.SearchResult) []domain.SourceDocument {
	docs := make([]domain.SourceDocument, len(results))
	for i, r := range results {
		src := r.Source
		if src == "" {
			src = "unknown"
		}
		docs[i] = domain.SourceDocument{
			Content:  r.Content,
			Source:   src,
			Score:    r.Score,
			Metadata: r.Meta,
		}
	}
	return docs
}
