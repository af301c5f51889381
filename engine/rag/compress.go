package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlasdx/marketai/engine/semantic"
	"github.com/atlasdx/marketai/pkg/llm"
)

// noOutputMarker is what the extractor answers when a passage holds
// nothing relevant to the question.
const noOutputMarker = "NO_OUTPUT"

const extractTemplate = `Given the following question and context, extract any part of the context AS IS that is relevant to answer the question. If none of the context is relevant, return ` + noOutputMarker + `. Do not edit the extracted parts.

> Question: %s
> Context:
>>>
%s
>>>
Extracted relevant parts:`

// compressResults runs each retrieved passage through an LLM extraction
// step, keeping only the spans relevant to the question. Passages the
// extractor deems irrelevant are dropped; extraction failures keep the
// original passage rather than losing context.
func (s *Service) compressResults(ctx context.Context, question string, results []semantic.SearchResult) []semantic.SearchResult {
	kept := make([]semantic.SearchResult, 0, len(results))
	for _, r := range results {
		extracted, err := s.gen.Chat(ctx, llm.ChatRequest{
			User:        fmt.Sprintf(extractTemplate, question, r.Content),
			Temperature: 0,
			MaxTokens:   s.opts.MaxTokens,
		})
		if err != nil {
			s.logger.Warn("rag: compression failed, keeping passage", "record_id", r.ID, "err", err)
			kept = append(kept, r)
			continue
		}

		// The marker must be the whole answer: an extraction that merely
		// mentions the token is a legitimate passage.
		extracted = strings.TrimSpace(extracted)
		if extracted == "" || extracted == noOutputMarker {
			continue
		}
		r.Content = extracted
		kept = append(kept, r)
	}
	s.logger.Info("rag: compressed", "in", len(results), "out", len(kept))
	return kept
}
