// Package indexer reads records from the relational store, embeds their
// content, and upserts the vectors into the index. Upserts are keyed by
// record id, so re-running the job is idempotent.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atlasdx/marketai/engine/domain"
	"github.com/atlasdx/marketai/engine/records"
	"github.com/atlasdx/marketai/engine/semantic"
)

// DefaultBatchSize is the number of records embedded per provider call.
const DefaultBatchSize = 10

// RecordLister reads records to embed.
type RecordLister interface {
	List(ctx context.Context, opts records.ListOpts) ([]domain.Record, error)
	ListByIDRange(ctx context.Context, first, last int64) ([]domain.Record, error)
}

// Embedder computes embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter upserts entries into the vector index.
type VectorWriter interface {
	Upsert(ctx context.Context, entries []semantic.VectorEntry) error
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
}

// Options selects and sizes one indexing run.
type Options struct {
	Source       string // empty embeds all sources
	Limit        int    // zero embeds everything selected
	BatchSize    int
	SkipExisting bool
}

// Totals is the run's accounting.
type Totals struct {
	Embedded int
	Failed   int
	Skipped  int // already present, skipped by SkipExisting
}

// Job is one indexing worker.
type Job struct {
	recs    RecordLister
	embed   Embedder
	vectors VectorWriter
	logger  *slog.Logger
}

// New creates a Job.
func New(recs RecordLister, embed Embedder, vectors VectorWriter, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{recs: recs, embed: embed, vectors: vectors, logger: logger}
}

// Run embeds records selected by opts, paging through the store in
// batches. It keeps going past per-batch failures and reports totals.
func (j *Job) Run(ctx context.Context, opts Options) (Totals, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	var (
		totals Totals
		offset int
	)
	for {
		page := opts.BatchSize
		if opts.Limit > 0 && opts.Limit-offset < page {
			page = opts.Limit - offset
		}
		if page <= 0 {
			break
		}

		batch, err := j.recs.List(ctx, records.ListOpts{Source: opts.Source, Limit: page, Offset: offset})
		if err != nil {
			return totals, fmt.Errorf("indexer: list records: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		offset += len(batch)

		if opts.SkipExisting {
			batch, err = j.filterExisting(ctx, batch, &totals)
			if err != nil {
				return totals, err
			}
		}

		j.embedAndStore(ctx, batch, &totals)
	}

	j.logger.Info("indexer: run complete",
		"embedded", totals.Embedded, "failed", totals.Failed, "skipped", totals.Skipped)
	return totals, nil
}

// RunRange embeds exactly the records in [first, last]. Used by the
// watch mode when an ingestion batch event arrives.
func (j *Job) RunRange(ctx context.Context, first, last int64) (Totals, error) {
	batch, err := j.recs.ListByIDRange(ctx, first, last)
	if err != nil {
		return Totals{}, fmt.Errorf("indexer: list range [%d,%d]: %w", first, last, err)
	}

	var totals Totals
	j.embedAndStore(ctx, batch, &totals)
	return totals, nil
}

func (j *Job) filterExisting(ctx context.Context, batch []domain.Record, totals *Totals) ([]domain.Record, error) {
	ids := make([]int64, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}
	existing, err := j.vectors.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("indexer: check existing: %w", err)
	}

	kept := batch[:0]
	for _, r := range batch {
		if existing[r.ID] {
			totals.Skipped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// embedAndStore embeds a batch in one provider call and upserts the
// vectors. If either step fails it degrades to per-record embedding so
// one bad record cannot block the rest.
func (j *Job) embedAndStore(ctx context.Context, batch []domain.Record, totals *Totals) {
	if len(batch) == 0 {
		return
	}

	contents := make([]string, len(batch))
	for i, r := range batch {
		contents[i] = r.Content
	}

	vecs, err := j.embed.EmbedBatch(ctx, contents)
	if err == nil {
		entries := make([]semantic.VectorEntry, len(batch))
		for i, r := range batch {
			entries[i] = semantic.VectorEntry{ID: r.ID, Embedding: vecs[i], Payload: vectorPayload(r)}
		}
		if err = j.vectors.Upsert(ctx, entries); err == nil {
			totals.Embedded += len(batch)
			return
		}
	}

	j.logger.Warn("indexer: batch failed, retrying records individually",
		"batch_size", len(batch), "err", err)

	for _, r := range batch {
		if err := j.embedOne(ctx, r); err != nil {
			j.logger.Error("indexer: record failed", "record_id", r.ID, "err", err)
			totals.Failed++
			continue
		}
		totals.Embedded++
	}
}

func (j *Job) embedOne(ctx context.Context, r domain.Record) error {
	vec, err := j.embed.Embed(ctx, r.Content)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	entry := semantic.VectorEntry{ID: r.ID, Embedding: vec, Payload: vectorPayload(r)}
	if err := j.vectors.Upsert(ctx, []semantic.VectorEntry{entry}); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// vectorPayload builds the index-side payload: the content itself (so
// retrieval can cite passages without a store round-trip), record id and
// source, plus the allow-listed metadata fields.
func vectorPayload(r domain.Record) map[string]any {
	payload := map[string]any{
		"content":   r.Content,
		"record_id": r.ID,
		"source":    r.Source,
	}
	for _, key := range domain.MetadataAllowList {
		if v, ok := r.Metadata[key]; ok && v != nil {
			payload[key] = v
		}
	}
	return payload
}
