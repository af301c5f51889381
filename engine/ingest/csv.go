// Package ingest normalizes external data sources into records. The WHO
// CSV connector is the implemented path; the remaining sources are
// accepted placeholders that report not-implemented.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/atlasdx/marketai/engine/domain"
	"github.com/atlasdx/marketai/pkg/fn"
)

// DefaultBatchSize is how many records accumulate before a transactional
// flush to the store.
const DefaultBatchSize = 100

// RecordStore persists a batch of records in one transaction.
type RecordStore interface {
	CreateBatch(ctx context.Context, recs []domain.Record) error
}

// GraphWriter records a Location/Indicator observation in the
// relationship graph. Optional; graph failures never fail ingestion.
type GraphWriter interface {
	RecordObservation(ctx context.Context, location, indicator, source string) error
}

// Publisher announces committed batches. Optional.
type Publisher interface {
	PublishBatch(ctx context.Context, ev BatchEvent) error
}

// Deps holds the Loader's external dependencies.
type Deps struct {
	Store  RecordStore
	Graph  GraphWriter
	Events Publisher
	Logger *slog.Logger
}

// Loader runs source files through parse, build, and store.
type Loader struct {
	deps      Deps
	batchSize int
}

// NewLoader creates a Loader. Only Deps.Store is required.
func NewLoader(deps Deps) *Loader {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Loader{deps: deps, batchSize: DefaultBatchSize}
}

// buildRecord assembles a record from a CSV row: content from the fixed
// field set, the full normalized row as metadata. Rows yielding empty
// content fail the stage and are skipped by the caller.
var buildRecord fn.Stage[Row, domain.Record] = func(_ context.Context, row Row) fn.Result[domain.Record] {
	var parts []string
	for _, f := range contentFields {
		if v := strings.TrimSpace(row.Fields[f.column]); v != "" {
			parts = append(parts, f.label+": "+v)
		}
	}
	if len(parts) == 0 {
		return fn.Errf[domain.Record]("row %d: no content generated", row.Line)
	}
	return fn.Ok(domain.Record{
		Source:   "who_csv",
		Content:  strings.Join(parts, "; "),
		Metadata: normalizeMetadata(row.Fields),
	})
}

// normalizeMetadata converts raw cells for JSON storage: blank cells
// become null, numerics become numbers, everything else stays a string.
func normalizeMetadata(fields map[string]string) map[string]any {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
			meta[k] = nil
		default:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				meta[k] = n
			} else if f, err := strconv.ParseFloat(v, 64); err == nil {
				meta[k] = f
			} else {
				meta[k] = v
			}
		}
	}
	return meta
}

// LoadWHOCSV ingests a WHO indicator CSV file. Per-row failures are
// counted and skipped; a file-level failure aborts the run, losing only
// the uncommitted tail batch.
func (l *Loader) LoadWHOCSV(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return Report{}, fmt.Errorf("ingest: read header: %w", err)
	}

	stage := fn.TracedStage("ingest.build_record", buildRecord)

	var (
		report Report
		batch  []domain.Record
		line   = 1
	)
	for {
		line++
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) && errors.Is(pe.Err, csv.ErrFieldCount) {
			l.deps.Logger.Warn("ingest: malformed row skipped", "line", line, "err", err)
			report.Skipped++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("ingest: read %s: %w", path, err)
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			fields[name] = cells[i]
		}

		rec, err := stage(ctx, Row{Line: line, Fields: fields}).Unwrap()
		if err != nil {
			l.deps.Logger.Info("ingest: row skipped", "line", line, "reason", err)
			report.Skipped++
			continue
		}

		batch = append(batch, rec)
		if len(batch) >= l.batchSize {
			if err := l.flush(ctx, batch, &report); err != nil {
				return report, err
			}
			batch = batch[:0]
		}
	}

	if err := l.flush(ctx, batch, &report); err != nil {
		return report, err
	}

	l.deps.Logger.Info("ingest: finished", "path", path, "added", report.Added, "skipped", report.Skipped)
	return report, nil
}

// flush commits one batch, then records graph observations and publishes
// the batch event. Graph and event failures are logged, not fatal.
func (l *Loader) flush(ctx context.Context, batch []domain.Record, report *Report) error {
	if len(batch) == 0 {
		return nil
	}
	if err := l.deps.Store.CreateBatch(ctx, batch); err != nil {
		return fmt.Errorf("ingest: commit batch of %d: %w", len(batch), err)
	}
	report.Added += len(batch)
	l.deps.Logger.Info("ingest: committed batch", "count", len(batch), "total", report.Added)

	if l.deps.Graph != nil {
		for _, rec := range batch {
			loc, _ := rec.Metadata["Location"].(string)
			ind, _ := rec.Metadata["IndicatorName"].(string)
			if loc == "" || ind == "" {
				continue
			}
			if err := l.deps.Graph.RecordObservation(ctx, loc, ind, rec.Source); err != nil {
				l.deps.Logger.Warn("ingest: graph observation failed", "record_id", rec.ID, "err", err)
			}
		}
	}

	if l.deps.Events != nil {
		ev := BatchEvent{
			Source:  batch[0].Source,
			Count:   len(batch),
			FirstID: batch[0].ID,
			LastID:  batch[len(batch)-1].ID,
		}
		if err := l.deps.Events.PublishBatch(ctx, ev); err != nil {
			l.deps.Logger.Warn("ingest: publish batch event failed", "err", err)
		}
	}
	return nil
}
