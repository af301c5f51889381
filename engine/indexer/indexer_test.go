package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/atlasdx/marketai/engine/domain"
	"github.com/atlasdx/marketai/engine/records"
	"github.com/atlasdx/marketai/engine/semantic"
)

// --- fakes ---

type fakeLister struct {
	records []domain.Record
	err     error
}

func (f *fakeLister) List(_ context.Context, opts records.ListOpts) ([]domain.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var sel []domain.Record
	for _, r := range f.records {
		if opts.Source == "" || r.Source == opts.Source {
			sel = append(sel, r)
		}
	}
	if opts.Offset >= len(sel) {
		return nil, nil
	}
	sel = sel[opts.Offset:]
	if opts.Limit > 0 && len(sel) > opts.Limit {
		sel = sel[:opts.Limit]
	}
	return sel, nil
}

func (f *fakeLister) ListByIDRange(_ context.Context, first, last int64) ([]domain.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var sel []domain.Record
	for _, r := range f.records {
		if r.ID >= first && r.ID <= last {
			sel = append(sel, r)
		}
	}
	return sel, nil
}

type fakeEmbedder struct {
	batchErr   error
	failTexts  map[string]bool // per-record failures in fallback mode
	batchCalls int
	oneCalls   int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.oneCalls++
	if f.failTexts[text] {
		return nil, errors.New("bad record")
	}
	return []float32{float32(len(text))}, nil
}

// fakeIndex keys entries by id, so last write wins like Qdrant.
type fakeIndex struct {
	entries map[int64]semantic.VectorEntry
	err     error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[int64]semantic.VectorEntry)}
}

func (f *fakeIndex) Upsert(_ context.Context, entries []semantic.VectorEntry) error {
	if f.err != nil {
		return f.err
	}
	for _, e := range entries {
		f.entries[e.ID] = e
	}
	return nil
}

func (f *fakeIndex) ExistingIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range ids {
		if _, ok := f.entries[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func testRecords(n int) []domain.Record {
	recs := make([]domain.Record, n)
	for i := range recs {
		recs[i] = domain.Record{
			ID:      int64(i + 1),
			Source:  "who_csv",
			Content: "Indicator: TB incidence; Location: Japan",
			Metadata: map[string]any{
				"country": "Japan",
				"year":    int64(2021),
				"Dim1":    "Both sexes", // not allow-listed
			},
		}
	}
	return recs
}

// --- tests ---

func TestRun_EmbedsAll(t *testing.T) {
	idx := newFakeIndex()
	emb := &fakeEmbedder{}
	job := New(&fakeLister{records: testRecords(25)}, emb, idx, nil)

	totals, err := job.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if totals.Embedded != 25 || totals.Failed != 0 {
		t.Errorf("totals = %+v", totals)
	}
	if len(idx.entries) != 25 {
		t.Errorf("index entries = %d", len(idx.entries))
	}
	// 25 records at the default batch size of 10 means 3 provider calls.
	if emb.batchCalls != 3 {
		t.Errorf("batch calls = %d, want 3", emb.batchCalls)
	}
}

func TestRun_Idempotent(t *testing.T) {
	idx := newFakeIndex()
	job := New(&fakeLister{records: testRecords(8)}, &fakeEmbedder{}, idx, nil)

	for i := 0; i < 2; i++ {
		if _, err := job.Run(context.Background(), Options{}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(idx.entries) != 8 {
		t.Errorf("entries after rerun = %d, want 8 (one per record id)", len(idx.entries))
	}
}

func TestRun_LimitHonored(t *testing.T) {
	idx := newFakeIndex()
	job := New(&fakeLister{records: testRecords(25)}, &fakeEmbedder{}, idx, nil)

	totals, err := job.Run(context.Background(), Options{Limit: 12, BatchSize: 5})
	if err != nil {
		t.Fatal(err)
	}
	if totals.Embedded != 12 {
		t.Errorf("embedded = %d, want 12", totals.Embedded)
	}
}

func TestRun_BatchFailureFallsBackPerRecord(t *testing.T) {
	recs := testRecords(3)
	recs[1].Content = "poison"

	idx := newFakeIndex()
	emb := &fakeEmbedder{
		batchErr:  errors.New("batch rejected"),
		failTexts: map[string]bool{"poison": true},
	}
	job := New(&fakeLister{records: recs}, emb, idx, nil)

	totals, err := job.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if totals.Embedded != 2 || totals.Failed != 1 {
		t.Errorf("totals = %+v, want embedded=2 failed=1", totals)
	}
	if emb.oneCalls != 3 {
		t.Errorf("per-record calls = %d, want 3", emb.oneCalls)
	}
	if _, ok := idx.entries[2]; ok {
		t.Error("poison record should not be indexed")
	}
}

func TestRun_UpsertFailureFallsBack(t *testing.T) {
	idx := newFakeIndex()
	idx.err = errors.New("index unavailable")
	job := New(&fakeLister{records: testRecords(2)}, &fakeEmbedder{}, idx, nil)

	totals, err := job.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if totals.Failed != 2 || totals.Embedded != 0 {
		t.Errorf("totals = %+v, want all failed", totals)
	}
}

func TestRun_SkipExisting(t *testing.T) {
	recs := testRecords(4)
	idx := newFakeIndex()
	job := New(&fakeLister{records: recs}, &fakeEmbedder{}, idx, nil)

	// Pre-index records 1 and 3.
	idx.entries[1] = semantic.VectorEntry{ID: 1}
	idx.entries[3] = semantic.VectorEntry{ID: 3}

	totals, err := job.Run(context.Background(), Options{SkipExisting: true})
	if err != nil {
		t.Fatal(err)
	}
	if totals.Skipped != 2 || totals.Embedded != 2 {
		t.Errorf("totals = %+v, want skipped=2 embedded=2", totals)
	}
}

func TestRun_SourceFilterPassedThrough(t *testing.T) {
	recs := testRecords(3)
	recs[2].Source = "web_scrape"

	idx := newFakeIndex()
	job := New(&fakeLister{records: recs}, &fakeEmbedder{}, idx, nil)

	totals, err := job.Run(context.Background(), Options{Source: "who_csv"})
	if err != nil {
		t.Fatal(err)
	}
	if totals.Embedded != 2 {
		t.Errorf("embedded = %d, want 2", totals.Embedded)
	}
}

func TestRunRange(t *testing.T) {
	idx := newFakeIndex()
	job := New(&fakeLister{records: testRecords(10)}, &fakeEmbedder{}, idx, nil)

	totals, err := job.RunRange(context.Background(), 4, 6)
	if err != nil {
		t.Fatal(err)
	}
	if totals.Embedded != 3 {
		t.Errorf("embedded = %d, want 3", totals.Embedded)
	}
	if _, ok := idx.entries[5]; !ok {
		t.Error("record 5 missing from index")
	}
}

func TestVectorPayload_AllowList(t *testing.T) {
	r := testRecords(1)[0]
	p := vectorPayload(r)

	if p["content"] != r.Content || p["record_id"] != int64(1) || p["source"] != "who_csv" {
		t.Errorf("base payload = %v", p)
	}
	if p["country"] != "Japan" || p["year"] != int64(2021) {
		t.Errorf("allow-listed fields missing: %v", p)
	}
	if _, ok := p["Dim1"]; ok {
		t.Error("non-allow-listed field leaked into payload")
	}
}
