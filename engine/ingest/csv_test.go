package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/atlasdx/marketai/engine/domain"
)

// --- fakes ---

type fakeStore struct {
	records []domain.Record
	nextID  int64
	err     error
	batches int
}

func (f *fakeStore) CreateBatch(_ context.Context, recs []domain.Record) error {
	if f.err != nil {
		return f.err
	}
	for i := range recs {
		f.nextID++
		recs[i].ID = f.nextID
	}
	f.records = append(f.records, recs...)
	f.batches++
	return nil
}

type fakeGraph struct {
	observations [][3]string
	err          error
}

func (f *fakeGraph) RecordObservation(_ context.Context, loc, ind, src string) error {
	if f.err != nil {
		return f.err
	}
	f.observations = append(f.observations, [3]string{loc, ind, src})
	return nil
}

type fakePublisher struct {
	events []BatchEvent
}

func (f *fakePublisher) PublishBatch(_ context.Context, ev BatchEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "who.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const header = "IndicatorName,Location,Period,Dim1,Value,ParentLocation\n"

// --- tests ---

func TestLoadWHOCSV_AllRowsWellFormed(t *testing.T) {
	csv := header +
		"TB incidence,Japan,2021,Both sexes,12.5,Western Pacific\n" +
		"Malaria incidence,Brazil,2020,,3.1,Americas\n" +
		"HIV prevalence,UK,2019,Adults,0.2,Europe\n"

	store := &fakeStore{}
	rep, err := NewLoader(Deps{Store: store}).LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err != nil {
		t.Fatalf("LoadWHOCSV: %v", err)
	}
	if rep.Added != 3 || rep.Skipped != 0 {
		t.Errorf("report = %+v, want added=3 skipped=0", rep)
	}
	if len(store.records) != 3 {
		t.Fatalf("stored = %d", len(store.records))
	}

	got := store.records[0]
	want := "Indicator: TB incidence; Location: Japan; Period: 2021; Dimension 1: Both sexes; Value: 12.5"
	if got.Content != want {
		t.Errorf("content = %q\nwant      %q", got.Content, want)
	}
	if got.Source != "who_csv" {
		t.Errorf("source = %q", got.Source)
	}
}

func TestLoadWHOCSV_BlankContentRowSkipped(t *testing.T) {
	// Row 2 has every content-source field blank; only ParentLocation set.
	csv := header +
		"TB incidence,Japan,2021,,12.5,Western Pacific\n" +
		",,,,,Europe\n" +
		"HIV prevalence,UK,2019,,0.2,Europe\n"

	store := &fakeStore{}
	rep, err := NewLoader(Deps{Store: store}).LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err != nil {
		t.Fatalf("LoadWHOCSV: %v", err)
	}
	if rep.Added != 2 || rep.Skipped != 1 {
		t.Errorf("report = %+v, want added=2 skipped=1", rep)
	}
	for _, r := range store.records {
		if r.Source != "who_csv" {
			t.Errorf("source = %q", r.Source)
		}
	}
}

func TestLoadWHOCSV_MalformedRowDoesNotAbort(t *testing.T) {
	csv := header +
		"TB incidence,Japan,2021,,12.5,Western Pacific\n" +
		"too,few,fields\n" +
		"HIV prevalence,UK,2019,,0.2,Europe\n"

	store := &fakeStore{}
	rep, err := NewLoader(Deps{Store: store}).LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err != nil {
		t.Fatalf("LoadWHOCSV: %v", err)
	}
	if rep.Added != 2 || rep.Skipped != 1 {
		t.Errorf("report = %+v, want added=2 skipped=1", rep)
	}
}

func TestLoadWHOCSV_MetadataNormalized(t *testing.T) {
	csv := header + "TB incidence,Japan,2021,,12.5,\n"

	store := &fakeStore{}
	if _, err := NewLoader(Deps{Store: store}).LoadWHOCSV(context.Background(), writeCSV(t, csv)); err != nil {
		t.Fatal(err)
	}

	meta := store.records[0].Metadata
	if meta["Period"] != int64(2021) {
		t.Errorf("Period = %v (%T), want int64", meta["Period"], meta["Period"])
	}
	if meta["Value"] != 12.5 {
		t.Errorf("Value = %v", meta["Value"])
	}
	if meta["Dim1"] != nil {
		t.Errorf("blank Dim1 = %v, want nil", meta["Dim1"])
	}
	if meta["Location"] != "Japan" {
		t.Errorf("Location = %v", meta["Location"])
	}
}

func TestLoadWHOCSV_BatchingAndEvents(t *testing.T) {
	csv := header
	for i := 0; i < 5; i++ {
		csv += "TB incidence,Japan,2021,,1,\n"
	}

	store := &fakeStore{}
	pub := &fakePublisher{}
	loader := NewLoader(Deps{Store: store, Events: pub})
	loader.batchSize = 2

	rep, err := loader.LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err != nil {
		t.Fatal(err)
	}
	if rep.Added != 5 {
		t.Errorf("added = %d", rep.Added)
	}
	if store.batches != 3 { // 2 + 2 + 1
		t.Errorf("batches = %d, want 3", store.batches)
	}
	if len(pub.events) != 3 {
		t.Fatalf("events = %d", len(pub.events))
	}
	last := pub.events[2]
	if last.Source != "who_csv" || last.Count != 1 || last.FirstID != 5 || last.LastID != 5 {
		t.Errorf("last event = %+v", last)
	}
}

func TestLoadWHOCSV_GraphObservations(t *testing.T) {
	csv := header +
		"TB incidence,Japan,2021,,1,\n" +
		"Malaria incidence,,2020,,2,\n" // no location, no observation

	graph := &fakeGraph{}
	_, err := NewLoader(Deps{Store: &fakeStore{}, Graph: graph}).LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err != nil {
		t.Fatal(err)
	}
	if len(graph.observations) != 1 {
		t.Fatalf("observations = %v", graph.observations)
	}
	if o := graph.observations[0]; o != [3]string{"Japan", "TB incidence", "who_csv"} {
		t.Errorf("observation = %v", o)
	}
}

func TestLoadWHOCSV_GraphFailureIsNotFatal(t *testing.T) {
	csv := header + "TB incidence,Japan,2021,,1,\n"
	graph := &fakeGraph{err: errors.New("neo4j down")}

	rep, err := NewLoader(Deps{Store: &fakeStore{}, Graph: graph}).LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err != nil {
		t.Fatalf("graph failure aborted the run: %v", err)
	}
	if rep.Added != 1 {
		t.Errorf("added = %d", rep.Added)
	}
}

func TestLoadWHOCSV_StoreFailureAborts(t *testing.T) {
	csv := header + "TB incidence,Japan,2021,,1,\n"
	store := &fakeStore{err: errors.New("connection refused")}

	_, err := NewLoader(Deps{Store: store}).LoadWHOCSV(context.Background(), writeCSV(t, csv))
	if err == nil {
		t.Fatal("expected commit error")
	}
}

func TestLoadWHOCSV_MissingFile(t *testing.T) {
	_, err := NewLoader(Deps{Store: &fakeStore{}}).LoadWHOCSV(context.Background(), "/does/not/exist.csv")
	if err == nil {
		t.Fatal("expected open error")
	}
}

func TestPlaceholderConnectors(t *testing.T) {
	l := NewLoader(Deps{Store: &fakeStore{}})
	ctx := context.Background()

	calls := []func() (Report, error){
		func() (Report, error) { return l.LoadCDCAPI(ctx, "https://data.cdc.gov/x") },
		func() (Report, error) { return l.LoadPubMed(ctx, "sepsis diagnostics") },
		func() (Report, error) { return l.LoadPurchased(ctx, "/data/market.xlsx") },
		func() (Report, error) { return l.LoadWebScrape(ctx, "https://example.com") },
	}
	for i, call := range calls {
		if _, err := call(); !errors.Is(err, domain.ErrNotImplemented) {
			t.Errorf("connector %d: err = %v, want ErrNotImplemented", i, err)
		}
	}
}
