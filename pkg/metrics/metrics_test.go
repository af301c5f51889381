package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterRender(t *testing.T) {
	r := New()
	c := r.Counter("records_ingested_total", "Total records ingested.")
	c.Add(3)
	c.Inc()

	out := r.Render()
	for _, want := range []string{
		"# HELP records_ingested_total Total records ingested.",
		"# TYPE records_ingested_total counter",
		"records_ingested_total 4",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestLabeledCounters(t *testing.T) {
	r := New()
	r.Counter(WithLabels("records_ingested_total", "source", "who_csv"), "").Add(10)
	r.Counter(WithLabels("records_ingested_total", "source", "cdc_api"), "").Add(2)

	out := r.Render()
	if !strings.Contains(out, `records_ingested_total{source="cdc_api"} 2`) {
		t.Fatalf("missing labeled series:\n%s", out)
	}
	if !strings.Contains(out, `records_ingested_total{source="who_csv"} 10`) {
		t.Fatalf("missing labeled series:\n%s", out)
	}
	if strings.Count(out, "# TYPE records_ingested_total counter") != 1 {
		t.Fatalf("TYPE line should render once per base name:\n%s", out)
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("embed_jobs_active", "")
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 1 {
		t.Fatalf("gauge = %d, want 1", g.Value())
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("query_duration_seconds", "", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(0.7)
	h.Observe(100)

	out := r.Render()
	for _, want := range []string{
		`query_duration_seconds_bucket{le="0.1"} 1`,
		`query_duration_seconds_bucket{le="1"} 3`,
		`query_duration_seconds_bucket{le="10"} 3`,
		`query_duration_seconds_bucket{le="+Inf"} 4`,
		`query_duration_seconds_count 4`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestSameMetricReturned(t *testing.T) {
	r := New()
	if r.Counter("x", "") != r.Counter("x", "") {
		t.Fatal("expected same counter instance")
	}
}

func TestHandlerContentType(t *testing.T) {
	r := New()
	r.Counter("x", "").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "x 1") {
		t.Fatalf("body missing metric:\n%s", rec.Body.String())
	}
}
