package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/atlasdx/marketai/engine/domain"
	"github.com/atlasdx/marketai/engine/graph"
	"github.com/atlasdx/marketai/pkg/metrics"
	"github.com/atlasdx/marketai/pkg/resilience"
)

// queryService answers market questions over the vector index.
type queryService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResponse, error)
}

// statsStore reports on the relational record store.
type statsStore interface {
	Count(ctx context.Context) (int64, error)
	CountBySource(ctx context.Context) (map[string]int64, error)
	DistinctMetaValues(ctx context.Context, field string, limit int) ([]string, error)
}

// graphReader serves the Location/Indicator relationship subgraph.
type graphReader interface {
	Neighborhood(ctx context.Context, limit int) (graph.Neighborhood, error)
}

type app struct {
	rag    queryService
	stats  statsStore
	graph  graphReader
	reg    *metrics.Registry
	logger *slog.Logger

	queryCount    *metrics.Counter
	queryErrors   *metrics.Counter
	queryDuration *metrics.Histogram
}

func newApp(rag queryService, stats statsStore, g graphReader, reg *metrics.Registry, logger *slog.Logger) *app {
	return &app{
		rag:    rag,
		stats:  stats,
		graph:  g,
		reg:    reg,
		logger: logger,

		queryCount:    reg.Counter("queries_total", "Total /query requests."),
		queryErrors:   reg.Counter("query_errors_total", "Failed /query requests."),
		queryDuration: reg.Histogram("query_duration_seconds", "End-to-end /query latency.", nil),
	}
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("POST /query", a.handleQuery)
	mux.HandleFunc("GET /stats", a.handleStats)
	mux.HandleFunc("GET /filters", a.handleFilters)
	mux.HandleFunc("GET /graph", a.handleGraph)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.reg.Handler())
	return mux
}

func (a *app) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "AtlasDx Market Intelligence API",
		"version":  version,
		"docs_url": "https://github.com/atlasdx/marketai",
	})
}

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a.queryCount.Inc()

	var req domain.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.queryErrors.Inc()
		writeErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := a.rag.Query(r.Context(), req)
	if err != nil {
		a.queryErrors.Inc()
		a.writeError(w, r, err)
		return
	}

	a.queryDuration.Since(start)
	writeJSON(w, http.StatusOK, resp)
}

// statsResponse is the JSON body for GET /stats.
type statsResponse struct {
	TotalRecords int64            `json:"total_records"`
	BySource     map[string]int64 `json:"by_source"`
}

func (a *app) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := a.stats.Count(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	bySource, err := a.stats.CountBySource(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{TotalRecords: total, BySource: bySource})
}

const maxFilterValues = 200

// filterField is one filterable metadata field with its observed values.
type filterField struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

func (a *app) handleFilters(w http.ResponseWriter, r *http.Request) {
	fields := make([]filterField, 0, len(domain.MetadataAllowList))
	for _, field := range domain.MetadataAllowList {
		values, err := a.stats.DistinctMetaValues(r.Context(), field, maxFilterValues)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		fields = append(fields, filterField{Field: field, Values: values})
	}
	sources, err := a.stats.CountBySource(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filters": fields,
		"sources": sources,
	})
}

func (a *app) handleGraph(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErrorMsg(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	nb, err := a.graph.Neighborhood(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

// writeError maps typed domain errors onto HTTP statuses. Anything
// unclassified is a 500 with a generic body; details stay in the log.
func (a *app) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsClientError(err):
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUpstream), errors.Is(err, resilience.ErrCircuitOpen):
		a.logger.Error("upstream failure", "path", r.URL.Path, "err", err)
		writeErrorMsg(w, http.StatusBadGateway, "upstream dependency failed")
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
