// Package main implements the marketai ingest CLI. It loads records
// from one data source into Postgres and announces committed batches
// over NATS for the embedding worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/atlasdx/marketai/engine/config"
	"github.com/atlasdx/marketai/engine/graph"
	"github.com/atlasdx/marketai/engine/ingest"
	"github.com/atlasdx/marketai/engine/records"
	"github.com/atlasdx/marketai/pkg/natsutil"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func main() {
	var (
		source = flag.String("source", "", "data source: who_csv, cdc_api, pubmed_api, purchased, web_scrape")
		path   = flag.String("path", "", "CSV file path (who_csv, purchased)")
		endpt  = flag.String("endpoint", "", "API endpoint (cdc_api)")
		query  = flag.String("query", "", "search query (pubmed_api)")
		url    = flag.String("url", "", "page URL (web_scrape)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *source == "" {
		logger.Error("missing required flag", "flag", "--source")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *source, *path, *endpt, *query, *url); err != nil {
		logger.Error("ingest failed", "source", *source, "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, source, path, endpoint, query, url string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, pool, err := records.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer pool.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	deps := ingest.Deps{Store: store, Logger: logger}

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		logger.Warn("neo4j unavailable, skipping relationship graph", "err", err)
	} else {
		defer neo4jDriver.Close(ctx)
		deps.Graph = graph.New(neo4jDriver)
	}

	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(cfg.NATSURL, "marketai-ingest", logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		deps.Events = &natsPublisher{nc: nc}
	}

	loader := ingest.NewLoader(deps)

	var report ingest.Report
	switch source {
	case "who_csv":
		if path == "" {
			return fmt.Errorf("--path is required for who_csv")
		}
		report, err = loader.LoadWHOCSV(ctx, path)
	case "cdc_api":
		report, err = loader.LoadCDCAPI(ctx, endpoint)
	case "pubmed_api":
		report, err = loader.LoadPubMed(ctx, query)
	case "purchased":
		report, err = loader.LoadPurchased(ctx, path)
	case "web_scrape":
		report, err = loader.LoadWebScrape(ctx, url)
	default:
		return fmt.Errorf("unknown source %q; see --help for valid sources", source)
	}
	if err != nil {
		return err
	}

	logger.Info("ingest complete", "source", source, "added", report.Added, "skipped", report.Skipped)
	return nil
}

// natsPublisher satisfies ingest.Publisher over a NATS connection.
type natsPublisher struct {
	nc *nats.Conn
}

func (p *natsPublisher) PublishBatch(ctx context.Context, ev ingest.BatchEvent) error {
	return natsutil.Publish(ctx, p.nc, ingest.Subject, ev)
}
