// Package main implements the marketai embed CLI. It embeds stored
// records into the vector index, either as a one-shot backfill or as a
// worker watching for ingestion events on NATS.
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
	"github.com/atlasdx/marketai/engine/indexer"
	"github.com/atlasdx/marketai/engine/ingest"
	"github.com/atlasdx/marketai/engine/records"
	"github.com/atlasdx/marketai/engine/semantic"
	"github.com/atlasdx/marketai/pkg/llm"
	"github.com/atlasdx/marketai/pkg/natsutil"
)

func main() {
	var (
		source       = flag.String("source", "", "only embed records from this source")
		limit        = flag.Int("limit", 0, "stop after this many records (0 = all)")
		batchSize    = flag.Int("batch-size", indexer.DefaultBatchSize, "records per embedding call")
		skipExisting = flag.Bool("skip-existing", false, "skip records already in the vector index")
		watch        = flag.Bool("watch", false, "keep running and embed batches announced over NATS")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	opts := indexer.Options{
		Source:       *source,
		Limit:        *limit,
		BatchSize:    *batchSize,
		SkipExisting: *skipExisting,
	}
	if err := run(cfg, logger, opts, *watch); err != nil {
		logger.Error("embed failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, opts indexer.Options, watch bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, pool, err := records.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer pool.Close()

	vectorStore, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()
	if err := vectorStore.EnsureCollection(ctx, cfg.EmbeddingDim); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		ChatModel:  cfg.LLMChatModel,
		EmbedModel: cfg.LLMEmbedModel,
	})

	job := indexer.New(store, llmClient, vectorStore, logger)

	totals, err := job.Run(ctx, opts)
	if err != nil {
		return err
	}
	logger.Info("embedding run complete",
		"embedded", totals.Embedded, "failed", totals.Failed, "skipped", totals.Skipped)

	if !watch {
		return nil
	}
	return watchEvents(ctx, cfg, logger, job)
}

// watchEvents embeds each ingested batch as its event arrives, until
// the process is signalled.
func watchEvents(ctx context.Context, cfg config.Config, logger *slog.Logger, job *indexer.Job) error {
	if cfg.NATSURL == "" {
		return fmt.Errorf("--watch requires NATS_URL")
	}
	nc, err := natsutil.Connect(cfg.NATSURL, "marketai-embed", logger)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := natsutil.Subscribe(nc, ingest.Subject, func(evCtx context.Context, ev ingest.BatchEvent) {
		totals, err := job.RunRange(evCtx, ev.FirstID, ev.LastID)
		if err != nil {
			logger.Error("batch embed failed", "first_id", ev.FirstID, "last_id", ev.LastID, "err", err)
			return
		}
		logger.Info("batch embedded", "source", ev.Source,
			"embedded", totals.Embedded, "failed", totals.Failed)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("watching for ingestion events", "subject", ingest.Subject)
	<-ctx.Done()
	return nil
}
