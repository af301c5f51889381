// Package main implements the AtlasDx market intelligence API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlasdx/marketai/engine/config"
	"github.com/atlasdx/marketai/engine/graph"
	"github.com/atlasdx/marketai/engine/rag"
	"github.com/atlasdx/marketai/engine/records"
	"github.com/atlasdx/marketai/engine/semantic"
	"github.com/atlasdx/marketai/pkg/fn"
	"github.com/atlasdx/marketai/pkg/llm"
	"github.com/atlasdx/marketai/pkg/metrics"
	"github.com/atlasdx/marketai/pkg/mid"
	"github.com/atlasdx/marketai/pkg/resilience"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const version = "0.3.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Postgres ---
	recordStore, pool, err := records.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer pool.Close()
	if err := recordStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// The collection is created by the embed CLI. Refusing to start
	// without it surfaces the missing-index condition at deploy time
	// instead of on the first query. Retried because Qdrant may still
	// be coming up alongside us.
	exists, err := fn.Retry(ctx, fn.DefaultRetry, func(ctx context.Context) fn.Result[bool] {
		return fn.FromPair(vectorStore.Exists(ctx))
	}).Unwrap()
	if err != nil {
		return fmt.Errorf("qdrant collection check: %w", err)
	}
	if !exists {
		return fmt.Errorf("qdrant collection %q does not exist; run the embed CLI first", cfg.Collection)
	}

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	graphStore := graph.New(neo4jDriver)

	// --- LLM client behind a circuit breaker ---
	llmClient := llm.NewClient(llm.Config{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		ChatModel:  cfg.LLMChatModel,
		EmbedModel: cfg.LLMEmbedModel,
	})
	gen := &breakerGenerator{
		client:  llmClient,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}

	// --- Build retrieval service ---
	ragSvc := rag.New(llmClient, gen, vectorStore, rag.DefaultOptions(), logger)

	// --- HTTP server ---
	reg := metrics.New()
	app := newApp(ragSvc, recordStore, graphStore, reg, logger)

	handler := mid.Chain(app.routes(),
		mid.RequestID(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("marketai-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port, "collection", cfg.Collection)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// breakerGenerator wraps the LLM chat path with a circuit breaker so a
// failing provider sheds load quickly instead of stacking timeouts.
type breakerGenerator struct {
	client  *llm.Client
	breaker *resilience.Breaker
}

func (g *breakerGenerator) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	return resilience.Do(g.breaker, ctx, func(ctx context.Context) (string, error) {
		return g.client.Chat(ctx, req)
	})
}
