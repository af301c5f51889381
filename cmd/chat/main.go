// Package main implements an interactive terminal client for the
// retrieval pipeline, useful for trying prompts without the API server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atlasdx/marketai/engine/config"
	"github.com/atlasdx/marketai/engine/domain"
	"github.com/atlasdx/marketai/engine/rag"
	"github.com/atlasdx/marketai/engine/semantic"
	"github.com/atlasdx/marketai/pkg/llm"
)

func main() {
	var (
		queryType = flag.String("type", "market", "query type: market or partner")
		compress  = flag.Bool("compress", true, "compress retrieved passages before answering")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *queryType, *compress); err != nil {
		fmt.Fprintln(os.Stderr, "chat failed:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, queryType string, compress bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorStore, err := semantic.New(cfg.QdrantAddr, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	llmClient := llm.NewClient(llm.Config{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		ChatModel:  cfg.LLMChatModel,
		EmbedModel: cfg.LLMEmbedModel,
	})

	opts := rag.DefaultOptions()
	opts.Compress = compress
	svc := rag.New(llmClient, llmClient, vectorStore, opts, logger)

	fmt.Println("AtlasDx market chat. Type a question, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}

		resp, err := svc.Query(ctx, domain.QueryRequest{Question: question, Type: queryType})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}

		fmt.Println()
		fmt.Println(resp.Answer)
		if len(resp.Sources) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			for _, src := range resp.Sources {
				fmt.Printf("  [%.2f] %s: %s\n", src.Score, src.Source, truncate(src.Content, 120))
			}
		}
		fmt.Println()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
