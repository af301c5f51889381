// Package config loads process configuration from the environment.
// Required credentials are validated once at startup; everything else
// carries a development-friendly default.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all environment-driven settings shared by the API server
// and the CLIs.
type Config struct {
	// Relational record store.
	DatabaseURL string

	// OpenAI-compatible LLM provider.
	LLMAPIKey     string
	LLMBaseURL    string
	LLMChatModel  string
	LLMEmbedModel string
	EmbeddingDim  int

	// Vector index.
	QdrantAddr string
	Collection string

	// Relationship graph store.
	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	// Messaging. Empty disables ingestion events.
	NATSURL string

	// HTTP.
	Port       string
	CORSOrigin string
}

// Load reads configuration from the environment and validates required
// settings. A missing required setting is a startup-fatal error.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LLMAPIKey:     os.Getenv("LLM_API_KEY"),
		LLMBaseURL:    envOr("LLM_BASE_URL", "https://api.novita.ai/v3/openai"),
		LLMChatModel:  envOr("LLM_CHAT_MODEL", "qwen/qwen2.5-72b-instruct"),
		LLMEmbedModel: envOr("LLM_EMBED_MODEL", "baai/bge-m3"),
		QdrantAddr:    envOr("QDRANT_ADDR", "localhost:6334"),
		Collection:    envOr("QDRANT_COLLECTION", "atlas-market"),
		Neo4jURL:      envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		NATSURL:       os.Getenv("NATS_URL"),
		Port:          envOr("PORT", "8000"),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
	}

	dim, err := envInt("EMBEDDING_DIM", 1024)
	if err != nil {
		return Config{}, err
	}
	cfg.EmbeddingDim = dim

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.LLMAPIKey == "" {
		return Config{}, fmt.Errorf("config: LLM_API_KEY is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
