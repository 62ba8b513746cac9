// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config builds the orchestrator configuration once at process start.
//
// All tunables for the answer workflow live here. The Config struct is
// constructed in main and passed by reference into the components that need
// it; nothing inside the workflow reads the environment directly.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Workflow defaults. These mirror the tuning the pipeline shipped with and
// are overridable per deployment via environment variables.
const (
	// DefaultRelevanceThreshold is the minimum 0-10 relevance score a local
	// passage needs to survive the sufficiency gate.
	DefaultRelevanceThreshold = 8.0

	// DefaultMaxGenerationRetries is the total number of generation attempts
	// allowed per evidence set, including the first one.
	DefaultMaxGenerationRetries = 2

	// DefaultWebSearchMaxUses bounds web-search escalations per query.
	DefaultWebSearchMaxUses = 1

	// DefaultRetrievalK is the retrieval fan-out for the evidence store.
	DefaultRetrievalK = 4

	// DefaultWebSearchResults caps how many web passages a single search
	// may contribute.
	DefaultWebSearchResults = 3

	// DefaultCallTimeout bounds every external call the workflow makes
	// (grading, generation, validation, web search, retrieval).
	DefaultCallTimeout = 90 * time.Second
)

// Config holds every setting the orchestrator consumes.
//
// # Description
//
// Config is read once via Load() at startup. The Workflow section governs
// the answer-validation state machine; the remaining fields locate the
// external collaborators (Weaviate, embedding service, LLM backend, Tavily).
//
// # Thread Safety
//
// Config is treated as immutable after Load() returns. Components receive a
// *Config and must not mutate it.
type Config struct {
	// Port is the HTTP listen port for the orchestrator.
	Port string

	// WeaviateURL is the full URL of the Weaviate instance, e.g.
	// "http://savvy-weaviate:8080". Empty disables local retrieval.
	WeaviateURL string

	// EmbeddingServiceURL is the /embed endpoint of the embedding service.
	EmbeddingServiceURL string

	// LLMBackend selects the LLM client: "ollama" or "openai".
	LLMBackend string

	// OllamaBaseURL and OllamaModel configure the Ollama backend.
	OllamaBaseURL string
	OllamaModel   string

	// OpenAIModel configures the OpenAI backend. The API key is read by the
	// client itself (env or secret file).
	OpenAIModel string

	// TavilyAPIKey enables the web-search fallback. Empty disables it;
	// the workflow then terminates unverified where it would have escalated.
	TavilyAPIKey string

	// OTLPEndpoint is the OTLP gRPC collector address for trace export.
	OTLPEndpoint string

	Workflow WorkflowConfig
}

// WorkflowConfig is the decision policy of the answer workflow.
type WorkflowConfig struct {
	// RelevanceThreshold is the sufficiency-gate cutoff on the 0-10 local
	// relevance scale.
	RelevanceThreshold float64

	// MaxGenerationRetries is the total generation attempts allowed before
	// escalation or forced termination, first attempt included.
	MaxGenerationRetries int

	// WebSearchMaxUses is the maximum number of web-search escalations.
	WebSearchMaxUses int

	// RetrievalK is how many candidate passages to pull from the evidence
	// store.
	RetrievalK int

	// WebSearchResults caps the passages taken from one web search.
	WebSearchResults int

	// CallTimeout is applied to every external call the workflow issues.
	CallTimeout time.Duration
}

// Load builds the Config from the environment.
//
// # Description
//
// Loads a .env file if one is present (missing files are fine), then reads
// every setting, applying defaults and logging a warning for each default
// taken. Numeric settings that fail to parse fall back to their defaults
// with a warning rather than aborting startup.
//
// # Outputs
//
//   - *Config: the fully populated configuration.
//   - error: non-nil only when a setting is present but semantically
//     invalid (e.g. a non-positive retry bound).
//
// # Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatalf("bad configuration: %v", err)
//	}
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration overlay from .env file")
	}

	cfg := &Config{
		Port:                envOr("ORCHESTRATOR_PORT", "12210"),
		WeaviateURL:         os.Getenv("WEAVIATE_SERVICE_URL"),
		EmbeddingServiceURL: os.Getenv("EMBEDDING_SERVICE_URL"),
		LLMBackend:          envOr("LLM_BACKEND_TYPE", "ollama"),
		OllamaBaseURL:       os.Getenv("OLLAMA_BASE_URL"),
		OllamaModel:         envOr("OLLAMA_MODEL", "gpt-oss"),
		OpenAIModel:         envOr("OPENAI_MODEL", "gpt-4o-mini"),
		TavilyAPIKey:        os.Getenv("TAVILY_API_KEY"),
		OTLPEndpoint:        envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "savvy-otel-collector:4317"),
		Workflow: WorkflowConfig{
			RelevanceThreshold:   envFloatOr("RELEVANCE_THRESHOLD", DefaultRelevanceThreshold),
			MaxGenerationRetries: envIntOr("MAX_GENERATION_RETRIES", DefaultMaxGenerationRetries),
			WebSearchMaxUses:     envIntOr("WEBSEARCH_MAX_USES", DefaultWebSearchMaxUses),
			RetrievalK:           envIntOr("RETRIEVAL_K", DefaultRetrievalK),
			WebSearchResults:     envIntOr("WEBSEARCH_RESULTS", DefaultWebSearchResults),
			CallTimeout:          envDurationOr("WORKFLOW_CALL_TIMEOUT", DefaultCallTimeout),
		},
	}

	if err := cfg.Workflow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings that would break the workflow's termination
// guarantee or make the gate meaningless.
func (w WorkflowConfig) Validate() error {
	if w.MaxGenerationRetries < 1 {
		return fmt.Errorf("MAX_GENERATION_RETRIES must be >= 1, got %d", w.MaxGenerationRetries)
	}
	if w.WebSearchMaxUses < 0 {
		return fmt.Errorf("WEBSEARCH_MAX_USES must be >= 0, got %d", w.WebSearchMaxUses)
	}
	if w.RelevanceThreshold < 0 || w.RelevanceThreshold > 10 {
		return fmt.Errorf("RELEVANCE_THRESHOLD must be on the 0-10 scale, got %g", w.RelevanceThreshold)
	}
	if w.RetrievalK < 1 {
		return fmt.Errorf("RETRIEVAL_K must be >= 1, got %d", w.RetrievalK)
	}
	if w.WebSearchResults < 1 {
		return fmt.Errorf("WEBSEARCH_RESULTS must be >= 1, got %d", w.WebSearchResults)
	}
	if w.CallTimeout <= 0 {
		return fmt.Errorf("WORKFLOW_CALL_TIMEOUT must be positive, got %s", w.CallTimeout)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Warn("Environment variable not set, using default", "key", key, "default", fallback)
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Failed to parse integer environment variable, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Failed to parse float environment variable, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Failed to parse duration environment variable, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}
