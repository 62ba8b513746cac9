// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knowledgesavvy/knowledgesavvy/services/llm"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/config"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/history"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/observability"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/retrieval"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/routes"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/websearch"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/workflow"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("orchestrator-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func newWeaviateClient(rawURL string) *weaviate.Client {
	// Trim quotes and whitespace in case the container runtime passes them
	// literally.
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" {
		return nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid", "url", rawURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

func newLLMClient(cfg *config.Config) (llm.LLMClient, error) {
	switch cfg.LLMBackend {
	case "openai":
		slog.Info("Using OpenAI LLM backend", "model", cfg.OpenAIModel)
		return llm.NewOpenAIClient(cfg.OpenAIModel)
	case "ollama":
		slog.Info("Using Ollama LLM backend", "model", cfg.OllamaModel)
		return llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel)
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama")
		return llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	weaviateClient := newWeaviateClient(cfg.WeaviateURL)
	if weaviateClient == nil {
		log.Fatal("FATAL: a reachable Weaviate instance is required")
	}
	datatypes.EnsureWeaviateSchema(weaviateClient)

	embedder, err := retrieval.NewHTTPEmbedder(cfg.EmbeddingServiceURL)
	if err != nil {
		log.Fatalf("failed to configure the embedding service client: %v", err)
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	policyEngine, err := policy.NewEngine()
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the policy engine: %v", err)
	}

	// The web fallback is optional; without a key the workflow terminates
	// unverified where it would have escalated.
	var webSearcher workflow.WebSearcher
	if cfg.TavilyAPIKey != "" {
		tavily := websearch.NewTavilyClient(cfg.TavilyAPIKey, "basic")
		webSearcher = websearch.NewGuardedSearcher(tavily, policyEngine)
		slog.Info("Web search fallback enabled")
	} else {
		slog.Info("TAVILY_API_KEY not set, web search fallback disabled")
	}

	store := retrieval.NewWeaviateEvidenceStore(weaviateClient, embedder)
	wf := workflow.New(
		store,
		workflow.NewLLMRelevanceGrader(llmClient),
		workflow.NewLLMAnswerGenerator(llmClient),
		workflow.NewLLMGroundingValidator(llmClient),
		workflow.NewLLMQualityValidator(llmClient),
		webSearcher,
		cfg.Workflow,
		observability.NewWorkflowMetrics(),
	)

	conversations := history.NewStore(weaviateClient)

	router := gin.Default()
	router.Use(otelgin.Middleware("orchestrator-service"))
	routes.SetupRoutes(router, weaviateClient, wf, conversations, embedder, policyEngine)

	slog.Info("Starting the orchestrator server", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
