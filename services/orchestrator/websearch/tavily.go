// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package websearch implements the web-search fallback provider.
//
// Results carry the provider's own relevance score in [0,1]; the workflow
// passes these through the sufficiency machinery ungraded.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("savvy.orchestrator.websearch")

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient calls the Tavily search API.
//
// # Thread Safety
//
// Safe for concurrent use; the struct is immutable after construction.
type TavilyClient struct {
	apiKey           string
	depth            string
	client           *http.Client
	endpointOverride string
}

// NewTavilyClient constructs a Tavily search provider. Depth defaults to
// "basic" when empty.
func NewTavilyClient(apiKey, depth string) *TavilyClient {
	if depth == "" {
		depth = "basic"
	}
	return &TavilyClient{
		apiKey: apiKey,
		depth:  depth,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewTavilyClientWithHTTP constructs a Tavily provider with the supplied
// HTTP client, for tests and timeout overrides.
func NewTavilyClientWithHTTP(apiKey, depth string, client *http.Client) *TavilyClient {
	t := NewTavilyClient(apiKey, depth)
	t.client = client
	return t
}

// WithEndpoint overrides the API endpoint; used by tests.
func (t *TavilyClient) WithEndpoint(url string) *TavilyClient {
	t.endpointOverride = url
	return t
}

type tavilyRequest struct {
	Query  string `json:"query"`
	APIKey string `json:"api_key"`
	Depth  string `json:"depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search posts a query to Tavily and maps results to web-origin passages.
//
// Rate-limit responses (429) are retried with doubling delay, capped at
// 30s, until the context expires; other non-200 statuses fail immediately.
func (t *TavilyClient) Search(ctx context.Context, query string) ([]datatypes.GradedPassage, error) {
	ctx, span := tracer.Start(ctx, "TavilyClient.Search")
	defer span.End()

	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(tavilyRequest{Query: query, APIKey: t.apiKey, Depth: t.depth})
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to marshal request: %w", err)
	}

	endpoint := tavilyEndpoint
	if t.endpointOverride != "" {
		endpoint = t.endpointOverride
	}

	var resp *http.Response
	delay := 1 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("tavily: failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tavily call failed")
			return nil, fmt.Errorf("tavily: request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		slog.Warn("Tavily rate limited, backing off", "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("tavily.status_code", resp.StatusCode))
		return nil, fmt.Errorf("tavily http %d: %s", resp.StatusCode, string(body))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("tavily: failed to parse response: %w", err)
	}

	passages := make([]datatypes.GradedPassage, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		passages = append(passages, datatypes.GradedPassage{
			Passage: datatypes.Passage{
				Content: r.Content,
				Source:  r.Title + "\n" + r.URL,
				Origin:  datatypes.OriginWeb,
			},
			Score: r.Score,
		})
	}
	span.SetAttributes(attribute.Int("tavily.results", len(passages)))
	return passages, nil
}
