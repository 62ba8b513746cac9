// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *TavilyClient {
	return NewTavilyClientWithHTTP("test-key", "basic", http.DefaultClient).WithEndpoint(serverURL)
}

func TestSearchMapsResultsToWebPassages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "who won the cup", req.Query)
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "basic", req.Depth)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Final recap", "url": "https://news.example/final", "content": "The cup was won on penalties.", "score": 0.91},
				{"title": "Match report", "url": "https://sports.example/report", "content": "A late goal forced extra time.", "score": 0.74},
			},
		})
	}))
	defer server.Close()

	passages, err := newTestClient(server.URL).Search(context.Background(), "who won the cup")
	require.NoError(t, err)
	require.Len(t, passages, 2)

	assert.Equal(t, "The cup was won on penalties.", passages[0].Content)
	assert.Equal(t, "Final recap\nhttps://news.example/final", passages[0].Source)
	assert.Equal(t, datatypes.OriginWeb, passages[0].Origin)
	assert.Equal(t, 0.91, passages[0].Score)
}

func TestSearchRequiresAPIKey(t *testing.T) {
	client := NewTavilyClient("  ", "basic")
	_, err := client.Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestSearchFailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestSearchRetriesAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "t", "url": "u", "content": "c", "score": 0.5},
			},
		})
	}))
	defer server.Close()

	passages, err := newTestClient(server.URL).Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, passages, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchRateLimitHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).Search(ctx, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchFailsOnMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Search(context.Background(), "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}
