// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbedServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPEmbedder) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	embedder, err := NewHTTPEmbedder(server.URL + "/embed")
	require.NoError(t, err)
	return server, embedder
}

func TestNewHTTPEmbedderDerivesBatchEndpoint(t *testing.T) {
	embedder, err := NewHTTPEmbedder("http://localhost:12200/embed")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:12200/embed", embedder.embedURL)
	assert.Equal(t, "http://localhost:12200/batch_embed", embedder.batchEmbedURL)

	embedder, err = NewHTTPEmbedder("http://localhost:12200/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:12200/embed", embedder.embedURL)

	_, err = NewHTTPEmbedder("")
	assert.Error(t, err)
}

func TestEmbedReturnsVector(t *testing.T) {
	_, embedder := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello world", req.Text)

		_ = json.NewEncoder(w).Encode(embedResponse{Vector: []float32{0.1, 0.2, 0.3}, Dim: 3})
	})

	vector, err := embedder.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestEmbedRejectsEmptyVector(t *testing.T) {
	_, embedder := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Vector: nil})
	})

	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty vector")
}

func TestBatchEmbedReturnsVectors(t *testing.T) {
	_, embedder := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/batch_embed", r.URL.Path)

		var req batchEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Texts, 2)

		_ = json.NewEncoder(w).Encode(batchEmbedResponse{
			Vectors: [][]float32{{0.1}, {0.2}},
			Dim:     1,
		})
	})

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.2}, vectors[1])
}

func TestBatchEmbedRejectsCountMismatch(t *testing.T) {
	_, embedder := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(batchEmbedResponse{Vectors: [][]float32{{0.1}}})
	})

	_, err := embedder.BatchEmbed(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 vectors for 2 texts")
}

func TestEmbedSurfacesServiceErrors(t *testing.T) {
	_, embedder := newEmbedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := embedder.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
