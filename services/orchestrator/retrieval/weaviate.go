// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval implements the evidence store over Weaviate.
//
// Passages are stored as Document objects with externally computed vectors;
// Search embeds the question via the embedding service and runs a
// nearVector query filtered to the requested collection.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("savvy.orchestrator.retrieval")

// DocumentClass is the Weaviate class holding ingested passage chunks.
const DocumentClass = "Document"

// maxEmbedLength caps the question text sent to the embedding service.
const maxEmbedLength = 8192

// WeaviateEvidenceStore retrieves candidate passages with vector search.
//
// # Description
//
// Implements the workflow's EvidenceStore contract: Search returns up to k
// passages ordered by certainty (highest first), fewer when fewer exist,
// and an empty slice, not an error, on zero matches.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying Weaviate client handles
// connection pooling.
type WeaviateEvidenceStore struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
}

// NewWeaviateEvidenceStore creates an evidence store over the given client
// and embedder.
func NewWeaviateEvidenceStore(client *weaviate.Client, embedder EmbeddingProvider) *WeaviateEvidenceStore {
	return &WeaviateEvidenceStore{client: client, embedder: embedder}
}

// Search embeds the query and runs a filtered nearVector lookup.
//
// # Inputs
//
//   - ctx: context for cancellation and timeout.
//   - queryText: the user's question.
//   - collection: the collection identifier; maps to the "collection"
//     property of Document objects.
//   - k: retrieval fan-out.
//
// # Outputs
//
//   - []datatypes.Passage: local-origin passages, best match first. Empty
//     on zero results.
//   - error: non-nil when embedding or the Weaviate query failed.
func (s *WeaviateEvidenceStore) Search(ctx context.Context, queryText, collection string, k int) ([]datatypes.Passage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateEvidenceStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.collection", collection),
		attribute.Int("search.k", k),
	)

	truncated := queryText
	if len(truncated) > maxEmbedLength {
		truncated = truncated[:maxEmbedLength]
	}
	vector, err := s.embedder.Embed(ctx, truncated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	collectionFilter := filters.Where().
		WithPath([]string{"collection"}).
		WithOperator(filters.Equal).
		WithValueString(collection)

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// certainty is requested instead of distance: it is always [0,1]
	// regardless of the configured distance metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(DocumentClass).
		WithFields(fields...).
		WithWhere(collectionFilter).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("weaviate returned %d GraphQL errors, first: %s",
			len(result.Errors), result.Errors[0].Message)
		span.RecordError(err)
		return nil, err
	}

	passages := parseSearchResults(result.Data)
	span.SetAttributes(attribute.Int("search.results", len(passages)))
	slog.Debug("Evidence store search complete",
		"collection", collection, "k", k, "results", len(passages))
	return passages, nil
}

// parseSearchResults walks the GraphQL response shape
// Get -> Document -> [{content, source, _additional{certainty}}].
func parseSearchResults(data map[string]models.JSONObject) []datatypes.Passage {
	passages := []datatypes.Passage{}

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return passages
	}
	docs, ok := get[DocumentClass].([]interface{})
	if !ok {
		return passages
	}

	for _, item := range docs {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		content, _ := obj["content"].(string)
		source, _ := obj["source"].(string)
		if content == "" {
			continue
		}
		passages = append(passages, datatypes.Passage{
			Content: content,
			Source:  source,
			Origin:  datatypes.OriginLocal,
		})
	}
	return passages
}
