// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/retrieval"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

var (
	chunkSize         = 1000
	chunkOverlap      = chunkSize / 10
	defaultSeparators = []string{"\n\n", "\n", " ", ""}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
	codeSeparators = []string{
		"\nfunction ", "\nclass ", "\ndef ", "\nfunc ", "\ntype ",
		"\n\n", "\n", " ", "",
	}
)

type IngestDocumentRequest struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Collection string `json:"collection"`
}

// CreateDocument receives a document and chunks it into the evidence store.
// Thin wrapper around RunIngestion.
func CreateDocument(client *weaviate.Client, embedder retrieval.EmbeddingProvider, engine *policy.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestDocumentRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if req.Content == "" || req.Source == "" || req.Collection == "" {
			c.JSON(http.StatusBadRequest,
				gin.H{"error": "content, source and collection are required"})
			return
		}

		// Secret material never enters the evidence store. PII is allowed
		// but reported so the operator can act on it.
		if engine != nil {
			findings := engine.Scan(req.Content)
			if secrets := findingsIn(findings, "secret"); len(secrets) > 0 {
				slog.Warn("Rejected document containing secret material",
					"source", req.Source, "findings", len(secrets))
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":    "document contains secret material and was not ingested",
					"findings": secrets,
				})
				return
			}
			if len(findings) > 0 {
				slog.Warn("Document contains flagged content, ingesting anyway",
					"source", req.Source, "findings", len(findings))
			}
		}

		chunksCreated, err := RunIngestion(c.Request.Context(), client, embedder, req)
		if err != nil {
			slog.Error("Ingestion failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Successfully processed document via API",
			"source", req.Source, "chunks_processed", chunksCreated)
		c.JSON(http.StatusCreated, gin.H{
			"status":           "success",
			"source":           req.Source,
			"chunks_processed": chunksCreated,
		})
	}
}

func findingsIn(findings []policy.Finding, category string) []policy.Finding {
	var out []policy.Finding
	for _, f := range findings {
		if f.CategoryName == category {
			out = append(out, f)
		}
	}
	return out
}

// ListDocuments gets a unique list of all ingested 'parent_source' files.
func ListDocuments(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to list ingested documents")

		agg, err := client.GraphQL().Aggregate().
			WithClassName(retrieval.DocumentClass).
			WithGroupBy("parent_source").
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to aggregate documents from Weaviate", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query documents"})
			return
		}

		var docList []string
		if aggMap, ok := agg.Data["Aggregate"].(map[string]interface{}); ok {
			if docGroups, ok := aggMap[retrieval.DocumentClass].([]interface{}); ok {
				for _, groupItem := range docGroups {
					groupMap, ok := groupItem.(map[string]interface{})
					if !ok {
						continue
					}
					groupedBy, ok := groupMap["groupedBy"].(map[string]interface{})
					if !ok {
						continue
					}
					if sourceName, ok := groupedBy["value"].(string); ok {
						docList = append(docList, sourceName)
					}
				}
			}
		}

		c.JSON(http.StatusOK, gin.H{"documents": docList})
	}
}

// RunIngestion splits, embeds, and batch-imports one document.
//
// Chunk ids are derived from the chunk content hash, so re-ingesting the
// same document overwrites its chunks instead of duplicating them.
func RunIngestion(ctx context.Context, client *weaviate.Client, embedder retrieval.EmbeddingProvider, req IngestDocumentRequest) (int, error) {
	splitter := getSplitterForFile(req.Source)

	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", req.Source)
		return 0, nil
	}
	slog.Info("Split document into chunks", "source", req.Source, "chunk_count", len(chunks))

	vectors, err := embedder.BatchEmbed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding service returned %d vectors for %d chunks",
			len(vectors), len(chunks))
	}

	objects := make([]*models.Object, len(chunks))
	for i, chunk := range chunks {
		hash := sha256.Sum256([]byte(chunk))
		docUUID, _ := uuid.FromBytes(hash[:16])

		objects[i] = &models.Object{
			Class:  retrieval.DocumentClass,
			ID:     strfmt.UUID(docUUID.String()),
			Vector: vectors[i],
			Properties: map[string]interface{}{
				"content":       chunk,
				"source":        fmt.Sprintf("%s_part_%d", req.Source, i+1),
				"parent_source": req.Source,
				"collection":    req.Collection,
				"ingested_at":   time.Now().UnixMilli(),
			},
		}
	}

	resp, err := client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	chunksCreated := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			chunksCreated++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item",
					"source", req.Source, "error", errItem.Message)
			}
		}
	}
	if chunksCreated < len(chunks) {
		slog.Warn("Errors encountered during Weaviate batch import",
			"source", req.Source, "successful_chunks", chunksCreated)
	}

	return chunksCreated, nil
}

func getSplitterForFile(filename string) textsplitter.TextSplitter {
	var separators []string
	switch filepath.Ext(filename) {
	case ".md":
		separators = markdownSeparators
	case ".py", ".js", ".ts", ".java", ".c", ".cpp", ".rs", ".go":
		separators = codeSeparators
	default:
		separators = defaultSeparators
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
		textsplitter.WithSeparators(separators),
	)
}
