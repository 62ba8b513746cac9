// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// GetDocumentSchema defines the class holding ingested passage chunks.
// Vectors are computed externally, so the vectorizer is "none".
func GetDocumentSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Document",
		Description: "Chunked evidence passages with externally computed vectors.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:        "content",
				DataType:    []string{"text"},
				Description: "The chunk text",
			},
			{
				Name:        "source",
				DataType:    []string{"text"},
				Description: "The chunk identifier within its parent document",
			},
			{
				Name:        "parent_source",
				DataType:    []string{"text"},
				Description: "The original document this chunk came from",
			},
			{
				Name:            "collection",
				DataType:        []string{"text"},
				Description:     "The evidence collection this chunk belongs to",
				IndexFilterable: indexFilterable,
			},
			{
				Name:     "ingested_at",
				DataType: []string{"number"},
			},
		},
	}
}

// GetConversationSchema defines the class holding saved turns.
func GetConversationSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       "Conversation",
		Description: "Completed question and answer turns keyed by session.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "Link to the chat session",
				IndexFilterable: indexFilterable,
			},
			{
				Name:     "question",
				DataType: []string{"text"},
			},
			{
				Name:     "answer",
				DataType: []string{"text"},
			},
			{
				Name:        "verified",
				DataType:    []string{"boolean"},
				Description: "True if both validators passed for this answer",
			},
			{
				Name:        "web_search_used",
				DataType:    []string{"boolean"},
				Description: "True if the answer drew on web evidence",
			},
			{
				Name:     "timestamp",
				DataType: []string{"number"},
			},
		},
	}
}

// EnsureWeaviateSchema creates any missing classes at startup.
func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetDocumentSchema,
		GetConversationSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// The client returns an error when the class does not exist yet.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			slog.Info("Schema not found, creating it", "class", class.Class)
			if err := client.Schema().ClassCreator().WithClass(class).Do(context.Background()); err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
