// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/history"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
)

// GetSessionHistory returns a session's stored turns, oldest first.
func GetSessionHistory(store *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")
		slog.Info("Received request for session history", "sessionId", sessionId)

		turns, err := store.History(c.Request.Context(), sessionId, datatypes.MaxHistoryMessages)
		if err != nil {
			slog.Error("Failed to query session history", "sessionId", sessionId, "error", err)
			c.JSON(http.StatusInternalServerError,
				gin.H{"error": "failed to query session history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sessionId, "turns": turns})
	}
}

// DeleteSession removes every stored turn for a session.
func DeleteSession(client *weaviate.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")
		slog.Info("Received a request to delete a session", "sessionId", sessionId)

		whereFilter := filters.Where().
			WithPath([]string{"session_id"}).
			WithOperator(filters.Equal).
			WithValueString(sessionId)

		_, err := client.Batch().ObjectsBatchDeleter().
			WithClassName(history.ConversationClass).
			WithOutput("minimal").
			WithWhere(whereFilter).
			Do(c.Request.Context())
		if err != nil {
			slog.Error("Failed to delete session turns from Weaviate", "sessionId", sessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}

		slog.Info("Successfully deleted all data for session", "sessionId", sessionId)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionId})
	}
}
