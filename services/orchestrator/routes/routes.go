// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/handlers"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/history"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/retrieval"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/workflow"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

func SetupRoutes(router *gin.Engine, client *weaviate.Client, wf *workflow.Workflow,
	store *history.Store, embedder retrieval.EmbeddingProvider, engine *policy.Engine) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/ask", handlers.HandleAsk(wf, store, engine))
		v1.POST("/documents", handlers.CreateDocument(client, embedder, engine))
		v1.GET("/documents", handlers.ListDocuments(client))
		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:sessionId/history", handlers.GetSessionHistory(store))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(client))
		}
	}
}
