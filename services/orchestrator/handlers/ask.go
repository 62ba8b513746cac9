// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the orchestrator API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/history"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/workflow"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var askTracer = otel.Tracer("savvy.orchestrator.handlers")

// historyMessages converts stored turns into request messages, trimmed to
// the request cap.
func historyMessages(turns []history.Turn) []datatypes.Message {
	msgs := history.Messages(turns)
	if len(msgs) > datatypes.MaxHistoryMessages {
		msgs = msgs[len(msgs)-datatypes.MaxHistoryMessages:]
	}
	return msgs
}

// HandleAsk answers one question through the validated answer workflow.
//
// # Description
//
// Binds and validates the request, resolves session continuity, runs the
// workflow, and persists the completed turn in the background. The turn
// save never delays or fails the response.
//
// # Inputs
//
//   - wf: The configured answer workflow.
//   - store: Conversation persistence; may be nil to disable history.
//   - engine: Input policy screen; may be nil to disable it.
//
// # Outputs
//
//   - 200 with an AskResponse, verified or not; the envelope carries the
//     failure reason when verification did not succeed.
//   - 400 on malformed or invalid request bodies.
//   - 422 when the question contains secret material.
//   - 500 when the workflow itself errored.
func HandleAsk(wf *workflow.Workflow, store *history.Store, engine *policy.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()
		started := time.Now()

		var request datatypes.AskRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind ask request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		request.EnsureDefaults()
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			slog.Warn("Rejected invalid ask request", "request_id", request.Id, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Secret material is rejected outright; PII-class content may
		// proceed because the egress guard keeps it off the wire anyway.
		if engine != nil && engine.Classify([]byte(request.Question)) == "secret" {
			slog.Warn("Rejected question containing secret material", "request_id", request.Id)
			c.JSON(http.StatusUnprocessableEntity,
				gin.H{"error": "question contains secret material"})
			return
		}

		sessionId, isNewSession := request.EnsureSessionId()
		span.SetAttributes(
			attribute.String("request.id", request.Id),
			attribute.String("session.id", sessionId),
			attribute.Bool("session.new", isNewSession),
			attribute.String("collection", request.Collection),
		)
		if isNewSession {
			slog.Info("No SessionId provided, creating a new one", "sessionId", sessionId)
		}

		// Continued sessions without inline history replay the stored turns.
		messages := request.History
		if len(messages) == 0 && !isNewSession && store != nil {
			turns, err := store.History(ctx, sessionId, datatypes.MaxHistoryMessages/2)
			if err != nil {
				slog.Warn("Failed to load session history, continuing without it",
					"session_id", sessionId, "error", err)
			} else {
				messages = historyMessages(turns)
			}
		}

		query, err := datatypes.NewQuery(request.Question, request.Collection, messages)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slog.Info("Received ask request", "request_id", request.Id,
			"session_id", sessionId, "collection", request.Collection)

		envelope, err := wf.Run(ctx, query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Answer workflow failed", "request_id", request.Id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "answer workflow failed"})
			return
		}

		// Save in a goroutine so it doesn't block the response to the user.
		if store != nil {
			question := request.Question
			go func() {
				saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := store.SaveTurn(saveCtx, sessionId, question, envelope); err != nil {
					slog.Error("Failed to save conversation async",
						"session_id", sessionId, "error", err)
				}
			}()
		}

		c.JSON(http.StatusOK, datatypes.NewAskResponse(request.Id, sessionId, envelope, time.Since(started)))
	}
}
