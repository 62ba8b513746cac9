// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history persists conversation turns for session continuity.
//
// The store is a collaborator of the answer workflow, never a dependency:
// turns are written after the terminal envelope is already on its way to
// the caller, and a failed write only logs.
package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("savvy.orchestrator.history")

// ConversationClass is the Weaviate class holding saved turns.
const ConversationClass = "Conversation"

// Turn is one stored question/answer pair with its verification outcome.
type Turn struct {
	SessionId     string `json:"session_id"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	Verified      bool   `json:"verified"`
	WebSearchUsed bool   `json:"web_search_used"`
	Timestamp     int64  `json:"timestamp"`
}

// Store reads and writes conversation turns in Weaviate.
//
// # Thread Safety
//
// Safe for concurrent use.
type Store struct {
	client *weaviate.Client
}

// NewStore creates a conversation store over the given client.
func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// SaveTurn persists one completed turn.
//
// Turns with an empty answer (e.g. a forced termination with no draft) are
// skipped; there is nothing useful to replay into a later prompt.
func (s *Store) SaveTurn(ctx context.Context, sessionId, question string, envelope *datatypes.AnswerEnvelope) error {
	ctx, span := tracer.Start(ctx, "Store.SaveTurn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionId))

	if strings.TrimSpace(envelope.Answer) == "" {
		return nil
	}

	_, err := s.client.Data().Creator().
		WithClassName(ConversationClass).
		WithProperties(map[string]interface{}{
			"session_id":      sessionId,
			"question":        question,
			"answer":          envelope.Answer,
			"verified":        envelope.Verified,
			"web_search_used": envelope.WebSearchUsed,
			"timestamp":       time.Now().UnixMilli(),
		}).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save conversation turn: %w", err)
	}
	return nil
}

// History returns the session's turns, oldest first, up to limit.
func (s *Store) History(ctx context.Context, sessionId string, limit int) ([]Turn, error) {
	ctx, span := tracer.Start(ctx, "Store.History")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionId))

	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionId)

	fields := []graphql.Field{
		{Name: "session_id"},
		{Name: "question"},
		{Name: "answer"},
		{Name: "verified"},
		{Name: "web_search_used"},
		{Name: "timestamp"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(ConversationClass).
		WithFields(fields...).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query conversation history: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate returned %d GraphQL errors, first: %s",
			len(result.Errors), result.Errors[0].Message)
	}

	turns := parseTurns(result.Data)
	sort.Slice(turns, func(i, j int) bool { return turns[i].Timestamp < turns[j].Timestamp })
	span.SetAttributes(attribute.Int("history.turns", len(turns)))
	return turns, nil
}

// Messages converts stored turns into prompt-ready history messages,
// newest last.
func Messages(turns []Turn) []datatypes.Message {
	msgs := make([]datatypes.Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs,
			datatypes.Message{Role: "user", Content: t.Question},
			datatypes.Message{Role: "assistant", Content: t.Answer},
		)
	}
	return msgs
}

// parseTurns walks the GraphQL response shape Get -> Conversation -> [...].
func parseTurns(data map[string]models.JSONObject) []Turn {
	turns := []Turn{}

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return turns
	}
	rows, ok := get[ConversationClass].([]interface{})
	if !ok {
		return turns
	}

	for _, item := range rows {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		turn := Turn{}
		turn.SessionId, _ = obj["session_id"].(string)
		turn.Question, _ = obj["question"].(string)
		turn.Answer, _ = obj["answer"].(string)
		turn.Verified, _ = obj["verified"].(bool)
		turn.WebSearchUsed, _ = obj["web_search_used"].(bool)
		if ts, ok := obj["timestamp"].(float64); ok {
			turn.Timestamp = int64(ts)
		}
		turns = append(turns, turn)
	}
	return turns
}
