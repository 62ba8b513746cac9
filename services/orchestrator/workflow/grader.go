// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/knowledgesavvy/knowledgesavvy/services/llm"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var graderTracer = otel.Tracer("savvy.orchestrator.workflow.grader")

// Compile-time interface implementation check.
var _ RelevanceGrader = (*LLMRelevanceGrader)(nil)

// LLMRelevanceGrader scores passages with an LLM call per passage.
//
// # Description
//
// The grader renders RelevancePromptTemplate with the question and passage
// content and parses a {"relevance_score": n} object from the completion.
// Scores are clamped to the 0-10 scale so a misbehaving model can never
// push a passage past the sufficiency gate with an out-of-range value.
//
// # Thread Safety
//
// Safe for concurrent use; the grader holds no mutable state.
type LLMRelevanceGrader struct {
	client llm.LLMClient
}

// NewLLMRelevanceGrader creates a grader backed by the given LLM client.
func NewLLMRelevanceGrader(client llm.LLMClient) *LLMRelevanceGrader {
	return &LLMRelevanceGrader{client: client}
}

// relevanceVerdict is the structured output the grader prompt asks for.
type relevanceVerdict struct {
	RelevanceScore float64 `json:"relevance_score"`
}

// Grade implements RelevanceGrader.
//
// # Outputs
//
//   - float64: relevance score in [0,10].
//   - error: non-nil when the LLM call or output parsing failed. The caller
//     decides how a single failed grade affects the batch.
func (g *LLMRelevanceGrader) Grade(ctx context.Context, question string, passage datatypes.Passage) (float64, error) {
	ctx, span := graderTracer.Start(ctx, "LLMRelevanceGrader.Grade")
	defer span.End()
	span.SetAttributes(attribute.String("passage.source", passage.Source))

	var prompt strings.Builder
	err := tmplRelevance.Execute(&prompt, map[string]string{
		"Content":  passage.Content,
		"Question": question,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to render relevance prompt: %w", err)
	}

	raw, err := g.client.Generate(ctx, prompt.String(), graderParams())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading call failed")
		return 0, fmt.Errorf("relevance grading failed: %w", err)
	}

	var verdict relevanceVerdict
	if err := decodeModelJSON(raw, &verdict); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable grade")
		return 0, fmt.Errorf("relevance grade unparseable: %w", err)
	}

	score := verdict.RelevanceScore
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	span.SetAttributes(attribute.Float64("passage.relevance_score", score))
	return score, nil
}

// graderParams are the sampling settings for all grading and validation
// calls: low temperature, short completions.
func graderParams() llm.GenerationParams {
	temp := float32(0.0)
	maxTokens := 128
	return llm.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
}
