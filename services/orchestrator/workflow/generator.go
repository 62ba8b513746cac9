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

var generatorTracer = otel.Tracer("savvy.orchestrator.workflow.generator")

// maxHistoryTurns bounds how many trailing history messages make it into
// the generation prompt, to keep token usage predictable.
const maxHistoryTurns = 6

// Compile-time interface implementation check.
var _ AnswerGenerator = (*LLMAnswerGenerator)(nil)

// LLMAnswerGenerator produces draft answers with a single LLM call.
//
// # Description
//
// Renders GenerationPromptTemplate with the formatted passage context, the
// most recent conversation turns, and the question. Each call returns a new
// Draft carrying the exact passages it was given, so provenance survives
// all the way to the terminal envelope.
//
// # Thread Safety
//
// Safe for concurrent use; the generator holds no mutable state.
type LLMAnswerGenerator struct {
	client llm.LLMClient
}

// NewLLMAnswerGenerator creates a generator backed by the given LLM client.
func NewLLMAnswerGenerator(client llm.LLMClient) *LLMAnswerGenerator {
	return &LLMAnswerGenerator{client: client}
}

// Generate implements AnswerGenerator.
func (g *LLMAnswerGenerator) Generate(ctx context.Context, query *datatypes.Query,
	passages []datatypes.GradedPassage, attempt int) (*datatypes.Draft, error) {

	ctx, span := generatorTracer.Start(ctx, "LLMAnswerGenerator.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("generation.attempt", attempt),
		attribute.Int("generation.passages", len(passages)),
	)

	var prompt strings.Builder
	err := tmplGeneration.Execute(&prompt, map[string]string{
		"History":  FormatHistory(query.History),
		"Context":  FormatContext(passages),
		"Question": query.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render generation prompt: %w", err)
	}

	answer, err := g.client.Generate(ctx, prompt.String(), llm.GenerationParams{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation call failed")
		return nil, fmt.Errorf("answer generation failed: %w", err)
	}

	span.SetAttributes(attribute.Int("generation.answer_length", len(answer)))
	return &datatypes.Draft{
		AnswerText:   strings.TrimSpace(answer),
		PassagesUsed: passages,
		Attempt:      attempt,
	}, nil
}

// FormatContext renders passages as numbered, source-attributed blocks,
// e.g. "[Document 1: geo/europe.md]\nParis is ...".
func FormatContext(passages []datatypes.GradedPassage) string {
	if len(passages) == 0 {
		return "No documents available."
	}
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Document %d: %s]\n%s", i+1, p.Source, p.Content)
	}
	return b.String()
}

// FormatHistory renders the trailing conversation turns in "User:" /
// "Assistant:" form. Unknown roles are skipped.
func FormatHistory(history []datatypes.Message) string {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	var items []string
	for _, m := range history {
		switch m.Role {
		case "user":
			items = append(items, "User: "+m.Content)
		case "assistant":
			items = append(items, "Assistant: "+m.Content)
		}
	}
	if len(items) == 0 {
		return "No previous conversation."
	}
	return strings.Join(items, "\n")
}
