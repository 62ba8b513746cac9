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
	"testing"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateBuildsDraftWithProvenance(t *testing.T) {
	client := &mockLLMClient{response: "  The capital of France is Paris.  \n"}
	gen := NewLLMAnswerGenerator(client)

	passages := []datatypes.GradedPassage{
		{Passage: testPassage(), Score: 9},
	}
	query := &datatypes.Query{Text: "What is the capital of France?", Collection: "default"}

	draft, err := gen.Generate(context.Background(), query, passages, 2)
	require.NoError(t, err)

	assert.Equal(t, "The capital of France is Paris.", draft.AnswerText)
	assert.Equal(t, 2, draft.Attempt)
	require.Len(t, draft.PassagesUsed, 1)
	assert.Equal(t, "geo/europe.md", draft.PassagesUsed[0].Source)

	assert.Contains(t, client.lastPrompt, "CHAT HISTORY")
	assert.Contains(t, client.lastPrompt, "RETRIEVED CONTEXT")
	assert.Contains(t, client.lastPrompt, "CURRENT QUESTION")
	assert.Contains(t, client.lastPrompt, "[Document 1: geo/europe.md]")
}

func TestFormatContext(t *testing.T) {
	passages := []datatypes.GradedPassage{
		{Passage: datatypes.Passage{Content: "first", Source: "a.md"}, Score: 9},
		{Passage: datatypes.Passage{Content: "second", Source: "b.md"}, Score: 8},
	}
	got := FormatContext(passages)
	assert.Equal(t, "[Document 1: a.md]\nfirst\n\n[Document 2: b.md]\nsecond", got)

	assert.Equal(t, "No documents available.", FormatContext(nil))
}

func TestFormatHistory(t *testing.T) {
	history := []datatypes.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "system", Content: "ignored"},
	}
	got := FormatHistory(history)
	assert.Equal(t, "User: hi\nAssistant: hello", got)

	assert.Equal(t, "No previous conversation.", FormatHistory(nil))
}

func TestFormatHistoryTrimsToTrailingTurns(t *testing.T) {
	var history []datatypes.Message
	for i := 0; i < 20; i++ {
		history = append(history, datatypes.Message{Role: "user", Content: fmt.Sprintf("turn %d", i)})
	}
	got := FormatHistory(history)

	// Only the most recent turns survive.
	assert.NotContains(t, got, "turn 0")
	assert.Contains(t, got, "turn 19")
}
