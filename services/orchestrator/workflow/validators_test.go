// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"testing"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDraft() *datatypes.Draft {
	return &datatypes.Draft{
		AnswerText: "Paris is the capital of France.",
		PassagesUsed: []datatypes.GradedPassage{
			{Passage: testPassage(), Score: 9},
		},
		Attempt: 1,
	}
}

func TestIsGroundedParsesVerdict(t *testing.T) {
	client := &mockLLMClient{response: `{"grounded": true}`}
	v := NewLLMGroundingValidator(client)

	grounded, err := v.IsGrounded(context.Background(), testDraft())
	require.NoError(t, err)
	assert.True(t, grounded)

	// The grounding check sees exactly the draft's own passages.
	assert.Contains(t, client.lastPrompt, "Paris is the capital of France.")
	assert.Contains(t, client.lastPrompt, "[Document 1: geo/europe.md]")
}

func TestIsGroundedFalseVerdict(t *testing.T) {
	v := NewLLMGroundingValidator(&mockLLMClient{response: `{"grounded": false}`})
	grounded, err := v.IsGrounded(context.Background(), testDraft())
	require.NoError(t, err)
	assert.False(t, grounded)
}

func TestIsGroundedUnparseableOutputIsAnError(t *testing.T) {
	v := NewLLMGroundingValidator(&mockLLMClient{response: "probably fine"})
	_, err := v.IsGrounded(context.Background(), testDraft())
	assert.Error(t, err)
}

func TestAddressesQuestionParsesVerdict(t *testing.T) {
	client := &mockLLMClient{response: `{"addresses_question": true}`}
	v := NewLLMQualityValidator(client)

	ok, err := v.AddressesQuestion(context.Background(), "What is the capital of France?", testDraft())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, client.lastPrompt, "What is the capital of France?")
}

func TestAddressesQuestionFalseVerdict(t *testing.T) {
	v := NewLLMQualityValidator(&mockLLMClient{response: `{"addresses_question": false}`})
	ok, err := v.AddressesQuestion(context.Background(), "q", testDraft())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"plain object", `{"grounded": true}`, false},
		{"fenced object", "```json\n{\"grounded\": true}\n```", false},
		{"prose around object", `Sure! Here you go: {"grounded": true} Hope that helps.`, false},
		{"no object at all", "it is grounded", true},
		{"malformed json", `{"grounded": tru}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var verdict groundingVerdict
			err := decodeModelJSON(tc.raw, &verdict)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.True(t, verdict.Grounded)
			}
		})
	}
}
