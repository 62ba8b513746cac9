// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		RelevanceThreshold:   DefaultRelevanceThreshold,
		MaxGenerationRetries: DefaultMaxGenerationRetries,
		WebSearchMaxUses:     DefaultWebSearchMaxUses,
		RetrievalK:           DefaultRetrievalK,
		WebSearchResults:     DefaultWebSearchResults,
		CallTimeout:          DefaultCallTimeout,
	}
}

func TestWorkflowConfigValidate(t *testing.T) {
	assert.NoError(t, validWorkflowConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*WorkflowConfig)
	}{
		{"zero generation retries", func(w *WorkflowConfig) { w.MaxGenerationRetries = 0 }},
		{"negative web search uses", func(w *WorkflowConfig) { w.WebSearchMaxUses = -1 }},
		{"threshold above scale", func(w *WorkflowConfig) { w.RelevanceThreshold = 11 }},
		{"negative threshold", func(w *WorkflowConfig) { w.RelevanceThreshold = -1 }},
		{"zero retrieval fan-out", func(w *WorkflowConfig) { w.RetrievalK = 0 }},
		{"zero web results", func(w *WorkflowConfig) { w.WebSearchResults = 0 }},
		{"zero call timeout", func(w *WorkflowConfig) { w.CallTimeout = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validWorkflowConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWebSearchCanBeDisabled(t *testing.T) {
	cfg := validWorkflowConfig()
	cfg.WebSearchMaxUses = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadUsesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8.0, cfg.Workflow.RelevanceThreshold)
	assert.Equal(t, 2, cfg.Workflow.MaxGenerationRetries)
	assert.Equal(t, 1, cfg.Workflow.WebSearchMaxUses)
	assert.Equal(t, 4, cfg.Workflow.RetrievalK)
	assert.Equal(t, 3, cfg.Workflow.WebSearchResults)
	assert.Equal(t, 90*time.Second, cfg.Workflow.CallTimeout)
	assert.Equal(t, "12210", cfg.Port)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("RELEVANCE_THRESHOLD", "6.5")
	t.Setenv("MAX_GENERATION_RETRIES", "3")
	t.Setenv("WORKFLOW_CALL_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6.5, cfg.Workflow.RelevanceThreshold)
	assert.Equal(t, 3, cfg.Workflow.MaxGenerationRetries)
	assert.Equal(t, 30*time.Second, cfg.Workflow.CallTimeout)
}

func TestLoadIgnoresMalformedOverrides(t *testing.T) {
	t.Setenv("RETRIEVAL_K", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRetrievalK, cfg.Workflow.RetrievalK)
}

func TestLoadRejectsInvalidWorkflowSettings(t *testing.T) {
	t.Setenv("MAX_GENERATION_RETRIES", "0")

	_, err := Load()
	assert.Error(t, err)
}
