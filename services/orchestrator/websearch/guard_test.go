// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"testing"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	calls   int
	results []datatypes.GradedPassage
}

func (r *recordingProvider) Search(_ context.Context, _ string) ([]datatypes.GradedPassage, error) {
	r.calls++
	return r.results, nil
}

func TestGuardBlocksSensitiveQueries(t *testing.T) {
	engine, err := policy.NewEngine()
	require.NoError(t, err)

	inner := &recordingProvider{}
	guard := NewGuardedSearcher(inner, engine)

	_, err = guard.Search(context.Background(), "why does AKIA1234567890123456 not work")
	require.ErrorIs(t, err, ErrEgressBlocked)
	assert.Equal(t, 0, inner.calls, "a blocked query must never reach the provider")
}

func TestGuardAllowsPublicQueries(t *testing.T) {
	engine, err := policy.NewEngine()
	require.NoError(t, err)

	inner := &recordingProvider{results: []datatypes.GradedPassage{{Score: 0.5}}}
	guard := NewGuardedSearcher(inner, engine)

	results, err := guard.Search(context.Background(), "what is the capital of France")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, inner.calls)
}

func TestGuardWithoutEngineDelegates(t *testing.T) {
	inner := &recordingProvider{}
	guard := NewGuardedSearcher(inner, nil)

	_, err := guard.Search(context.Background(), "contact jdoe@example.com about this")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}
