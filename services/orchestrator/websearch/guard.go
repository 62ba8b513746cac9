// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/knowledgesavvy/knowledgesavvy/services/policy"
)

// ErrEgressBlocked is returned when the question classifies as sensitive
// and must not be sent to the external search provider.
var ErrEgressBlocked = errors.New("question contains sensitive content and was not sent to the web search provider")

// Provider is the minimal search contract the guard wraps.
type Provider interface {
	Search(ctx context.Context, query string) ([]datatypes.GradedPassage, error)
}

// GuardedSearcher screens every outgoing query against the policy engine
// before delegating to the real provider.
type GuardedSearcher struct {
	inner  Provider
	engine *policy.Engine
}

// NewGuardedSearcher wraps a provider with egress screening. A nil engine
// disables screening and delegates unconditionally.
func NewGuardedSearcher(inner Provider, engine *policy.Engine) *GuardedSearcher {
	return &GuardedSearcher{inner: inner, engine: engine}
}

// Search delegates to the wrapped provider unless the query is blocked.
func (g *GuardedSearcher) Search(ctx context.Context, query string) ([]datatypes.GradedPassage, error) {
	if g.engine != nil {
		if category := g.engine.Classify([]byte(query)); category != policy.PublicCategory {
			slog.Warn("Blocked web search egress", "category", category)
			return nil, ErrEgressBlocked
		}
	}
	return g.inner.Search(ctx, query)
}
