// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow implements the adaptive answer-validation state machine.
//
// A question enters Run() and is driven through retrieval, relevance
// grading, conditional web search, answer generation, and two validation
// passes, with bounded retries so every execution path terminates. The
// Workflow owns all counters and is the single writer of the per-query
// State; the components below only ever return values.
package workflow

import (
	"context"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
)

// EvidenceStore retrieves candidate passages from the document collection.
//
// # Description
//
// Search returns up to k passages ordered by similarity. It returns fewer
// than k only when fewer exist and must not fail on zero results; an empty
// slice is a valid answer that routes the workflow to the web-search
// fallback.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the workflow only ever
// reads from the store.
type EvidenceStore interface {
	Search(ctx context.Context, queryText, collection string, k int) ([]datatypes.Passage, error)
}

// RelevanceGrader scores a local passage's relevance to the question on the
// 0-10 scale. Pure scoring: no side effects. Web passages are never graded;
// their provider-assigned 0-1 scores pass through unchanged.
type RelevanceGrader interface {
	Grade(ctx context.Context, question string, passage datatypes.Passage) (float64, error)
}

// AnswerGenerator produces a draft answer from the question, the kept
// passages, and the conversation history. Output is model-backed and may
// differ between calls with identical inputs; the workflow tolerates that.
type AnswerGenerator interface {
	Generate(ctx context.Context, query *datatypes.Query, passages []datatypes.GradedPassage, attempt int) (*datatypes.Draft, error)
}

// GroundingValidator classifies whether every material claim in the draft
// is supported by the passages it used.
type GroundingValidator interface {
	IsGrounded(ctx context.Context, draft *datatypes.Draft) (bool, error)
}

// QualityValidator classifies whether the draft actually resolves the
// question asked. Runs only after grounding passes.
type QualityValidator interface {
	AddressesQuestion(ctx context.Context, question string, draft *datatypes.Draft) (bool, error)
}

// WebSearcher is the fallback evidence source. Returned passages carry the
// provider's own relevance score in [0,1] and OriginWeb.
type WebSearcher interface {
	Search(ctx context.Context, queryText string) ([]datatypes.GradedPassage, error)
}
