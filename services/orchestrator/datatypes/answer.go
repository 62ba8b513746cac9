// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the shared value types for the answer workflow.
package datatypes

import "errors"

// PassageOrigin tells a reader where a passage's content came from, which
// decides how much trust its relevance score deserves.
type PassageOrigin string

const (
	// OriginLocal marks a passage retrieved from the local evidence store.
	OriginLocal PassageOrigin = "local"

	// OriginWeb marks a passage fetched from the web search provider.
	OriginWeb PassageOrigin = "web"
)

// Passage is one unit of evidence text with its attribution.
type Passage struct {
	Content string        `json:"content"`
	Source  string        `json:"source"`
	Origin  PassageOrigin `json:"origin"`
}

// GradedPassage is a passage with its relevance score attached.
//
// Local passages carry a grader score on the 0 to 10 scale. Web passages
// carry the provider's own score in [0,1] and are never re-graded; the
// Origin field disambiguates the scale.
type GradedPassage struct {
	Passage
	Score float64 `json:"score"`
}

// Draft is one generation attempt together with the exact passages the
// generator saw. Drafts are superseded by later attempts, never mutated.
type Draft struct {
	AnswerText   string          `json:"answer_text"`
	PassagesUsed []GradedPassage `json:"passages_used"`
	Attempt      int             `json:"attempt"`
}

// ValidationVerdict records the two validator outcomes for one draft.
type ValidationVerdict struct {
	Grounded          bool `json:"grounded"`
	AddressesQuestion bool `json:"addresses_question"`
}

// AnswerEnvelope is the terminal result of a workflow run.
//
// Passages always holds the final draft's evidence verbatim, so a caller
// can audit what the answer was built from even when verification failed.
type AnswerEnvelope struct {
	Answer             string            `json:"answer"`
	Passages           []GradedPassage   `json:"passages"`
	Verdict            ValidationVerdict `json:"verdict"`
	Verified           bool              `json:"verified"`
	WebSearchUsed      bool              `json:"web_search_used"`
	GenerationAttempts int               `json:"generation_attempts"`
	FailureReason      string            `json:"failure_reason,omitempty"`
}

// Message is one prior conversation turn, role "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query is the immutable input to one workflow run.
type Query struct {
	Text       string
	Collection string
	History    []Message
}

var (
	ErrEmptyQuestion   = errors.New("question text must not be empty")
	ErrEmptyCollection = errors.New("collection must not be empty")
)

// NewQuery builds a validated query.
func NewQuery(text, collection string, history []Message) (*Query, error) {
	if text == "" {
		return nil, ErrEmptyQuestion
	}
	if collection == "" {
		return nil, ErrEmptyCollection
	}
	return &Query{Text: text, Collection: collection, History: history}, nil
}
