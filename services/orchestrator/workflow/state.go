// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import "github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"

// Phase identifies a node of the workflow state machine.
type Phase string

const (
	// PhaseRetrieve pulls candidate passages from the evidence store.
	PhaseRetrieve Phase = "retrieve"

	// PhaseGrade scores candidates and applies the sufficiency gate.
	PhaseGrade Phase = "grade"

	// PhaseGenerate produces a draft answer from the kept passages.
	PhaseGenerate Phase = "generate"

	// PhaseWebSearch fetches fallback evidence from the web provider.
	PhaseWebSearch Phase = "websearch"

	// PhaseValidateGrounding checks the draft against its passages.
	PhaseValidateGrounding Phase = "validate_grounding"

	// PhaseValidateQuality checks the draft against the question.
	PhaseValidateQuality Phase = "validate_quality"

	// PhaseDone is the sole terminal phase; every run reaches it.
	PhaseDone Phase = "done"
)

// State is the complete mutable state of one workflow run.
//
// # Description
//
// Owned exclusively by the Workflow for the lifetime of one query and
// discarded after the terminal envelope is built; there is no cross-query
// sharing. Phase handlers write their outputs here and the pure Transition
// function reads them to pick the next phase.
//
// # Fields
//
//   - Query: the immutable input.
//   - Candidates: raw retrieval output, local origin, ungraded.
//   - Kept: sufficiency-gate survivors plus any web passages, in the order
//     the generator will see them.
//   - Draft: the latest generation attempt; superseded, never mutated.
//   - Verdict: validator outcomes for Draft.
//   - GenerationAttempts: total drafts generated so far (1-based).
//   - WebSearchUses: web-search escalations so far.
//   - WebSearchAvailable: whether a web provider is configured at all;
//     fixed at run start so Transition stays a pure function of State.
//   - FailureReason: populated on the paths that force unverified
//     termination; carried into the envelope.
type State struct {
	Query      *datatypes.Query
	Candidates []datatypes.Passage
	Kept       []datatypes.GradedPassage
	Draft      *datatypes.Draft
	Verdict    datatypes.ValidationVerdict

	GenerationAttempts int
	WebSearchUses      int
	WebSearchAvailable bool

	Phase         Phase
	FailureReason string
}

// NewState initializes run state at the entry phase.
func NewState(query *datatypes.Query, webSearchAvailable bool) *State {
	return &State{
		Query:              query,
		Phase:              PhaseRetrieve,
		WebSearchAvailable: webSearchAvailable,
	}
}

// WebSearchUsed reports whether the fallback ran at least once.
func (s *State) WebSearchUsed() bool {
	return s.WebSearchUses > 0
}
