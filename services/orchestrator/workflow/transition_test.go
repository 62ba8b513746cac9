// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"testing"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	limits := testLimits()

	kept := []datatypes.GradedPassage{{Score: 9}}

	tests := []struct {
		name  string
		state State
		want  Phase
	}{
		{
			name:  "retrieve always grades next",
			state: State{Phase: PhaseRetrieve},
			want:  PhaseGrade,
		},
		{
			name:  "grade with kept passages generates",
			state: State{Phase: PhaseGrade, Kept: kept},
			want:  PhaseGenerate,
		},
		{
			name:  "grade with nothing kept escalates",
			state: State{Phase: PhaseGrade, WebSearchAvailable: true},
			want:  PhaseWebSearch,
		},
		{
			name:  "grade with nothing kept and no provider terminates",
			state: State{Phase: PhaseGrade},
			want:  PhaseDone,
		},
		{
			name:  "grade with nothing kept and spent budget terminates",
			state: State{Phase: PhaseGrade, WebSearchAvailable: true, WebSearchUses: 1},
			want:  PhaseDone,
		},
		{
			name:  "web search always generates next",
			state: State{Phase: PhaseWebSearch, WebSearchUses: 1},
			want:  PhaseGenerate,
		},
		{
			name:  "generate always validates grounding first",
			state: State{Phase: PhaseGenerate, GenerationAttempts: 1},
			want:  PhaseValidateGrounding,
		},
		{
			name: "grounded draft proceeds to quality",
			state: State{Phase: PhaseValidateGrounding, GenerationAttempts: 1,
				Verdict: datatypes.ValidationVerdict{Grounded: true}},
			want: PhaseValidateQuality,
		},
		{
			name:  "ungrounded draft retries while budget remains",
			state: State{Phase: PhaseValidateGrounding, GenerationAttempts: 1},
			want:  PhaseGenerate,
		},
		{
			name: "ungrounded draft at budget escalates once",
			state: State{Phase: PhaseValidateGrounding, GenerationAttempts: 2,
				WebSearchAvailable: true},
			want: PhaseWebSearch,
		},
		{
			name: "ungrounded draft with everything spent terminates",
			state: State{Phase: PhaseValidateGrounding, GenerationAttempts: 3,
				WebSearchAvailable: true, WebSearchUses: 1},
			want: PhaseDone,
		},
		{
			name: "addressed question terminates verified path",
			state: State{Phase: PhaseValidateQuality, GenerationAttempts: 1,
				Verdict: datatypes.ValidationVerdict{Grounded: true, AddressesQuestion: true}},
			want: PhaseDone,
		},
		{
			name: "unaddressed question retries while budget remains",
			state: State{Phase: PhaseValidateQuality, GenerationAttempts: 1,
				Verdict: datatypes.ValidationVerdict{Grounded: true}},
			want: PhaseGenerate,
		},
		{
			name: "unaddressed question at budget escalates",
			state: State{Phase: PhaseValidateQuality, GenerationAttempts: 2,
				Verdict:            datatypes.ValidationVerdict{Grounded: true},
				WebSearchAvailable: true},
			want: PhaseWebSearch,
		},
		{
			name:  "unknown phase terminates",
			state: State{Phase: Phase("bogus")},
			want:  PhaseDone,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Transition(&tc.state, limits)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTransitionIsPure(t *testing.T) {
	limits := testLimits()
	state := State{Phase: PhaseValidateGrounding, GenerationAttempts: 1}
	before := state

	_ = Transition(&state, limits)
	assert.Equal(t, before, state)
}
