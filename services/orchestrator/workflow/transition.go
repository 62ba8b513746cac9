// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import "github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/config"

// Transition computes the next phase from the current run state.
//
// # Description
//
// Transition is a pure function: it reads State and the workflow limits and
// returns the next phase without side effects. All branching policy of the
// state machine lives here: the sufficiency gate routing, the bounded
// generation retries, the single web-search escalation, and the forced edge
// to PhaseDone on bound exhaustion. Phase handlers never pick their own
// successor.
//
// # Termination
//
// Every cycle through PhaseGenerate either increments GenerationAttempts or
// follows a PhaseWebSearch edge that increments WebSearchUses; both counters
// are monotonic and bounded by the limits, so PhaseDone is always reached.
//
// # Inputs
//
//   - s: the current run state. Not modified.
//   - limits: the decision-policy bounds.
//
// # Outputs
//
//   - Phase: the next phase; PhaseDone once the run must terminate.
func Transition(s *State, limits config.WorkflowConfig) Phase {
	switch s.Phase {
	case PhaseRetrieve:
		return PhaseGrade

	case PhaseGrade:
		if len(s.Kept) > 0 {
			return PhaseGenerate
		}
		if canEscalate(s, limits) {
			return PhaseWebSearch
		}
		return PhaseDone

	case PhaseWebSearch:
		return PhaseGenerate

	case PhaseGenerate:
		return PhaseValidateGrounding

	case PhaseValidateGrounding:
		if s.Verdict.Grounded {
			return PhaseValidateQuality
		}
		return retryOrEscalate(s, limits)

	case PhaseValidateQuality:
		if s.Verdict.AddressesQuestion {
			return PhaseDone
		}
		return retryOrEscalate(s, limits)

	default:
		return PhaseDone
	}
}

// retryOrEscalate applies the shared bounded-retry budget for both
// validators: re-generate while attempts remain, escalate to web search at
// most once, then force termination.
func retryOrEscalate(s *State, limits config.WorkflowConfig) Phase {
	if s.GenerationAttempts < limits.MaxGenerationRetries {
		return PhaseGenerate
	}
	if canEscalate(s, limits) {
		return PhaseWebSearch
	}
	return PhaseDone
}

// canEscalate reports whether a web-search escalation is still permitted.
func canEscalate(s *State, limits config.WorkflowConfig) bool {
	return s.WebSearchAvailable && s.WebSearchUses < limits.WebSearchMaxUses
}
