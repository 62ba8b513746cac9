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
	"log/slog"
	"time"

	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/config"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var machineTracer = otel.Tracer("savvy.orchestrator.workflow")

// =============================================================================
// Error Types
// =============================================================================

// PhaseError wraps a failure of one workflow phase after the low-level
// retry was exhausted. Run either applies the escalation policy to it or
// surfaces it to the caller, depending on the phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface for PhaseError.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *PhaseError) Unwrap() error { return e.Err }

// IsPhaseError checks if an error is a *PhaseError.
func IsPhaseError(err error) bool {
	_, ok := err.(*PhaseError)
	return ok
}

// =============================================================================
// Workflow
// =============================================================================

// Workflow drives one question through the answer-validation state machine.
//
// # Description
//
// Run executes phases strictly sequentially, each phase's input being the
// prior phase's output, and consults Transition between phases. The
// Workflow owns every retry counter; no component retries semantically on
// its own. All external calls go through call(), which applies the per-call
// timeout and one immediate low-level retry for transient failures.
//
// # Thread Safety
//
// A single Workflow may serve many queries concurrently: each Run allocates
// its own State and the injected components are read-only from Run's
// perspective.
//
// # Example
//
//	wf := workflow.New(store, grader, generator, grounding, quality, web,
//	    cfg.Workflow, metrics)
//	envelope, err := wf.Run(ctx, query)
type Workflow struct {
	store     EvidenceStore
	grader    RelevanceGrader
	generator AnswerGenerator
	grounding GroundingValidator
	quality   QualityValidator
	web       WebSearcher // nil when no provider is configured

	limits  config.WorkflowConfig
	metrics *observability.WorkflowMetrics // nil disables metrics
}

// New creates a Workflow with the provided components and limits.
//
// # Inputs
//
//   - store, grader, generator, grounding, quality: required components.
//   - web: optional; pass nil to run without the web-search fallback, in
//     which case the workflow terminates unverified where it would have
//     escalated.
//   - limits: the validated decision-policy bounds.
//   - metrics: optional; pass nil to disable instrumentation.
func New(
	store EvidenceStore,
	grader RelevanceGrader,
	generator AnswerGenerator,
	grounding GroundingValidator,
	quality QualityValidator,
	web WebSearcher,
	limits config.WorkflowConfig,
	metrics *observability.WorkflowMetrics,
) *Workflow {
	return &Workflow{
		store:     store,
		grader:    grader,
		generator: generator,
		grounding: grounding,
		quality:   quality,
		web:       web,
		limits:    limits,
		metrics:   metrics,
	}
}

// Run processes one query end to end and returns the terminal envelope.
//
// # Description
//
// The run starts in PhaseRetrieve and loops handler then Transition until
// PhaseDone. Cancellation is honored at every phase boundary: once the
// caller's context is done no further phase is started, and in-flight call
// results are discarded with the context error.
//
// # Outputs
//
//   - *datatypes.AnswerEnvelope: always non-nil on a nil error, including
//     forced-termination paths where Verified is false.
//   - error: non-nil only for fatal failures: cancellation, a generation
//     phase that failed even after its low-level retry, or invalid input.
//     Phase failures with an escalation edge left never surface here.
func (w *Workflow) Run(ctx context.Context, query *datatypes.Query) (*datatypes.AnswerEnvelope, error) {
	if query == nil || query.Text == "" {
		return nil, fmt.Errorf("query text is required")
	}
	if query.Collection == "" {
		return nil, fmt.Errorf("target collection is required")
	}

	ctx, span := machineTracer.Start(ctx, "Workflow.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("query.collection", query.Collection),
		attribute.Int("query.history_turns", len(query.History)),
	)

	state := NewState(query, w.web != nil && w.limits.WebSearchMaxUses > 0)

	// Upper bound on transitions, derived from the counter limits. The
	// machine can never reach it; hitting it means a handler corrupted the
	// counters.
	maxTransitions := 6 * (w.limits.MaxGenerationRetries + w.limits.WebSearchMaxUses + 2)

	for steps := 0; state.Phase != PhaseDone; steps++ {
		if steps >= maxTransitions {
			span.SetStatus(codes.Error, "transition bound exceeded")
			return nil, fmt.Errorf("workflow exceeded %d transitions without terminating", maxTransitions)
		}
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled at phase boundary")
			w.metrics.ObserveRun("error", state.GenerationAttempts)
			return nil, err
		}

		phase := state.Phase
		start := time.Now()
		err := w.runPhase(ctx, state)
		w.metrics.ObservePhase(string(phase), time.Since(start).Seconds())

		if err != nil {
			next, fatal := w.applyFailurePolicy(state, phase, err)
			if fatal {
				span.RecordError(err)
				span.SetStatus(codes.Error, "fatal phase failure")
				w.metrics.ObserveRun("error", state.GenerationAttempts)
				return nil, err
			}
			state.Phase = next
			continue
		}

		state.Phase = Transition(state, w.limits)
	}

	envelope := w.buildEnvelope(state)
	span.SetAttributes(
		attribute.Bool("result.verified", envelope.Verified),
		attribute.Bool("result.web_search_used", envelope.WebSearchUsed),
		attribute.Int("result.generation_attempts", envelope.GenerationAttempts),
	)
	if envelope.Verified {
		w.metrics.ObserveRun("verified", state.GenerationAttempts)
	} else {
		w.metrics.ObserveRun("unverified", state.GenerationAttempts)
	}
	slog.Info("Workflow terminated",
		"verified", envelope.Verified,
		"webSearchUsed", envelope.WebSearchUsed,
		"generationAttempts", envelope.GenerationAttempts,
		"failureReason", envelope.FailureReason,
	)
	return envelope, nil
}

// runPhase dispatches to the handler for the state's current phase.
func (w *Workflow) runPhase(ctx context.Context, state *State) error {
	switch state.Phase {
	case PhaseRetrieve:
		return w.phaseRetrieve(ctx, state)
	case PhaseGrade:
		return w.phaseGrade(ctx, state)
	case PhaseWebSearch:
		return w.phaseWebSearch(ctx, state)
	case PhaseGenerate:
		return w.phaseGenerate(ctx, state)
	case PhaseValidateGrounding:
		return w.phaseValidateGrounding(ctx, state)
	case PhaseValidateQuality:
		return w.phaseValidateQuality(ctx, state)
	default:
		return fmt.Errorf("no handler for phase %q", state.Phase)
	}
}

// applyFailurePolicy maps a phase failure onto the escalation graph.
//
// Retrieval and grading failures escalate to web search when the budget
// allows, otherwise terminate unverified. Validator failures count as a
// failed verdict and follow the normal retry/escalation edges. Generation
// and exhausted-websearch failures are fatal only when no draft exists to
// fall back to.
func (w *Workflow) applyFailurePolicy(state *State, phase Phase, err error) (next Phase, fatal bool) {
	slog.Warn("Workflow phase failed", "phase", phase, "error", err)

	switch phase {
	case PhaseRetrieve, PhaseGrade:
		if canEscalate(state, w.limits) {
			state.FailureReason = fmt.Sprintf("local evidence unavailable: %v", err)
			return PhaseWebSearch, false
		}
		state.FailureReason = fmt.Sprintf("evidence phase %s failed: %v", phase, err)
		return PhaseDone, false

	case PhaseWebSearch:
		// No escalation path remains past web search.
		state.FailureReason = fmt.Sprintf("web search failed: %v", err)
		return PhaseDone, false

	case PhaseGenerate:
		// Generation failure after the low-level retry is a terminal error.
		return PhaseDone, true

	case PhaseValidateGrounding:
		state.Verdict.Grounded = false
		state.FailureReason = fmt.Sprintf("grounding validation errored: %v", err)
		w.metrics.ObserveValidationFailure("grounding")
		return retryOrEscalate(state, w.limits), false

	case PhaseValidateQuality:
		state.Verdict.AddressesQuestion = false
		state.FailureReason = fmt.Sprintf("quality validation errored: %v", err)
		w.metrics.ObserveValidationFailure("quality")
		return retryOrEscalate(state, w.limits), false

	default:
		return PhaseDone, true
	}
}

// =============================================================================
// Phase Handlers
// =============================================================================

// phaseRetrieve pulls up to RetrievalK candidate passages for the query.
func (w *Workflow) phaseRetrieve(ctx context.Context, state *State) error {
	ctx, span := machineTracer.Start(ctx, "Workflow.phaseRetrieve")
	defer span.End()

	var candidates []datatypes.Passage
	err := w.call(ctx, "retrieve", func(ctx context.Context) error {
		var err error
		candidates, err = w.store.Search(ctx, state.Query.Text, state.Query.Collection, w.limits.RetrievalK)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return &PhaseError{Phase: PhaseRetrieve, Err: err}
	}

	state.Candidates = candidates
	span.SetAttributes(attribute.Int("retrieve.candidates", len(candidates)))
	slog.Info("Retrieved candidate passages",
		"collection", state.Query.Collection, "count", len(candidates))
	return nil
}

// phaseGrade scores every local candidate and applies the sufficiency gate.
//
// A grading failure for a single passage does not abort the batch: the
// passage is scored 0 (least relevant) and logged. The phase fails only
// when every passage in the batch failed to grade.
func (w *Workflow) phaseGrade(ctx context.Context, state *State) error {
	ctx, span := machineTracer.Start(ctx, "Workflow.phaseGrade")
	defer span.End()

	var kept []datatypes.GradedPassage
	failures := 0
	for _, passage := range state.Candidates {
		var score float64
		err := w.call(ctx, "grade", func(ctx context.Context) error {
			var err error
			score, err = w.grader.Grade(ctx, state.Query.Text, passage)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return &PhaseError{Phase: PhaseGrade, Err: ctx.Err()}
			}
			failures++
			score = 0
			slog.Warn("Passage grading failed, scoring as least relevant",
				"source", passage.Source, "error", err)
		}

		if score >= w.limits.RelevanceThreshold {
			slog.Debug("Passage kept by sufficiency gate", "source", passage.Source, "score", score)
			kept = append(kept, datatypes.GradedPassage{Passage: passage, Score: score})
		} else {
			slog.Debug("Passage discarded by sufficiency gate", "source", passage.Source, "score", score)
		}
	}

	if failures > 0 && failures == len(state.Candidates) {
		err := fmt.Errorf("grading failed for all %d passages", failures)
		span.RecordError(err)
		return &PhaseError{Phase: PhaseGrade, Err: err}
	}

	state.Kept = kept
	w.metrics.ObservePassagesKept(len(kept))
	span.SetAttributes(
		attribute.Int("grade.candidates", len(state.Candidates)),
		attribute.Int("grade.kept", len(kept)),
		attribute.Int("grade.failures", failures),
	)
	slog.Info("Applied sufficiency gate",
		"candidates", len(state.Candidates),
		"kept", len(kept),
		"threshold", w.limits.RelevanceThreshold,
	)
	return nil
}

// phaseWebSearch fetches fallback evidence and appends it to the kept set.
// Provider scores pass through unchanged; web passages are never re-graded.
func (w *Workflow) phaseWebSearch(ctx context.Context, state *State) error {
	ctx, span := machineTracer.Start(ctx, "Workflow.phaseWebSearch")
	defer span.End()

	trigger := "insufficient_evidence"
	if state.Draft != nil {
		trigger = "validation_failure"
	}
	state.WebSearchUses++
	w.metrics.ObserveWebSearch(trigger)
	span.SetAttributes(
		attribute.String("websearch.trigger", trigger),
		attribute.Int("websearch.uses", state.WebSearchUses),
	)
	slog.Info("Escalating to web search", "trigger", trigger, "uses", state.WebSearchUses)

	var results []datatypes.GradedPassage
	err := w.call(ctx, "websearch", func(ctx context.Context) error {
		var err error
		results, err = w.web.Search(ctx, state.Query.Text)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return &PhaseError{Phase: PhaseWebSearch, Err: err}
	}

	if len(results) > w.limits.WebSearchResults {
		results = results[:w.limits.WebSearchResults]
	}
	state.Kept = append(state.Kept, results...)
	span.SetAttributes(attribute.Int("websearch.results", len(results)))
	slog.Info("Web search contributed passages", "count", len(results))
	return nil
}

// phaseGenerate produces a new Draft from the kept passages. Each attempt
// supersedes the previous Draft; validator verdicts are reset with it.
func (w *Workflow) phaseGenerate(ctx context.Context, state *State) error {
	ctx, span := machineTracer.Start(ctx, "Workflow.phaseGenerate")
	defer span.End()

	state.GenerationAttempts++
	state.Verdict = datatypes.ValidationVerdict{}
	span.SetAttributes(attribute.Int("generate.attempt", state.GenerationAttempts))

	var draft *datatypes.Draft
	err := w.call(ctx, "generate", func(ctx context.Context) error {
		var err error
		draft, err = w.generator.Generate(ctx, state.Query, state.Kept, state.GenerationAttempts)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return &PhaseError{Phase: PhaseGenerate, Err: err}
	}

	state.Draft = draft
	slog.Info("Generated draft answer",
		"attempt", state.GenerationAttempts, "passages", len(state.Kept))
	return nil
}

// phaseValidateGrounding records the grounding verdict for the draft.
func (w *Workflow) phaseValidateGrounding(ctx context.Context, state *State) error {
	ctx, span := machineTracer.Start(ctx, "Workflow.phaseValidateGrounding")
	defer span.End()

	var grounded bool
	err := w.call(ctx, "validate_grounding", func(ctx context.Context) error {
		var err error
		grounded, err = w.grounding.IsGrounded(ctx, state.Draft)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return &PhaseError{Phase: PhaseValidateGrounding, Err: err}
	}

	state.Verdict.Grounded = grounded
	span.SetAttributes(attribute.Bool("validate.grounded", grounded))
	if !grounded {
		w.metrics.ObserveValidationFailure("grounding")
		slog.Info("Draft is not grounded in its evidence", "attempt", state.Draft.Attempt)
	}
	return nil
}

// phaseValidateQuality records the question-resolution verdict.
func (w *Workflow) phaseValidateQuality(ctx context.Context, state *State) error {
	ctx, span := machineTracer.Start(ctx, "Workflow.phaseValidateQuality")
	defer span.End()

	var addresses bool
	err := w.call(ctx, "validate_quality", func(ctx context.Context) error {
		var err error
		addresses, err = w.quality.AddressesQuestion(ctx, state.Query.Text, state.Draft)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return &PhaseError{Phase: PhaseValidateQuality, Err: err}
	}

	state.Verdict.AddressesQuestion = addresses
	span.SetAttributes(attribute.Bool("validate.addresses_question", addresses))
	if !addresses {
		w.metrics.ObserveValidationFailure("quality")
		slog.Info("Draft does not address the question", "attempt", state.Draft.Attempt)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// call runs one external operation under the per-call timeout with a single
// immediate low-level retry. A timeout is treated exactly like a provider
// failure. Cancellation of the enclosing query is never retried; the
// in-flight result is discarded and the context error returned.
func (w *Workflow) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, w.limits.CallTimeout)
		defer cancel()
		return fn(callCtx)
	}

	err := attempt()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	span := trace.SpanFromContext(ctx)
	span.AddEvent("call_retry", trace.WithAttributes(attribute.String("op", op)))
	slog.Warn("External call failed, retrying once", "op", op, "error", err)

	if err = attempt(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed after retry: %w", op, err)
	}
	return nil
}

// buildEnvelope assembles the terminal answer envelope from run state.
// The envelope always reports the final Draft's passages verbatim so
// provenance is preserved on every path.
func (w *Workflow) buildEnvelope(state *State) *datatypes.AnswerEnvelope {
	env := &datatypes.AnswerEnvelope{
		Verdict:            state.Verdict,
		WebSearchUsed:      state.WebSearchUsed(),
		GenerationAttempts: state.GenerationAttempts,
	}
	if state.Draft != nil {
		env.Answer = state.Draft.AnswerText
		env.Passages = state.Draft.PassagesUsed
		env.Verified = state.Verdict.Grounded && state.Verdict.AddressesQuestion
	}

	if !env.Verified {
		switch {
		case state.FailureReason != "":
			env.FailureReason = state.FailureReason
		case state.Draft == nil:
			env.FailureReason = "no relevant evidence found for the question"
		case !state.Verdict.Grounded:
			env.FailureReason = fmt.Sprintf(
				"answer could not be verified as grounded after %d generation attempts",
				state.GenerationAttempts)
		default:
			env.FailureReason = fmt.Sprintf(
				"answer did not address the question after %d generation attempts",
				state.GenerationAttempts)
		}
	}
	return env
}
