// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover the answer workflow end to end: outcome counters, phase
// latencies, web-search escalations, validation verdicts, and generation
// attempt distribution. Exposed via the /metrics endpoint for Prometheus
// scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "savvy"

const workflowSubsystem = "workflow"

// WorkflowMetrics holds all Prometheus metrics for answer workflow runs.
//
// Initialize once at startup via NewWorkflowMetrics() and share the
// instance; promauto registers with the default registry, so constructing
// it twice in one process panics.
type WorkflowMetrics struct {
	// RunsTotal counts completed workflow runs.
	// Labels: outcome (verified, unverified, error)
	RunsTotal *prometheus.CounterVec

	// PhaseDurationSeconds measures wall time per workflow phase.
	// Labels: phase (retrieve, grade, generate, websearch, ...)
	PhaseDurationSeconds *prometheus.HistogramVec

	// WebSearchTotal counts web-search escalations.
	// Labels: trigger (insufficient_evidence, validation_failure)
	WebSearchTotal *prometheus.CounterVec

	// ValidationFailuresTotal counts failed validation verdicts.
	// Labels: validator (grounding, quality)
	ValidationFailuresTotal *prometheus.CounterVec

	// GenerationAttempts observes total generation attempts per run.
	GenerationAttempts prometheus.Histogram

	// PassagesKept observes how many passages survive the sufficiency gate.
	PassagesKept prometheus.Histogram
}

// NewWorkflowMetrics creates and registers all workflow metrics.
func NewWorkflowMetrics() *WorkflowMetrics {
	return &WorkflowMetrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: workflowSubsystem,
			Name:      "runs_total",
			Help:      "Completed answer workflow runs by outcome.",
		}, []string{"outcome"}),

		PhaseDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: workflowSubsystem,
			Name:      "phase_duration_seconds",
			Help:      "Wall time spent in each workflow phase.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"phase"}),

		WebSearchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: workflowSubsystem,
			Name:      "websearch_total",
			Help:      "Web-search escalations by trigger.",
		}, []string{"trigger"}),

		ValidationFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: workflowSubsystem,
			Name:      "validation_failures_total",
			Help:      "Failed validation verdicts by validator.",
		}, []string{"validator"}),

		GenerationAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: workflowSubsystem,
			Name:      "generation_attempts",
			Help:      "Generation attempts per workflow run.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		PassagesKept: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: workflowSubsystem,
			Name:      "passages_kept",
			Help:      "Passages surviving the sufficiency gate per run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}),
	}
}

// ObserveRun records the terminal outcome counters for one run.
func (m *WorkflowMetrics) ObserveRun(outcome string, generationAttempts int) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.GenerationAttempts.Observe(float64(generationAttempts))
}

// ObservePhase records one phase execution's duration in seconds.
func (m *WorkflowMetrics) ObservePhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.PhaseDurationSeconds.WithLabelValues(phase).Observe(seconds)
}

// ObserveWebSearch records a web-search escalation.
func (m *WorkflowMetrics) ObserveWebSearch(trigger string) {
	if m == nil {
		return
	}
	m.WebSearchTotal.WithLabelValues(trigger).Inc()
}

// ObserveValidationFailure records a failed verdict.
func (m *WorkflowMetrics) ObserveValidationFailure(validator string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(validator).Inc()
}

// ObservePassagesKept records the gate survivor count.
func (m *WorkflowMetrics) ObservePassagesKept(n int) {
	if m == nil {
		return
	}
	m.PassagesKept.Observe(float64(n))
}
