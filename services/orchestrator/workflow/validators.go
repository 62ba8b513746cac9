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
	"strings"

	"github.com/knowledgesavvy/knowledgesavvy/services/llm"
	"github.com/knowledgesavvy/knowledgesavvy/services/orchestrator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var validatorTracer = otel.Tracer("savvy.orchestrator.workflow.validators")

// Compile-time interface implementation checks.
var (
	_ GroundingValidator = (*LLMGroundingValidator)(nil)
	_ QualityValidator   = (*LLMQualityValidator)(nil)
)

// LLMGroundingValidator checks that a draft is supported by its passages.
//
// The validator renders GroundingPromptTemplate with the draft's own
// passages as the fact set, so the check is always against the evidence the
// generator actually saw, never the full candidate pool.
type LLMGroundingValidator struct {
	client llm.LLMClient
}

// NewLLMGroundingValidator creates a grounding validator backed by the
// given LLM client.
func NewLLMGroundingValidator(client llm.LLMClient) *LLMGroundingValidator {
	return &LLMGroundingValidator{client: client}
}

type groundingVerdict struct {
	Grounded bool `json:"grounded"`
}

// IsGrounded implements GroundingValidator.
func (v *LLMGroundingValidator) IsGrounded(ctx context.Context, draft *datatypes.Draft) (bool, error) {
	ctx, span := validatorTracer.Start(ctx, "LLMGroundingValidator.IsGrounded")
	defer span.End()
	span.SetAttributes(attribute.Int("draft.attempt", draft.Attempt))

	var prompt strings.Builder
	err := tmplGrounding.Execute(&prompt, map[string]string{
		"Facts":  FormatContext(draft.PassagesUsed),
		"Answer": draft.AnswerText,
	})
	if err != nil {
		return false, fmt.Errorf("failed to render grounding prompt: %w", err)
	}

	raw, err := v.client.Generate(ctx, prompt.String(), graderParams())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grounding call failed")
		return false, fmt.Errorf("grounding validation failed: %w", err)
	}

	var verdict groundingVerdict
	if err := decodeModelJSON(raw, &verdict); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable grounding verdict")
		return false, fmt.Errorf("grounding verdict unparseable: %w", err)
	}
	span.SetAttributes(attribute.Bool("draft.grounded", verdict.Grounded))
	return verdict.Grounded, nil
}

// LLMQualityValidator checks that a draft resolves the question asked.
type LLMQualityValidator struct {
	client llm.LLMClient
}

// NewLLMQualityValidator creates a quality validator backed by the given
// LLM client.
func NewLLMQualityValidator(client llm.LLMClient) *LLMQualityValidator {
	return &LLMQualityValidator{client: client}
}

type qualityVerdict struct {
	AddressesQuestion bool `json:"addresses_question"`
}

// AddressesQuestion implements QualityValidator.
func (v *LLMQualityValidator) AddressesQuestion(ctx context.Context, question string, draft *datatypes.Draft) (bool, error) {
	ctx, span := validatorTracer.Start(ctx, "LLMQualityValidator.AddressesQuestion")
	defer span.End()
	span.SetAttributes(attribute.Int("draft.attempt", draft.Attempt))

	var prompt strings.Builder
	err := tmplQuality.Execute(&prompt, map[string]string{
		"Question": question,
		"Answer":   draft.AnswerText,
	})
	if err != nil {
		return false, fmt.Errorf("failed to render quality prompt: %w", err)
	}

	raw, err := v.client.Generate(ctx, prompt.String(), graderParams())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quality call failed")
		return false, fmt.Errorf("quality validation failed: %w", err)
	}

	var verdict qualityVerdict
	if err := decodeModelJSON(raw, &verdict); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable quality verdict")
		return false, fmt.Errorf("quality verdict unparseable: %w", err)
	}
	span.SetAttributes(attribute.Bool("draft.addresses_question", verdict.AddressesQuestion))
	return verdict.AddressesQuestion, nil
}
