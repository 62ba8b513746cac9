// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy classifies text against an embedded rule set before it is
// allowed to leave the deployment or enter the document store.
package policy

import (
	"fmt"
	"strings"

	"github.com/knowledgesavvy/knowledgesavvy/services/policy/enforcement"
	"gopkg.in/yaml.v3"
)

// PublicCategory is returned by Classify when no rule matches.
const PublicCategory = "public"

// Engine holds the compiled rule set and answers classification queries.
//
// # Thread Safety
//
// Safe for concurrent use after construction; the rules are read-only.
type Engine struct {
	Categories []Category
}

// NewEngine loads the rule definitions embedded in the binary.
//
// It unmarshals the embedded YAML, compiles every regex, and sorts the
// categories by priority. Returns an error if the YAML is malformed or
// contains an invalid regex.
func NewEngine() (*Engine, error) {
	var rulesFile RulesFile
	if err := yaml.Unmarshal(enforcement.EgressRules, &rulesFile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded rules file: %w", err)
	}

	if err := rulesFile.Compile(); err != nil {
		return nil, fmt.Errorf("failed to compile the embedded rules: %w", err)
	}
	rulesFile.SortByPriority()

	return &Engine{Categories: rulesFile.Categories}, nil
}

// Classify performs a quick boolean check on a byte slice.
//
// Categories are tried in priority order and the name of the first match
// wins. Returns "public" when nothing matches. Optimized for the hot path
// in front of every web search escalation.
func (e *Engine) Classify(data []byte) string {
	for _, category := range e.Categories {
		for _, pattern := range category.Patterns {
			if pattern.compiled.Match(data) {
				return category.Name
			}
		}
	}
	return PublicCategory
}

// AllowEgress reports whether text may be sent to an external provider.
//
// Anything that classifies into a named category stays inside the
// deployment; only "public" text may leave.
func (e *Engine) AllowEgress(text string) bool {
	return e.Classify([]byte(text)) == PublicCategory
}

// Scan performs a comprehensive audit of a string.
//
// The content is split into lines and every line is checked against every
// pattern, capturing line numbers and the matched text. Intended for the
// ingestion pipeline where detailed feedback is required.
func (e *Engine) Scan(content string) []Finding {
	var findings []Finding
	lines := strings.Split(content, "\n")
	for lineNum, line := range lines {
		for _, category := range e.Categories {
			for _, pattern := range category.Patterns {
				match := pattern.compiled.FindString(line)
				if match != "" {
					findings = append(findings, Finding{
						LineNumber:     lineNum + 1,
						MatchedContent: strings.TrimSpace(match),
						CategoryName:   category.Name,
						PatternId:      pattern.Id,
						Description:    pattern.Description,
						Confidence:     pattern.Confidence,
					})
				}
			}
		}
	}
	return findings
}
