// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// RulesFile mirrors the on-disk YAML layout of the embedded rule set.
type RulesFile struct {
	Categories []Category `yaml:"categories"`
}

// Category groups patterns under one classification name with a priority.
type Category struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern is a single detection rule.
type Pattern struct {
	Id          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`

	compiled *regexp.Regexp `yaml:"-"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

// Compile builds every pattern's regex. An invalid regex fails the whole
// file; a partially compiled rule set must never be used.
func (r *RulesFile) Compile() error {
	for i := range r.Categories {
		for j := range r.Categories[i].Patterns {
			pattern := &r.Categories[i].Patterns[j]
			re, err := regexp.Compile(pattern.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
			}
			pattern.compiled = re
		}
	}
	return nil
}

// SortByPriority orders categories from highest to lowest priority so the
// fast classification returns the most severe matching category first.
func (r *RulesFile) SortByPriority() {
	sort.Slice(r.Categories, func(i, j int) bool {
		return r.Categories[i].Priority > r.Categories[j].Priority
	})
}

// Finding records one pattern match inside scanned text.
type Finding struct {
	LineNumber     int             `json:"line_number"`
	MatchedContent string          `json:"matched_content"`
	CategoryName   string          `json:"category_name"`
	PatternId      string          `json:"pattern_id"`
	Description    string          `json:"description"`
	Confidence     ConfidenceLevel `json:"confidence"`
}
