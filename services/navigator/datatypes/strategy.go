// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// =============================================================================
// Optimization Types
// =============================================================================

// OptimizationType labels which axis a strategy optimizes for.
type OptimizationType string

const (
	OptimizeSpeed    OptimizationType = "speed"
	OptimizeCost     OptimizationType = "cost"
	OptimizeEffort   OptimizationType = "effort"
	OptimizeBalanced OptimizationType = "balanced"
)

// AllOptimizationTypes returns the four axes in their canonical order.
// Every request produces exactly one strategy per entry.
func AllOptimizationTypes() []OptimizationType {
	return []OptimizationType{OptimizeSpeed, OptimizeCost, OptimizeEffort, OptimizeBalanced}
}

// IsValid reports whether t is one of the four known optimization types.
func (t OptimizationType) IsValid() bool {
	switch t {
	case OptimizeSpeed, OptimizeCost, OptimizeEffort, OptimizeBalanced:
		return true
	}
	return false
}

// =============================================================================
// Strategy
// =============================================================================

// Strategy is one of the exactly four strategies produced per request.
//
// # Description
//
// Created by the generator and read-only afterward except for the validation
// annotation attached by the compliance validator. LLM self-scores are always
// in [0,1]. ContentHash is the deterministic fingerprint used for
// deduplication in the buffer and the durable store.
type Strategy struct {
	OptimizationType OptimizationType `json:"optimization_type"`
	Title            string           `json:"title"`
	Approach         string           `json:"approach"`
	Rationale        string           `json:"rationale"`
	ActionableSteps  []string         `json:"actionable_steps"`
	LLMScoreSpeed    float64          `json:"llm_score_speed"`
	LLMScoreCost     float64          `json:"llm_score_cost"`
	LLMScoreEffort   float64          `json:"llm_score_effort"`
	LLMConfidence    float64          `json:"llm_confidence"`
	ContentHash      string           `json:"content_hash"`

	// Fallback marks deterministically templated content substituted after
	// repeated generation failures. Confidence is forced low so consumers
	// can tell genuine from fallback strategies.
	Fallback bool `json:"fallback,omitempty"`
}

// =============================================================================
// Content Hash
// =============================================================================

// normalizeForHash lowercases and collapses internal whitespace so cosmetic
// differences do not defeat deduplication.
func normalizeForHash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ComputeContentHash returns the deterministic fingerprint of a strategy's
// semantic content: normalized title, approach, and the canonical constraint
// key, joined and hashed with SHA-256.
func ComputeContentHash(title, approach string, constraints PlanConstraints) string {
	h := sha256.New()
	h.Write([]byte(normalizeForHash(title)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeForHash(approach)))
	h.Write([]byte{0})
	h.Write([]byte(constraints.CanonicalKey()))
	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// Context Bundle
// =============================================================================

// WebSearchHit is one result from the web-search provider.
type WebSearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SimilarStrategy is a previously stored strategy retrieved by semantic
// similarity, carried with its score for prompt construction.
type SimilarStrategy struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Approach   string  `json:"approach"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

// RegulatoryPassage is a chunk of regulatory text retrieved by keyword.
type RegulatoryPassage struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Content string `json:"content"`
}

// ContextBundle is the per-request context fed to the generator.
//
// Created by the gatherer, consumed once, never persisted. Degraded is set
// when the web-search leg failed and only semantic and regulatory context
// is available.
type ContextBundle struct {
	WebHits            []WebSearchHit      `json:"web_hits"`
	SimilarStrategies  []SimilarStrategy   `json:"similar_strategies"`
	RegulatoryPassages []RegulatoryPassage `json:"regulatory_passages"`
	Degraded           bool                `json:"degraded"`
}

// Empty reports whether no context source produced anything.
func (b ContextBundle) Empty() bool {
	return len(b.WebHits) == 0 && len(b.SimilarStrategies) == 0 && len(b.RegulatoryPassages) == 0
}
