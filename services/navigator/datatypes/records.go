// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Durable Records
// =============================================================================

// StrategyRecord is the durable metadata row for a committed strategy.
//
// # Description
//
// One row per unique content hash. HumanScoreEffectiveness is nil until the
// first feedback arrives, then always in [1.0, 5.0]. LLM scores are frozen at
// generation time; feedback updates never touch them. A StrategyVector row
// exists if and only if the record is committed.
type StrategyRecord struct {
	ID                      string           `json:"id"`
	Title                   string           `json:"title"`
	Category                string           `json:"category"`
	Approach                string           `json:"approach"`
	Rationale               string           `json:"rationale"`
	ActionableSteps         []string         `json:"actionable_steps"`
	PlanConstraints         string           `json:"plan_constraints"`
	OptimizationType        OptimizationType `json:"optimization_type"`
	LLMScoreSpeed           float64          `json:"llm_score_speed"`
	LLMScoreCost            float64          `json:"llm_score_cost"`
	LLMScoreEffort          float64          `json:"llm_score_effort"`
	LLMConfidence           float64          `json:"llm_confidence"`
	HumanScoreEffectiveness *float64         `json:"human_score_effectiveness"`
	NumRatings              int              `json:"num_ratings"`
	ContentHash             string           `json:"content_hash"`
	ValidationStatus        ComplianceStatus `json:"validation_status"`
	CreatedAt               int64            `json:"created_at"`
	UpdatedAt               int64            `json:"updated_at"`
}

// StrategyVector is the embedding row coupled one-to-one to a StrategyRecord.
// Category is denormalized from the record so similarity search can
// pre-filter without a join.
type StrategyVector struct {
	StrategyID   string    `json:"strategy_id"`
	Category     string    `json:"category"`
	Embedding    []float32 `json:"embedding"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    int64     `json:"created_at"`
}

// =============================================================================
// Weaviate Property Maps
// =============================================================================

// ToMap converts a StrategyRecord to the property map Weaviate expects.
func (r *StrategyRecord) ToMap() map[string]interface{} {
	steps, _ := json.Marshal(r.ActionableSteps)
	props := map[string]interface{}{
		"title":             r.Title,
		"category":          r.Category,
		"approach":          r.Approach,
		"rationale":         r.Rationale,
		"actionable_steps":  string(steps),
		"plan_constraints":  r.PlanConstraints,
		"optimization_type": string(r.OptimizationType),
		"llm_score_speed":   r.LLMScoreSpeed,
		"llm_score_cost":    r.LLMScoreCost,
		"llm_score_effort":  r.LLMScoreEffort,
		"llm_confidence":    r.LLMConfidence,
		"num_ratings":       r.NumRatings,
		"content_hash":      r.ContentHash,
		"validation_status": string(r.ValidationStatus),
		"created_at":        r.CreatedAt,
		"updated_at":        r.UpdatedAt,
	}
	if r.HumanScoreEffectiveness != nil {
		props["human_score_effectiveness"] = *r.HumanScoreEffectiveness
	}
	return props
}

// ToMap converts a StrategyVector to the property map Weaviate expects.
// The embedding itself travels as the object vector, not a property.
func (v *StrategyVector) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"strategy_id":   v.StrategyID,
		"category":      v.Category,
		"model_version": v.ModelVersion,
		"created_at":    v.CreatedAt,
	}
}

// =============================================================================
// Confirmations
// =============================================================================

// StorageConfirmation acknowledges a buffer write on the request path.
// Committed is false while the background processor still owns the entry.
type StorageConfirmation struct {
	StrategyID  string `json:"strategy_id"`
	ContentHash string `json:"content_hash"`
	Buffered    bool   `json:"buffered"`
	Committed   bool   `json:"committed"`
}

// FeedbackConfirmation reports the new human-score aggregate after feedback.
type FeedbackConfirmation struct {
	NewAverage float64 `json:"new_average"`
	NumRatings int     `json:"num_ratings"`
}

// =============================================================================
// Not Found
// =============================================================================

// NotFoundError is returned when a feedback request names an unknown strategy.
type NotFoundError struct {
	StrategyID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("strategy %q not found", e.StrategyID)
}
