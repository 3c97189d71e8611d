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

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Common Weaviate Response Types
// =============================================================================

// StrategyRecordQueryResponse represents a query over the StrategyRecord class.
type StrategyRecordQueryResponse struct {
	Get struct {
		StrategyRecord []StrategyRecordResult `json:"StrategyRecord"`
	} `json:"Get"`
}

// StrategyRecordResult is a single strategy record from a query.
type StrategyRecordResult struct {
	Title                   string   `json:"title"`
	Category                string   `json:"category"`
	Approach                string   `json:"approach"`
	Rationale               string   `json:"rationale"`
	ActionableSteps         string   `json:"actionable_steps"`
	PlanConstraints         string   `json:"plan_constraints"`
	OptimizationType        string   `json:"optimization_type"`
	LLMScoreSpeed           *float64 `json:"llm_score_speed"`
	LLMScoreCost            *float64 `json:"llm_score_cost"`
	LLMScoreEffort          *float64 `json:"llm_score_effort"`
	LLMConfidence           *float64 `json:"llm_confidence"`
	HumanScoreEffectiveness *float64 `json:"human_score_effectiveness"`
	NumRatings              *int     `json:"num_ratings"`
	ContentHash             string   `json:"content_hash"`
	ValidationStatus        string   `json:"validation_status"`
	CreatedAt               int64    `json:"created_at"`
	UpdatedAt               int64    `json:"updated_at"`
	Additional              struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// ToRecord converts a query result into a StrategyRecord.
func (r StrategyRecordResult) ToRecord() StrategyRecord {
	rec := StrategyRecord{
		ID:                      r.Additional.ID,
		Title:                   r.Title,
		Category:                r.Category,
		Approach:                r.Approach,
		Rationale:               r.Rationale,
		PlanConstraints:         r.PlanConstraints,
		OptimizationType:        OptimizationType(r.OptimizationType),
		HumanScoreEffectiveness: r.HumanScoreEffectiveness,
		ContentHash:             r.ContentHash,
		ValidationStatus:        ComplianceStatus(r.ValidationStatus),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
	if r.LLMScoreSpeed != nil {
		rec.LLMScoreSpeed = *r.LLMScoreSpeed
	}
	if r.LLMScoreCost != nil {
		rec.LLMScoreCost = *r.LLMScoreCost
	}
	if r.LLMScoreEffort != nil {
		rec.LLMScoreEffort = *r.LLMScoreEffort
	}
	if r.LLMConfidence != nil {
		rec.LLMConfidence = *r.LLMConfidence
	}
	if r.NumRatings != nil {
		rec.NumRatings = *r.NumRatings
	}
	if r.ActionableSteps != "" {
		_ = json.Unmarshal([]byte(r.ActionableSteps), &rec.ActionableSteps)
	}
	return rec
}

// StrategyVectorQueryResponse represents a query over the StrategyVector class.
type StrategyVectorQueryResponse struct {
	Get struct {
		StrategyVector []StrategyVectorResult `json:"StrategyVector"`
	} `json:"Get"`
}

// StrategyVectorResult is a single vector row from a similarity query.
type StrategyVectorResult struct {
	StrategyID   string `json:"strategy_id"`
	Category     string `json:"category"`
	ModelVersion string `json:"model_version"`
	Additional   struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
		Distance  *float32 `json:"distance"`
	} `json:"_additional"`
}

// RegulatoryQueryResponse represents a query over the RegulatoryDocument class.
type RegulatoryQueryResponse struct {
	Get struct {
		RegulatoryDocument []RegulatoryDocumentResult `json:"RegulatoryDocument"`
	} `json:"Get"`
}

// RegulatoryDocumentResult is a single regulatory chunk from a query.
type RegulatoryDocumentResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Section    string `json:"section"`
	Category   string `json:"category"`
	IngestedAt int64  `json:"ingested_at"`
	Additional struct {
		ID    string   `json:"id"`
		Score *string  `json:"score"`
		Cert  *float32 `json:"certainty"`
	} `json:"_additional"`
}
