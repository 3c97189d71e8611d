// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains the wire types for the strategy and feedback endpoints.
package datatypes

// StrategyResponseItem is one of the four strategies in the pipeline
// response, carrying its validation annotation.
type StrategyResponseItem struct {
	OptimizationType  OptimizationType   `json:"optimization_type"`
	Title             string             `json:"title"`
	Approach          string             `json:"approach"`
	Rationale         string             `json:"rationale"`
	ActionableSteps   []string           `json:"actionable_steps"`
	LLMScoreSpeed     float64            `json:"llm_score_speed"`
	LLMScoreCost      float64            `json:"llm_score_cost"`
	LLMScoreEffort    float64            `json:"llm_score_effort"`
	LLMConfidence     float64            `json:"llm_confidence"`
	ComplianceStatus  ComplianceStatus   `json:"compliance_status"`
	ValidationReasons []ValidationReason `json:"validation_reasons"`
	ContentHash       string             `json:"content_hash"`
	Fallback          bool               `json:"fallback,omitempty"`
}

// StorageSummary reports what the durable store acknowledged on the
// request path. StrategyIDs are deterministic, so they are valid even while
// the background commit is still in flight.
type StorageSummary struct {
	Buffered    bool     `json:"buffered"`
	StrategyIDs []string `json:"strategy_ids"`
}

// TimingBreakdown carries per-stage wall-clock milliseconds for
// observability; Total covers the whole pipeline.
type TimingBreakdown struct {
	Context    int64 `json:"context"`
	Generation int64 `json:"generation"`
	Validation int64 `json:"validation"`
	Storage    int64 `json:"storage"`
	Total      int64 `json:"total"`
}

// GenerateStrategiesResponse is the body of a successful (possibly degraded)
// POST /v1/strategies.
type GenerateStrategiesResponse struct {
	Strategies []StrategyResponseItem `json:"strategies"`
	Degraded   bool                   `json:"degraded"`
	Storage    StorageSummary         `json:"storage"`
	TimingMs   TimingBreakdown        `json:"timing_ms"`
}

// FeedbackRequest is the body of POST /v1/strategies/:strategyId/feedback.
type FeedbackRequest struct {
	EffectivenessRating *float64 `json:"effectiveness_rating" validate:"required,gte=1,lte=5"`
}

// FeedbackResponse is the body of a successful feedback call.
type FeedbackResponse struct {
	NewAverage float64 `json:"new_average"`
	NumRatings int     `json:"num_ratings"`
}

// RegulatoryIngestRequest is the body of POST /v1/regulatory/documents.
type RegulatoryIngestRequest struct {
	Source   string `json:"source" validate:"required"`
	Section  string `json:"section"`
	Category string `json:"category" validate:"required"`
	Content  string `json:"content" validate:"required"`
}

// RegulatoryIngestResponse reports how many chunks were stored.
type RegulatoryIngestResponse struct {
	Source      string `json:"source"`
	ChunksAdded int    `json:"chunks_added"`
}
