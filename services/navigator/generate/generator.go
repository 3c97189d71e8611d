// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generate produces exactly four candidate strategies per request,
// one per optimization axis, from an LLM backend.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/llm"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("navigator.generate")

// FallbackConfidence marks deterministically templated content so consumers
// can tell it apart from genuine model output.
const FallbackConfidence = 0.1

// generationTemperature keeps the four strategies creative but parseable.
var generationTemperature = float32(0.7)

// llmStrategyPayload is the strict JSON shape the model must return.
type llmStrategyPayload struct {
	Title           string   `json:"title"`
	Approach        string   `json:"approach"`
	Rationale       string   `json:"rationale"`
	ActionableSteps []string `json:"actionable_steps"`
	LLMScoreSpeed   *float64 `json:"llm_score_speed"`
	LLMScoreCost    *float64 `json:"llm_score_cost"`
	LLMScoreEffort  *float64 `json:"llm_score_effort"`
	LLMConfidence   *float64 `json:"llm_confidence"`
}

// Generator turns constraints plus context into four strategies.
//
// # Description
//
// The four axis prompts run concurrently, each with its own parse-and-retry
// budget: a response that fails strict JSON parsing or range validation gets
// exactly one corrective re-prompt; a second failure substitutes a
// deterministic fallback strategy with confidence pinned to
// FallbackConfidence. Stage-budget expiry is just another failure mode per
// axis, so the generator always returns four strategies; a request never
// comes back empty-handed from this stage.
//
// # Thread Safety
//
// Safe for concurrent use; all state is per-call.
type Generator struct {
	client llm.LLMClient
}

// NewGenerator creates a generator over the given backend.
func NewGenerator(client llm.LLMClient) *Generator {
	return &Generator{client: client}
}

// Generate produces the four strategies for one request.
//
// # Outputs
//
//   - []datatypes.Strategy: Exactly four, in canonical axis order
//     (speed, cost, effort, balanced). Axes whose model output was
//     unusable, including on ctx expiry, carry the deterministic fallback.
//   - error: Always nil; the signature satisfies the pipeline's stage
//     contract.
func (g *Generator) Generate(ctx context.Context, constraints datatypes.PlanConstraints, bundle datatypes.ContextBundle) ([]datatypes.Strategy, error) {
	ctx, span := tracer.Start(ctx, "Generator.Generate")
	defer span.End()

	axes := datatypes.AllOptimizationTypes()
	strategies := make([]datatypes.Strategy, len(axes))

	var wg sync.WaitGroup
	for i, axis := range axes {
		wg.Add(1)
		go func(i int, axis datatypes.OptimizationType) {
			defer wg.Done()
			strategies[i] = g.generateOne(ctx, axis, constraints, bundle)
		}(i, axis)
	}
	wg.Wait()

	fallbacks := 0
	for _, s := range strategies {
		if s.Fallback {
			fallbacks++
		}
	}
	span.SetAttributes(attribute.Int("generate.fallbacks", fallbacks))
	if fallbacks > 0 {
		slog.Warn("Generation substituted fallback strategies", "count", fallbacks)
	}
	return strategies, nil
}

// generateOne runs the prompt/parse/retry/fallback ladder for one axis.
func (g *Generator) generateOne(ctx context.Context, axis datatypes.OptimizationType, constraints datatypes.PlanConstraints, bundle datatypes.ContextBundle) datatypes.Strategy {
	ctx, span := tracer.Start(ctx, "Generator.generateOne")
	defer span.End()
	span.SetAttributes(attribute.String("generate.axis", string(axis)))

	prompt := buildPrompt(axis, constraints, bundle)
	params := llm.GenerationParams{Temperature: &generationTemperature}

	raw, err := g.client.Generate(ctx, prompt, params)
	if err == nil {
		if s, perr := parseStrategy(raw, axis, constraints); perr == nil {
			return s
		} else {
			slog.Debug("Strategy response rejected, issuing corrective re-prompt", "axis", axis, "error", perr)
			err = perr
		}
	} else {
		slog.Warn("Generation call failed, issuing corrective re-prompt", "axis", axis, "error", err)
	}

	// One corrective attempt, then fall back.
	raw, rerr := g.client.Generate(ctx, buildCorrectivePrompt(prompt, err), params)
	if rerr == nil {
		if s, perr := parseStrategy(raw, axis, constraints); perr == nil {
			return s
		} else {
			rerr = perr
		}
	}
	slog.Warn("Corrective attempt failed, substituting fallback strategy", "axis", axis, "error", rerr)
	span.SetAttributes(attribute.Bool("generate.fallback", true))
	return fallbackStrategy(axis, constraints)
}

// parseStrategy enforces the strict response contract: valid JSON, all
// fields present, all scores in [0,1], at least one actionable step.
func parseStrategy(raw string, axis datatypes.OptimizationType, constraints datatypes.PlanConstraints) (datatypes.Strategy, error) {
	cleaned := stripCodeFences(raw)

	var payload llmStrategyPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return datatypes.Strategy{}, fmt.Errorf("response is not valid JSON: %w", err)
	}
	if strings.TrimSpace(payload.Title) == "" {
		return datatypes.Strategy{}, fmt.Errorf("missing title")
	}
	if strings.TrimSpace(payload.Approach) == "" {
		return datatypes.Strategy{}, fmt.Errorf("missing approach")
	}
	if strings.TrimSpace(payload.Rationale) == "" {
		return datatypes.Strategy{}, fmt.Errorf("missing rationale")
	}
	if len(payload.ActionableSteps) == 0 {
		return datatypes.Strategy{}, fmt.Errorf("missing actionable_steps")
	}
	for name, score := range map[string]*float64{
		"llm_score_speed":  payload.LLMScoreSpeed,
		"llm_score_cost":   payload.LLMScoreCost,
		"llm_score_effort": payload.LLMScoreEffort,
		"llm_confidence":   payload.LLMConfidence,
	} {
		if score == nil {
			return datatypes.Strategy{}, fmt.Errorf("missing %s", name)
		}
		if *score < 0 || *score > 1 {
			return datatypes.Strategy{}, fmt.Errorf("%s=%v outside [0,1]", name, *score)
		}
	}

	s := datatypes.Strategy{
		OptimizationType: axis,
		Title:            strings.TrimSpace(payload.Title),
		Approach:         strings.TrimSpace(payload.Approach),
		Rationale:        strings.TrimSpace(payload.Rationale),
		ActionableSteps:  payload.ActionableSteps,
		LLMScoreSpeed:    *payload.LLMScoreSpeed,
		LLMScoreCost:     *payload.LLMScoreCost,
		LLMScoreEffort:   *payload.LLMScoreEffort,
		LLMConfidence:    *payload.LLMConfidence,
	}
	s.ContentHash = datatypes.ComputeContentHash(s.Title, s.Approach, constraints)
	return s, nil
}

// stripCodeFences tolerates models that wrap JSON in markdown fences despite
// instructions, and extracts the outermost object.
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}
	// Extract the outermost JSON object in case of stray surrounding prose.
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	return cleaned
}

// fallbackScores are fixed per axis so fallback content is deterministic.
var fallbackScores = map[datatypes.OptimizationType][3]float64{
	datatypes.OptimizeSpeed:    {0.7, 0.3, 0.5},
	datatypes.OptimizeCost:     {0.3, 0.7, 0.4},
	datatypes.OptimizeEffort:   {0.4, 0.4, 0.7},
	datatypes.OptimizeBalanced: {0.5, 0.5, 0.5},
}

// fallbackStrategy returns the deterministic template for one axis. Content
// depends only on the axis and constraints, so repeated failures produce
// identical hashes and deduplicate downstream.
func fallbackStrategy(axis datatypes.OptimizationType, constraints datatypes.PlanConstraints) datatypes.Strategy {
	scores := fallbackScores[axis]
	var title, approach string
	var steps []string
	switch axis {
	case datatypes.OptimizeSpeed:
		title = fmt.Sprintf("Direct scheduling for %s care", constraints.SpecialtyAccess)
		approach = fmt.Sprintf("Call in-network %s providers directly and request the earliest available appointment, including cancellation lists, within %s.", constraints.SpecialtyAccess, constraints.GeographicScope)
		steps = []string{
			"Call each in-network provider and ask for the earliest appointment.",
			"Ask to be placed on cancellation lists.",
			"Confirm the visit is covered under the current plan before booking.",
		}
	case datatypes.OptimizeCost:
		title = fmt.Sprintf("In-network cost minimization for %s care", constraints.SpecialtyAccess)
		approach = fmt.Sprintf("Stay strictly in-network and verify the expected charge against the $%.2f copay and $%.2f deductible before any visit.", constraints.Copay, constraints.Deductible)
		steps = []string{
			"Request a cost estimate from each in-network provider before booking.",
			"Verify copay and deductible treatment with the insurer.",
			"Choose the lowest verified out-of-pocket option.",
		}
	case datatypes.OptimizeEffort:
		title = fmt.Sprintf("Single-call coordination for %s care", constraints.SpecialtyAccess)
		approach = fmt.Sprintf("Use the insurer's member-services line once to identify, verify, and book an in-network %s appointment in a single interaction.", constraints.SpecialtyAccess)
		steps = []string{
			"Call member services and ask them to locate an in-network provider.",
			"Have them verify coverage and book the appointment on the same call.",
			"Request written confirmation of the booking and coverage.",
		}
	default:
		title = fmt.Sprintf("Standard access path for %s care", constraints.SpecialtyAccess)
		approach = fmt.Sprintf("Compare the two or three nearest in-network %s providers within %s on wait time and expected cost, then book the best overall option.", constraints.SpecialtyAccess, constraints.GeographicScope)
		steps = []string{
			"Shortlist the nearest in-network providers.",
			"Compare wait time and verified cost for each.",
			"Book the option with the best overall trade-off.",
		}
	}

	s := datatypes.Strategy{
		OptimizationType: axis,
		Title:            title,
		Approach:         approach,
		Rationale:        "Generated from the plan constraints alone because model output was unavailable.",
		ActionableSteps:  steps,
		LLMScoreSpeed:    scores[0],
		LLMScoreCost:     scores[1],
		LLMScoreEffort:   scores[2],
		LLMConfidence:    FallbackConfidence,
		Fallback:         true,
	}
	s.ContentHash = datatypes.ComputeContentHash(s.Title, s.Approach, constraints)
	return s
}
