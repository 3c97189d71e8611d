// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow orchestrates the strategy pipeline: normalize, gather,
// generate, validate, store, respond.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("navigator.workflow")

// Stage budgets. They sum under the 30-second response deadline with
// headroom for normalization and response assembly.
const (
	ContextBudget    = 8 * time.Second
	GenerationBudget = 12 * time.Second
	ValidationBudget = 6 * time.Second
	StorageBudget    = 2 * time.Second
)

// State names one position in the pipeline lifecycle. States advance
// strictly forward; Done, Degraded, and Failed are terminal.
type State string

const (
	StateNormalizing      State = "normalizing"
	StateGatheringContext State = "gathering_context"
	StateGenerating       State = "generating"
	StateValidating       State = "validating"
	StateStoring          State = "storing"
	StateDone             State = "done"
	StateDegraded         State = "degraded"
	StateFailed           State = "failed"
)

// Gatherer is the context-gathering stage.
type Gatherer interface {
	Gather(ctx context.Context, constraints datatypes.PlanConstraints) (datatypes.ContextBundle, error)
}

// Generator is the strategy-generation stage.
type Generator interface {
	Generate(ctx context.Context, constraints datatypes.PlanConstraints, bundle datatypes.ContextBundle) ([]datatypes.Strategy, error)
}

// Validator is the compliance-validation stage.
type Validator interface {
	ValidateAll(ctx context.Context, strategies []datatypes.Strategy, regulatory []datatypes.RegulatoryPassage) ([]datatypes.ValidationResult, error)
}

// Store is the storage stage: the synchronous buffer acknowledgement.
type Store interface {
	EnqueueAndPersist(ctx context.Context, strategies []datatypes.Strategy, results []datatypes.ValidationResult, constraints datatypes.PlanConstraints) (datatypes.StorageSummary, error)
}

// Pipeline wires the four stages behind one Run call.
//
// # Description
//
// Each stage runs under its own deadline carved from the request context.
// Stage failures degrade rather than abort where the contract allows:
//
//   - A fully failed context gather proceeds with an empty bundle and marks
//     the response degraded.
//   - A generation stage that substituted any fallback strategy, including
//     on budget expiry, still ships four strategies and marks the response
//     degraded.
//   - A validation timeout annotates every strategy as pending instead of
//     dropping the response.
//   - Only normalization errors, generation failure, and storage failure
//     abort the request.
//
// # Thread Safety
//
// Safe for concurrent use. One pipeline serves all requests.
type Pipeline struct {
	gatherer  Gatherer
	generator Generator
	validator Validator
	store     Store
	metrics   *observability.PipelineMetrics
	now       func() time.Time
}

// NewPipeline wires a pipeline from its stages. metrics may not be nil.
func NewPipeline(g Gatherer, gen Generator, v Validator, s Store, metrics *observability.PipelineMetrics) *Pipeline {
	return &Pipeline{
		gatherer:  g,
		generator: gen,
		validator: v,
		store:     s,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run executes the full pipeline for one request.
//
// # Outputs
//
//   - datatypes.GenerateStrategiesResponse: Four annotated strategies plus
//     storage acknowledgement and per-stage timings.
//   - error: *datatypes.ValidationError for bad input; otherwise non-nil
//     only when generation or storage failed outright.
func (p *Pipeline) Run(ctx context.Context, req datatypes.StrategyRequest) (datatypes.GenerateStrategiesResponse, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()

	start := p.now()
	var timing datatypes.TimingBreakdown
	state := StateNormalizing
	span.SetAttributes(attribute.String("pipeline.state", string(state)))

	constraints, err := datatypes.NormalizeConstraints(req)
	if err != nil {
		p.finish(span, StateFailed, "failed")
		return datatypes.GenerateStrategiesResponse{}, err
	}

	// Gather context.
	state = StateGatheringContext
	stageStart := p.now()
	gatherCtx, cancelGather := context.WithTimeout(ctx, ContextBudget)
	bundle, gatherErr := p.gatherer.Gather(gatherCtx, constraints)
	cancelGather()
	timing.Context = p.now().Sub(stageStart).Milliseconds()
	p.metrics.StageDuration.WithLabelValues("context").Observe(p.now().Sub(stageStart).Seconds())
	if gatherErr != nil {
		// Generation can still run on the constraints alone.
		slog.Warn("Context gathering failed entirely, continuing degraded", "error", gatherErr)
		bundle = datatypes.ContextBundle{Degraded: true}
	}

	// Generate.
	state = StateGenerating
	stageStart = p.now()
	genCtx, cancelGen := context.WithTimeout(ctx, GenerationBudget)
	strategies, genErr := p.generator.Generate(genCtx, constraints, bundle)
	cancelGen()
	timing.Generation = p.now().Sub(stageStart).Milliseconds()
	p.metrics.StageDuration.WithLabelValues("generation").Observe(p.now().Sub(stageStart).Seconds())
	if genErr != nil {
		p.finish(span, StateFailed, "failed")
		return datatypes.GenerateStrategiesResponse{}, fmt.Errorf("strategy generation failed: %w", genErr)
	}
	fallbacks := 0
	for _, s := range strategies {
		if s.Fallback {
			fallbacks++
			p.metrics.FallbackStrategies.Inc()
		}
	}
	genDegraded := fallbacks > 0

	// Validate.
	state = StateValidating
	stageStart = p.now()
	valCtx, cancelVal := context.WithTimeout(ctx, ValidationBudget)
	results, valErr := p.validator.ValidateAll(valCtx, strategies, bundle.RegulatoryPassages)
	cancelVal()
	timing.Validation = p.now().Sub(stageStart).Milliseconds()
	p.metrics.StageDuration.WithLabelValues("validation").Observe(p.now().Sub(stageStart).Seconds())
	partial := false
	if valErr != nil {
		// Partial response: every strategy ships unvalidated rather than
		// not at all.
		slog.Warn("Validation stage timed out, returning pending verdicts", "error", valErr)
		partial = true
		results = make([]datatypes.ValidationResult, len(strategies))
		for i := range results {
			results[i] = datatypes.ValidationResult{ComplianceStatus: datatypes.CompliancePending}
		}
	}
	for _, r := range results {
		p.metrics.ComplianceVerdicts.WithLabelValues(string(r.ComplianceStatus)).Inc()
		if r.GuardrailHit {
			p.metrics.GuardrailHits.Inc()
		}
	}

	// Store: synchronous buffer acknowledgement only; the durable commit
	// happens in the background.
	state = StateStoring
	stageStart = p.now()
	storeCtx, cancelStore := context.WithTimeout(ctx, StorageBudget)
	summary, storeErr := p.store.EnqueueAndPersist(storeCtx, strategies, results, constraints)
	cancelStore()
	timing.Storage = p.now().Sub(stageStart).Milliseconds()
	p.metrics.StageDuration.WithLabelValues("storage").Observe(p.now().Sub(stageStart).Seconds())
	if storeErr != nil {
		p.finish(span, StateFailed, "failed")
		return datatypes.GenerateStrategiesResponse{}, fmt.Errorf("strategy buffering failed: %w", storeErr)
	}

	timing.Total = p.now().Sub(start).Milliseconds()
	p.metrics.PipelineDuration.Observe(p.now().Sub(start).Seconds())

	resp := datatypes.GenerateStrategiesResponse{
		Strategies: buildResponseItems(strategies, results),
		Degraded:   bundle.Degraded || genDegraded || partial,
		Storage:    summary,
		TimingMs:   timing,
	}

	switch {
	case partial:
		state = StateDegraded
		p.finish(span, state, "partial")
	case bundle.Degraded || genDegraded:
		state = StateDegraded
		p.finish(span, state, "degraded")
	default:
		state = StateDone
		p.finish(span, state, "complete")
	}
	slog.Info("Pipeline run finished",
		"state", state,
		"total_ms", timing.Total,
		"degraded", resp.Degraded)
	return resp, nil
}

// finish records the terminal state on the span and the outcome counter.
func (p *Pipeline) finish(span trace.Span, state State, outcome string) {
	span.SetAttributes(attribute.String("pipeline.state", string(state)))
	p.metrics.RequestsTotal.WithLabelValues(outcome).Inc()
}

// buildResponseItems zips strategies with their validation results.
func buildResponseItems(strategies []datatypes.Strategy, results []datatypes.ValidationResult) []datatypes.StrategyResponseItem {
	items := make([]datatypes.StrategyResponseItem, 0, len(strategies))
	for i, s := range strategies {
		item := datatypes.StrategyResponseItem{
			OptimizationType: s.OptimizationType,
			Title:            s.Title,
			Approach:         s.Approach,
			Rationale:        s.Rationale,
			ActionableSteps:  s.ActionableSteps,
			LLMScoreSpeed:    s.LLMScoreSpeed,
			LLMScoreCost:     s.LLMScoreCost,
			LLMScoreEffort:   s.LLMScoreEffort,
			LLMConfidence:    s.LLMConfidence,
			ContentHash:      s.ContentHash,
			Fallback:         s.Fallback,
		}
		if i < len(results) {
			item.ComplianceStatus = results[i].ComplianceStatus
			item.ValidationReasons = results[i].Reasons
		} else {
			item.ComplianceStatus = datatypes.CompliancePending
		}
		items = append(items, item)
	}
	return items
}
