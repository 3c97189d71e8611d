// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compliance validates generated strategies through a deterministic
// guardrail plus a three-stage ReAct review loop.
package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/llm"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("navigator.compliance")

// reviewTemperature keeps compliance judgments near-deterministic.
var reviewTemperature = float32(0.1)

// verdictPayload is the strict JSON shape of the observe-stage response.
type verdictPayload struct {
	Reasons []struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	} `json:"reasons"`
	Confidence *float64 `json:"confidence"`
}

// Validator runs compliance review over generated strategies.
//
// # Description
//
// Each strategy passes through:
//
//  1. The guardrail blocklist. A hit forces a rejected verdict without any
//     model calls; the three-step trace is synthesized from the match so
//     the audit trail keeps its shape.
//  2. A Reason stage: the model enumerates legal, feasibility, and ethical
//     risks in the strategy.
//  3. An Act stage: the model checks those risks against the regulatory
//     passages gathered for the request.
//  4. An Observe stage: the model returns a strict-JSON verdict with
//     categorized reasons and a confidence.
//
// Every stage's content is appended to the audit trail with a timestamp,
// whatever the final verdict. The terminal status follows the derivation
// rule in datatypes.DeriveComplianceStatus.
//
// # Thread Safety
//
// Safe for concurrent use; per-strategy state is per-call.
type Validator struct {
	client    llm.LLMClient
	guardrail *Guardrail
}

// NewValidator creates a validator. guardrail must be non-nil; pass
// NewStaticGuardrail(nil) to run without a blocklist.
func NewValidator(client llm.LLMClient, guardrail *Guardrail) *Validator {
	return &Validator{client: client, guardrail: guardrail}
}

// ValidateAll reviews every strategy concurrently.
//
// # Outputs
//
//   - []datatypes.ValidationResult: One per strategy, index-aligned.
//   - error: Non-nil only when ctx expired before all reviews completed.
func (v *Validator) ValidateAll(ctx context.Context, strategies []datatypes.Strategy, regulatory []datatypes.RegulatoryPassage) ([]datatypes.ValidationResult, error) {
	ctx, span := tracer.Start(ctx, "Validator.ValidateAll")
	defer span.End()

	results := make([]datatypes.ValidationResult, len(strategies))
	var wg sync.WaitGroup
	for i := range strategies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = v.validateOne(ctx, strategies[i], regulatory)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("validation interrupted: %w", err)
	}

	rejected := 0
	for _, r := range results {
		if r.ComplianceStatus == datatypes.ComplianceRejected {
			rejected++
		}
	}
	span.SetAttributes(attribute.Int("compliance.rejected", rejected))
	return results, nil
}

// validateOne runs the guardrail and the three review stages for one
// strategy.
func (v *Validator) validateOne(ctx context.Context, strategy datatypes.Strategy, regulatory []datatypes.RegulatoryPassage) datatypes.ValidationResult {
	ctx, span := tracer.Start(ctx, "Validator.validateOne")
	defer span.End()
	span.SetAttributes(attribute.String("compliance.strategy", strategy.Title))

	if phrase, hit := v.guardrail.Check(strategyText(strategy)); hit {
		slog.Warn("Guardrail blocked strategy", "title", strategy.Title, "phrase", phrase)
		span.SetAttributes(attribute.Bool("compliance.guardrail_hit", true))
		now := time.Now().UTC()
		return datatypes.ValidationResult{
			ComplianceStatus: datatypes.ComplianceRejected,
			Reasons: []datatypes.ValidationReason{{
				Category: datatypes.ReasonEthical,
				Severity: datatypes.SeverityCritical,
				Message:  fmt.Sprintf("strategy matched blocked phrase %q", phrase),
			}},
			Confidence:   1.0,
			GuardrailHit: true,
			// No model calls here; the trace is synthesized so the audit
			// trail keeps its three-step shape.
			Trace: []datatypes.ReActStep{
				{
					Kind:      datatypes.StepReason,
					Content:   "Strategy text screened against the guardrail blocklist before model review.",
					Timestamp: now,
				},
				{
					Kind:      datatypes.StepAct,
					Content:   fmt.Sprintf("Blocklist matched phrase %q.", phrase),
					Timestamp: now,
				},
				{
					Kind:      datatypes.StepObserve,
					Content:   "Verdict: rejected by guardrail; model review not performed.",
					Timestamp: now,
				},
			},
		}
	}

	var trace []datatypes.ReActStep
	appendStep := func(kind datatypes.ReActStepKind, content string) {
		trace = append(trace, datatypes.ReActStep{Kind: kind, Content: content, Timestamp: time.Now().UTC()})
	}

	params := llm.GenerationParams{Temperature: &reviewTemperature}

	reasonOut, err := v.client.Generate(ctx, buildReasonPrompt(strategy), params)
	if err != nil {
		return reviewFailure(trace, fmt.Errorf("reason stage failed: %w", err))
	}
	appendStep(datatypes.StepReason, reasonOut)

	actOut, err := v.client.Generate(ctx, buildActPrompt(strategy, reasonOut, regulatory), params)
	if err != nil {
		return reviewFailure(trace, fmt.Errorf("act stage failed: %w", err))
	}
	appendStep(datatypes.StepAct, actOut)

	observeOut, err := v.client.Generate(ctx, buildObservePrompt(strategy, reasonOut, actOut), params)
	if err != nil {
		return reviewFailure(trace, fmt.Errorf("observe stage failed: %w", err))
	}
	appendStep(datatypes.StepObserve, observeOut)

	reasons, confidence, err := parseVerdict(observeOut)
	if err != nil {
		slog.Warn("Verdict unparseable, flagging strategy", "title", strategy.Title, "error", err)
		return reviewFailure(trace, fmt.Errorf("verdict parse failed: %w", err))
	}

	status := datatypes.DeriveComplianceStatus(reasons, false)
	span.SetAttributes(attribute.String("compliance.status", string(status)))
	return datatypes.ValidationResult{
		ComplianceStatus: status,
		Reasons:          reasons,
		Confidence:       confidence,
		Trace:            trace,
	}
}

// reviewFailure converts a failed or unparseable review into a flagged
// verdict: the strategy is not provably unsafe, but it was never cleared.
func reviewFailure(trace []datatypes.ReActStep, err error) datatypes.ValidationResult {
	reasons := []datatypes.ValidationReason{{
		Category: datatypes.ReasonFeasibility,
		Severity: datatypes.SeverityWarning,
		Message:  fmt.Sprintf("compliance review incomplete: %v", err),
	}}
	return datatypes.ValidationResult{
		ComplianceStatus: datatypes.DeriveComplianceStatus(reasons, false),
		Reasons:          reasons,
		Confidence:       0.0,
		Trace:            trace,
	}
}

// strategyText concatenates the fields the guardrail inspects.
func strategyText(s datatypes.Strategy) string {
	parts := append([]string{s.Title, s.Approach, s.Rationale}, s.ActionableSteps...)
	return strings.Join(parts, "\n")
}

// parseVerdict enforces the observe-stage response contract.
func parseVerdict(raw string) ([]datatypes.ValidationReason, float64, error) {
	cleaned := strings.TrimSpace(raw)
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, 0, fmt.Errorf("verdict is not valid JSON: %w", err)
	}
	if payload.Confidence == nil || *payload.Confidence < 0 || *payload.Confidence > 1 {
		return nil, 0, fmt.Errorf("confidence missing or outside [0,1]")
	}

	reasons := make([]datatypes.ValidationReason, 0, len(payload.Reasons))
	for _, r := range payload.Reasons {
		category := datatypes.ReasonCategory(strings.ToLower(r.Category))
		switch category {
		case datatypes.ReasonLegal, datatypes.ReasonFeasibility, datatypes.ReasonEthical:
		default:
			return nil, 0, fmt.Errorf("unknown reason category %q", r.Category)
		}
		severity := datatypes.ReasonSeverity(strings.ToLower(r.Severity))
		switch severity {
		case datatypes.SeverityCritical, datatypes.SeverityWarning:
		default:
			return nil, 0, fmt.Errorf("unknown reason severity %q", r.Severity)
		}
		reasons = append(reasons, datatypes.ValidationReason{
			Category: category,
			Severity: severity,
			Message:  r.Message,
		})
	}
	return reasons, *payload.Confidence, nil
}
