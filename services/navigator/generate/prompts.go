// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"fmt"
	"strings"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
)

// objectiveInstruction maps each optimization axis to its prompt framing.
var objectiveInstruction = map[datatypes.OptimizationType]string{
	datatypes.OptimizeSpeed:    "Optimize for SPEED: minimize time-to-care. Prefer same-week appointments, urgent-care and telehealth routes, and direct-access options even at higher cost.",
	datatypes.OptimizeCost:     "Optimize for COST: minimize out-of-pocket spend. Prefer in-network providers, generic alternatives, and routes that stay under the deductible, even if slower.",
	datatypes.OptimizeEffort:   "Optimize for EFFORT: minimize the number of steps, phone calls, and referrals the member must handle personally. Prefer single-call and online self-service routes.",
	datatypes.OptimizeBalanced: "Optimize for BALANCE: weigh speed, cost, and effort evenly. Prefer the route with the best overall trade-off rather than the extreme on any single axis.",
}

// responseSchema is the exact JSON shape the model must return. Kept as a
// literal in the prompt so parse failures can be corrected by re-showing it.
const responseSchema = `{
  "title": "short strategy title",
  "approach": "one-paragraph description of the route to care",
  "rationale": "why this route fits the member's plan constraints",
  "actionable_steps": ["step 1", "step 2", "..."],
  "llm_score_speed": 0.0,
  "llm_score_cost": 0.0,
  "llm_score_effort": 0.0,
  "llm_confidence": 0.0
}`

// formatConstraints renders the plan constraints for prompt inclusion.
func formatConstraints(pc datatypes.PlanConstraints) string {
	return fmt.Sprintf("- Copay: $%.2f\n- Deductible: $%.2f\n- In-network providers: %s\n- Geographic scope: %s\n- Specialty needed: %s",
		pc.Copay, pc.Deductible, strings.Join(pc.NetworkProviders, ", "), pc.GeographicScope, pc.SpecialtyAccess)
}

// formatContext renders the gathered context bundle for prompt inclusion.
// Empty sections are omitted to keep the prompt small.
func formatContext(bundle datatypes.ContextBundle) string {
	var b strings.Builder
	if len(bundle.WebHits) > 0 {
		b.WriteString("Recent web findings:\n")
		for _, h := range bundle.WebHits {
			fmt.Fprintf(&b, "- %s: %s\n", h.Title, h.Snippet)
		}
	}
	if len(bundle.SimilarStrategies) > 0 {
		b.WriteString("Strategies that worked for similar plans:\n")
		for _, s := range bundle.SimilarStrategies {
			fmt.Fprintf(&b, "- %s: %s\n", s.Title, s.Approach)
		}
	}
	if len(bundle.RegulatoryPassages) > 0 {
		b.WriteString("Relevant regulatory context:\n")
		for _, p := range bundle.RegulatoryPassages {
			fmt.Fprintf(&b, "- [%s %s] %s\n", p.Source, p.Section, p.Content)
		}
	}
	if b.Len() == 0 {
		return "No external context is available. Rely on general knowledge of US health insurance."
	}
	return b.String()
}

// buildPrompt assembles the generation prompt for one optimization axis.
func buildPrompt(optType datatypes.OptimizationType, constraints datatypes.PlanConstraints, bundle datatypes.ContextBundle) string {
	return fmt.Sprintf(`You are generating ONE healthcare access strategy for an insurance plan member.

Member plan constraints:
%s

%s

%s

Score the strategy you produce on each axis from 0.0 (poor) to 1.0 (excellent),
and give your overall confidence from 0.0 to 1.0.

Respond with ONLY a JSON object in exactly this shape, no prose, no markdown fences:
%s`,
		formatConstraints(constraints),
		formatContext(bundle),
		objectiveInstruction[optType],
		responseSchema,
	)
}

// buildCorrectivePrompt is the single re-prompt issued after an unparseable
// or out-of-range response.
func buildCorrectivePrompt(original string, parseErr error) string {
	return fmt.Sprintf(`Your previous response could not be used: %v.

Respond again to the same request. Return ONLY a valid JSON object in exactly
this shape, with every score a number between 0.0 and 1.0:
%s

Original request:
%s`, parseErr, responseSchema, original)
}
