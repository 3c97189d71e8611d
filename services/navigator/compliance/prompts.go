// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"fmt"
	"strings"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
)

// renderStrategy formats a strategy for inclusion in review prompts.
func renderStrategy(s datatypes.Strategy) string {
	return fmt.Sprintf("Title: %s\nApproach: %s\nRationale: %s\nSteps:\n- %s",
		s.Title, s.Approach, s.Rationale, strings.Join(s.ActionableSteps, "\n- "))
}

// buildReasonPrompt asks the model to enumerate risks in the strategy.
func buildReasonPrompt(s datatypes.Strategy) string {
	return fmt.Sprintf(`You are reviewing a healthcare access strategy for compliance.

Strategy under review:
%s

Think through the risks in this strategy along three dimensions:
- legal: does any step risk violating insurance regulation or law?
- feasibility: can a typical plan member actually execute these steps?
- ethical: does any step encourage misrepresentation, gaming, or harm?

Write out your reasoning as plain prose. Do not give a verdict yet.`, renderStrategy(s))
}

// buildActPrompt asks the model to check its identified risks against the
// regulatory passages gathered for this request.
func buildActPrompt(s datatypes.Strategy, reasoning string, regulatory []datatypes.RegulatoryPassage) string {
	var reg strings.Builder
	if len(regulatory) == 0 {
		reg.WriteString("No regulatory passages are available; rely on general knowledge of US insurance regulation.")
	} else {
		for _, p := range regulatory {
			fmt.Fprintf(&reg, "- [%s %s] %s\n", p.Source, p.Section, p.Content)
		}
	}
	return fmt.Sprintf(`Continue your compliance review of this strategy:
%s

Your earlier risk analysis:
%s

Regulatory passages on file:
%s

Check each identified risk against the passages above. For each risk, state
whether the regulation confirms it, contradicts it, or is silent. Plain
prose, no verdict yet.`, renderStrategy(s), reasoning, reg.String())
}

// buildObservePrompt asks for the final strict-JSON verdict.
func buildObservePrompt(s datatypes.Strategy, reasoning, actFindings string) string {
	return fmt.Sprintf(`Conclude your compliance review of this strategy:
%s

Risk analysis:
%s

Regulatory check:
%s

Respond with ONLY a JSON object, no prose, no markdown fences:
{
  "reasons": [
    {"category": "legal|feasibility|ethical", "severity": "critical|warning", "message": "..."}
  ],
  "confidence": 0.0
}

Include a reason entry for every real finding; an empty reasons array means
the strategy is fully compliant. Use severity "critical" only for findings
that should block the strategy outright. Confidence is your certainty in
this verdict, from 0.0 to 1.0.`, renderStrategy(s), reasoning, actFindings)
}
