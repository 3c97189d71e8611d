// Copyright (C) 2025 Insurance Navigator contributors
// Tests for the compliance validator and guardrail

package compliance

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/llm"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLLM returns responses in call order.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []string
	calls     int
	err       error
}

func (m *scriptedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.calls >= len(m.responses) {
		return "", fmt.Errorf("no scripted response for call %d", m.calls+1)
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func sampleStrategy() datatypes.Strategy {
	return datatypes.Strategy{
		OptimizationType: datatypes.OptimizeSpeed,
		Title:            "Direct Booking",
		Approach:         "Call in-network providers and book the earliest slot.",
		Rationale:        "Avoids referral delays.",
		ActionableSteps:  []string{"Call provider", "Book visit"},
		ContentHash:      "abc123",
	}
}

// =============================================================================
// Guardrail Tests
// =============================================================================

func TestGuardrail_MatchesCaseInsensitiveSubstring(t *testing.T) {
	g := NewStaticGuardrail([]string{"misrepresent symptoms", "Fake Referral"})

	phrase, hit := g.Check("You could MISREPRESENT SYMPTOMS to get seen faster")
	assert.True(t, hit)
	assert.Equal(t, "misrepresent symptoms", phrase)

	_, hit = g.Check("Call the provider and ask for a cancellation slot")
	assert.False(t, hit)
}

func TestGuardrail_EmptyListNeverHits(t *testing.T) {
	g := NewStaticGuardrail(nil)
	_, hit := g.Check("anything at all")
	assert.False(t, hit)
}

func TestValidateOne_GuardrailForcesRejected(t *testing.T) {
	guardrail := NewStaticGuardrail([]string{"direct booking"})
	// The LLM must never be consulted for a blocked strategy.
	v := NewValidator(&scriptedLLM{err: fmt.Errorf("should not be called")}, guardrail)

	results, err := v.ValidateAll(context.Background(), []datatypes.Strategy{sampleStrategy()}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, datatypes.ComplianceRejected, r.ComplianceStatus)
	assert.True(t, r.GuardrailHit)
	require.NotEmpty(t, r.Reasons)
	assert.Equal(t, datatypes.SeverityCritical, r.Reasons[0].Severity)

	// The audit trail keeps its three-step shape even without model review.
	require.Len(t, r.Trace, 3)
	assert.Equal(t, datatypes.StepReason, r.Trace[0].Kind)
	assert.Equal(t, datatypes.StepAct, r.Trace[1].Kind)
	assert.Equal(t, datatypes.StepObserve, r.Trace[2].Kind)
	assert.Contains(t, r.Trace[1].Content, "direct booking")
	for _, step := range r.Trace {
		assert.False(t, step.Timestamp.IsZero())
	}
}

// =============================================================================
// ReAct Flow Tests
// =============================================================================

func TestValidateOne_ApprovedWithFullTrace(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		"No legal or ethical concerns identified.",
		"Regulation is silent on direct booking; no conflicts.",
		`{"reasons": [], "confidence": 0.95}`,
	}}
	v := NewValidator(m, NewStaticGuardrail(nil))

	results, err := v.ValidateAll(context.Background(), []datatypes.Strategy{sampleStrategy()}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, datatypes.ComplianceApproved, r.ComplianceStatus)
	assert.Equal(t, 0.95, r.Confidence)
	require.Len(t, r.Trace, 3)
	assert.Equal(t, datatypes.StepReason, r.Trace[0].Kind)
	assert.Equal(t, datatypes.StepAct, r.Trace[1].Kind)
	assert.Equal(t, datatypes.StepObserve, r.Trace[2].Kind)
	// Stage content is carried verbatim.
	assert.Equal(t, "No legal or ethical concerns identified.", r.Trace[0].Content)
	for _, step := range r.Trace {
		assert.False(t, step.Timestamp.IsZero())
	}
}

func TestValidateOne_CriticalReasonRejects(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		"The approach may involve misstating urgency.",
		"State regulation prohibits misrepresentation on intake forms.",
		`{"reasons": [{"category": "legal", "severity": "critical", "message": "violates intake regulations"}], "confidence": 0.9}`,
	}}
	v := NewValidator(m, NewStaticGuardrail(nil))

	results, err := v.ValidateAll(context.Background(), []datatypes.Strategy{sampleStrategy()}, nil)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ComplianceRejected, results[0].ComplianceStatus)
	assert.False(t, results[0].GuardrailHit)
}

func TestValidateOne_WarningsOnlyFlagged(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		"Wait times could be long.",
		"No regulatory conflicts.",
		`{"reasons": [{"category": "feasibility", "severity": "warning", "message": "may take weeks"}], "confidence": 0.8}`,
	}}
	v := NewValidator(m, NewStaticGuardrail(nil))

	results, err := v.ValidateAll(context.Background(), []datatypes.Strategy{sampleStrategy()}, nil)
	require.NoError(t, err)
	assert.Equal(t, datatypes.ComplianceFlagged, results[0].ComplianceStatus)
}

func TestValidateOne_ModelFailureFlagsWithPartialTrace(t *testing.T) {
	m := &scriptedLLM{responses: []string{"Some reasoning."}} // act stage has no script
	v := NewValidator(m, NewStaticGuardrail(nil))

	results, err := v.ValidateAll(context.Background(), []datatypes.Strategy{sampleStrategy()}, nil)
	require.NoError(t, err)

	r := results[0]
	assert.Equal(t, datatypes.ComplianceFlagged, r.ComplianceStatus)
	assert.Len(t, r.Trace, 1, "completed stages stay in the trace")
	assert.Equal(t, 0.0, r.Confidence)
}

// =============================================================================
// parseVerdict Tests
// =============================================================================

func TestParseVerdict_RejectsUnknownCategoryOrSeverity(t *testing.T) {
	_, _, err := parseVerdict(`{"reasons": [{"category": "vibes", "severity": "warning", "message": "m"}], "confidence": 0.5}`)
	assert.Error(t, err)

	_, _, err = parseVerdict(`{"reasons": [{"category": "legal", "severity": "mild", "message": "m"}], "confidence": 0.5}`)
	assert.Error(t, err)
}

func TestParseVerdict_RejectsBadConfidence(t *testing.T) {
	_, _, err := parseVerdict(`{"reasons": []}`)
	assert.Error(t, err)

	_, _, err = parseVerdict(`{"reasons": [], "confidence": 1.7}`)
	assert.Error(t, err)
}

func TestParseVerdict_ToleratesSurroundingProse(t *testing.T) {
	reasons, confidence, err := parseVerdict("Here is my verdict:\n" + `{"reasons": [], "confidence": 0.7}` + "\nThanks!")
	require.NoError(t, err)
	assert.Empty(t, reasons)
	assert.Equal(t, 0.7, confidence)
}
