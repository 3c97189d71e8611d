// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// =============================================================================
// Compliance Status
// =============================================================================

// ComplianceStatus is the terminal verdict of the compliance validator.
type ComplianceStatus string

const (
	ComplianceApproved ComplianceStatus = "approved"
	ComplianceFlagged  ComplianceStatus = "flagged"
	ComplianceRejected ComplianceStatus = "rejected"

	// CompliancePending annotates a strategy whose validation never ran
	// because the validation stage timed out; partial responses carry it so
	// callers can tell unvalidated strategies from approved ones.
	CompliancePending ComplianceStatus = "pending"
)

// =============================================================================
// Validation Reasons
// =============================================================================

// ReasonCategory classifies a validation reason.
type ReasonCategory string

const (
	ReasonLegal       ReasonCategory = "legal"
	ReasonFeasibility ReasonCategory = "feasibility"
	ReasonEthical     ReasonCategory = "ethical"
)

// ReasonSeverity grades a validation reason.
type ReasonSeverity string

const (
	SeverityCritical ReasonSeverity = "critical"
	SeverityWarning  ReasonSeverity = "warning"
)

// ValidationReason is one categorized finding from the compliance check.
type ValidationReason struct {
	Category ReasonCategory `json:"category"`
	Severity ReasonSeverity `json:"severity"`
	Message  string         `json:"message"`
}

// =============================================================================
// ReAct Audit Trail
// =============================================================================

// ReActStepKind tags one stage of the Reason -> Act -> Observe loop.
type ReActStepKind string

const (
	StepReason  ReActStepKind = "reason"
	StepAct     ReActStepKind = "act"
	StepObserve ReActStepKind = "observe"
)

// ReActStep is one audit-trail entry. The content of each stage is appended
// verbatim, whatever the final verdict.
type ReActStep struct {
	Kind      ReActStepKind `json:"kind"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
}

// =============================================================================
// Validation Result
// =============================================================================

// ValidationResult is the per-strategy outcome of the compliance validator.
// Immutable once attached to a strategy.
type ValidationResult struct {
	ComplianceStatus ComplianceStatus   `json:"compliance_status"`
	Reasons          []ValidationReason `json:"validation_reasons"`
	Confidence       float64            `json:"confidence"`
	Trace            []ReActStep        `json:"react_trace"`
	GuardrailHit     bool               `json:"guardrail_hit"`
}

// DeriveComplianceStatus applies the status derivation rule:
// rejected when any critical reason is present or the guardrail triggered,
// flagged when only warnings are present, approved otherwise.
func DeriveComplianceStatus(reasons []ValidationReason, guardrailHit bool) ComplianceStatus {
	if guardrailHit {
		return ComplianceRejected
	}
	hasWarning := false
	for _, r := range reasons {
		switch r.Severity {
		case SeverityCritical:
			return ComplianceRejected
		case SeverityWarning:
			hasWarning = true
		}
	}
	if hasWarning {
		return ComplianceFlagged
	}
	return ComplianceApproved
}
