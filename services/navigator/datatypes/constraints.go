// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the shared data model for the navigator service.
//
// This file contains the canonical plan-constraint input type and its
// normalizer. All strategy generation starts from a PlanConstraints value
// produced here; nothing downstream accepts raw request input.
package datatypes

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// constraintValidate is the validator instance for constraint input.
var constraintValidate = validator.New()

// =============================================================================
// Request Input
// =============================================================================

// StrategyRequest is the raw JSON body of POST /v1/strategies.
//
// Numeric fields are pointers so a missing field can be distinguished from a
// legitimate zero (a $0 copay is valid input).
type StrategyRequest struct {
	Copay            *float64 `json:"copay" validate:"required,gte=0"`
	Deductible       *float64 `json:"deductible" validate:"required,gte=0"`
	NetworkProviders []string `json:"network_providers" validate:"required,min=1,dive,required"`
	GeographicScope  string   `json:"geographic_scope" validate:"required"`
	SpecialtyAccess  string   `json:"specialty_access" validate:"required"`
}

// =============================================================================
// Canonical Constraints
// =============================================================================

// PlanConstraints is the canonical, validated form of a user's plan input.
//
// # Description
//
// PlanConstraints is immutable once constructed: it is only created by
// NormalizeConstraints and all fields are value types. NetworkProviders is
// deduplicated and sorted so that two requests with the same providers in a
// different order produce the same canonical key and content hashes.
//
// # Thread Safety
//
// Safe for concurrent reads. Never mutated after construction.
type PlanConstraints struct {
	Copay            float64  `json:"copay"`
	Deductible       float64  `json:"deductible"`
	NetworkProviders []string `json:"network_providers"`
	GeographicScope  string   `json:"geographic_scope"`
	SpecialtyAccess  string   `json:"specialty_access"`
}

// CanonicalKey returns a deterministic string form of the constraints.
//
// Used as the web-search cache key and as the constraint component of
// strategy content hashes. Case and provider order do not affect the key.
func (pc PlanConstraints) CanonicalKey() string {
	return fmt.Sprintf("copay=%.2f|deductible=%.2f|providers=%s|scope=%s|specialty=%s",
		pc.Copay,
		pc.Deductible,
		strings.Join(pc.NetworkProviders, ","),
		strings.ToLower(pc.GeographicScope),
		strings.ToLower(pc.SpecialtyAccess),
	)
}

// =============================================================================
// Validation Error
// =============================================================================

// FieldError describes a single violated constraint field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports every violated field in a constraint request,
// not just the first. It is surfaced immediately to the caller and never
// retried.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid plan constraints: " + strings.Join(parts, "; ")
}

// AsValidationError unwraps err into a *ValidationError if possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// jsonFieldName maps a StrategyRequest struct field to its wire name.
func jsonFieldName(structField string) string {
	switch structField {
	case "Copay":
		return "copay"
	case "Deductible":
		return "deductible"
	case "NetworkProviders":
		return "network_providers"
	case "GeographicScope":
		return "geographic_scope"
	case "SpecialtyAccess":
		return "specialty_access"
	default:
		return structField
	}
}

// fieldErrorMessage renders a human-readable message for one violation.
func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// =============================================================================
// Normalizer
// =============================================================================

// NormalizeConstraints validates a raw request and produces canonical
// PlanConstraints.
//
// # Description
//
// Checks presence and range of every field and accumulates all violations
// into a single *ValidationError rather than failing on the first. On
// success it canonicalizes the input: provider identifiers are trimmed,
// deduplicated, and sorted; scope and specialty are trimmed. Whitespace-only
// strings count as missing. No side effects.
//
// # Inputs
//
//   - req: The bound JSON request body.
//
// # Outputs
//
//   - PlanConstraints: Canonical constraints, valid only when error is nil.
//   - error: *ValidationError listing every violated field, or nil.
func NormalizeConstraints(req StrategyRequest) (PlanConstraints, error) {
	// Trim string fields up front so whitespace-only values fail "required".
	req.GeographicScope = strings.TrimSpace(req.GeographicScope)
	req.SpecialtyAccess = strings.TrimSpace(req.SpecialtyAccess)
	trimmedProviders := make([]string, 0, len(req.NetworkProviders))
	for _, p := range req.NetworkProviders {
		if t := strings.TrimSpace(p); t != "" {
			trimmedProviders = append(trimmedProviders, t)
		}
	}
	req.NetworkProviders = trimmedProviders

	if err := constraintValidate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return PlanConstraints{}, fmt.Errorf("constraint validation failed: %w", err)
		}
		ve := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
		for _, fe := range verrs {
			ve.Fields = append(ve.Fields, FieldError{
				Field:   jsonFieldName(fe.StructField()),
				Message: fieldErrorMessage(fe),
			})
		}
		return PlanConstraints{}, ve
	}

	// Deduplicate and sort providers for a stable canonical form.
	seen := make(map[string]bool, len(req.NetworkProviders))
	providers := make([]string, 0, len(req.NetworkProviders))
	for _, p := range req.NetworkProviders {
		if !seen[p] {
			seen[p] = true
			providers = append(providers, p)
		}
	}
	sort.Strings(providers)

	return PlanConstraints{
		Copay:            *req.Copay,
		Deductible:       *req.Deductible,
		NetworkProviders: providers,
		GeographicScope:  req.GeographicScope,
		SpecialtyAccess:  req.SpecialtyAccess,
	}, nil
}
