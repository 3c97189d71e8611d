// Copyright (C) 2025 Insurance Navigator contributors
// Tests for constraint normalization

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func validRequest() StrategyRequest {
	return StrategyRequest{
		Copay:            f64(25),
		Deductible:       f64(1500),
		NetworkProviders: []string{"Mercy Health", "St. Luke's"},
		GeographicScope:  "Franklin County, OH",
		SpecialtyAccess:  "cardiology",
	}
}

// =============================================================================
// NormalizeConstraints Tests
// =============================================================================

func TestNormalizeConstraints_ValidInput(t *testing.T) {
	pc, err := NormalizeConstraints(validRequest())
	require.NoError(t, err)
	assert.Equal(t, 25.0, pc.Copay)
	assert.Equal(t, 1500.0, pc.Deductible)
	assert.Equal(t, []string{"Mercy Health", "St. Luke's"}, pc.NetworkProviders)
}

func TestNormalizeConstraints_ZeroCopayIsValid(t *testing.T) {
	req := validRequest()
	req.Copay = f64(0)

	pc, err := NormalizeConstraints(req)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pc.Copay)
}

func TestNormalizeConstraints_ProvidersDedupedAndSorted(t *testing.T) {
	req := validRequest()
	req.NetworkProviders = []string{"Zeta Clinic", "Alpha Medical", "Zeta Clinic", "  Alpha Medical  "}

	pc, err := NormalizeConstraints(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha Medical", "Zeta Clinic"}, pc.NetworkProviders)
}

func TestNormalizeConstraints_ReportsAllViolations(t *testing.T) {
	req := StrategyRequest{
		Copay:            f64(-5),
		NetworkProviders: []string{},
		GeographicScope:  "   ",
	}

	_, err := NormalizeConstraints(req)
	require.Error(t, err)

	ve, ok := AsValidationError(err)
	require.True(t, ok)

	fields := make(map[string]bool)
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["copay"], "negative copay should be reported")
	assert.True(t, fields["deductible"], "missing deductible should be reported")
	assert.True(t, fields["network_providers"], "empty providers should be reported")
	assert.True(t, fields["geographic_scope"], "whitespace scope should be reported")
	assert.True(t, fields["specialty_access"], "missing specialty should be reported")
}

func TestNormalizeConstraints_WhitespaceOnlyProvidersCountAsMissing(t *testing.T) {
	req := validRequest()
	req.NetworkProviders = []string{"   ", "\t"}

	_, err := NormalizeConstraints(req)
	require.Error(t, err)

	ve, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Fields, 1)
	assert.Equal(t, "network_providers", ve.Fields[0].Field)
}

// =============================================================================
// CanonicalKey Tests
// =============================================================================

func TestCanonicalKey_ProviderOrderInvariant(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.NetworkProviders = []string{"St. Luke's", "Mercy Health"}

	pcA, err := NormalizeConstraints(a)
	require.NoError(t, err)
	pcB, err := NormalizeConstraints(b)
	require.NoError(t, err)

	assert.Equal(t, pcA.CanonicalKey(), pcB.CanonicalKey())
}

func TestCanonicalKey_CaseInsensitiveScopeAndSpecialty(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.GeographicScope = "FRANKLIN COUNTY, OH"
	b.SpecialtyAccess = "Cardiology"

	pcA, err := NormalizeConstraints(a)
	require.NoError(t, err)
	pcB, err := NormalizeConstraints(b)
	require.NoError(t, err)

	assert.Equal(t, pcA.CanonicalKey(), pcB.CanonicalKey())
}

func TestCanonicalKey_DifferentCopayDiffers(t *testing.T) {
	a := validRequest()
	b := validRequest()
	b.Copay = f64(30)

	pcA, err := NormalizeConstraints(a)
	require.NoError(t, err)
	pcB, err := NormalizeConstraints(b)
	require.NoError(t, err)

	assert.NotEqual(t, pcA.CanonicalKey(), pcB.CanonicalKey())
}
