// Copyright (C) 2025 Insurance Navigator contributors
// Tests for the strategy pipeline

package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promauto registers with the default registry; one metric set is shared by
// every test in this binary.
var testMetrics = observability.NewPipelineMetrics()

// ===== Stage Fakes =====

type fakeGatherer struct {
	bundle datatypes.ContextBundle
	err    error
}

func (f *fakeGatherer) Gather(ctx context.Context, constraints datatypes.PlanConstraints) (datatypes.ContextBundle, error) {
	return f.bundle, f.err
}

type fakeGenerator struct {
	strategies []datatypes.Strategy
	err        error
	gotBundle  datatypes.ContextBundle
}

func (f *fakeGenerator) Generate(ctx context.Context, constraints datatypes.PlanConstraints, bundle datatypes.ContextBundle) ([]datatypes.Strategy, error) {
	f.gotBundle = bundle
	return f.strategies, f.err
}

type fakeValidator struct {
	results []datatypes.ValidationResult
	err     error
}

func (f *fakeValidator) ValidateAll(ctx context.Context, strategies []datatypes.Strategy, regulatory []datatypes.RegulatoryPassage) ([]datatypes.ValidationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	results := make([]datatypes.ValidationResult, len(strategies))
	for i := range results {
		results[i] = datatypes.ValidationResult{ComplianceStatus: datatypes.ComplianceApproved, Confidence: 0.9}
	}
	return results, nil
}

type fakeStore struct {
	summary datatypes.StorageSummary
	err     error
}

func (f *fakeStore) EnqueueAndPersist(ctx context.Context, strategies []datatypes.Strategy, results []datatypes.ValidationResult, constraints datatypes.PlanConstraints) (datatypes.StorageSummary, error) {
	if f.err != nil {
		return datatypes.StorageSummary{}, f.err
	}
	return f.summary, nil
}

// ===== Helpers =====

func f64(v float64) *float64 { return &v }

func validRequest() datatypes.StrategyRequest {
	return datatypes.StrategyRequest{
		Copay:            f64(25),
		Deductible:       f64(1500),
		NetworkProviders: []string{"Alpha Medical"},
		GeographicScope:  "franklin county, oh",
		SpecialtyAccess:  "cardiology",
	}
}

func fourStrategies() []datatypes.Strategy {
	axes := datatypes.AllOptimizationTypes()
	strategies := make([]datatypes.Strategy, len(axes))
	for i, axis := range axes {
		strategies[i] = datatypes.Strategy{
			OptimizationType: axis,
			Title:            fmt.Sprintf("Strategy %d", i),
			Approach:         "Do the thing.",
			Rationale:        "It works.",
			ActionableSteps:  []string{"step"},
			ContentHash:      fmt.Sprintf("hash-%d", i),
		}
	}
	return strategies
}

func newTestPipeline(g Gatherer, gen Generator, v Validator, s Store) *Pipeline {
	return NewPipeline(g, gen, v, s, testMetrics)
}

// ===== Run Tests =====

func TestRun_FullSuccess(t *testing.T) {
	p := newTestPipeline(
		&fakeGatherer{bundle: datatypes.ContextBundle{WebHits: []datatypes.WebSearchHit{{Title: "hit"}}}},
		&fakeGenerator{strategies: fourStrategies()},
		&fakeValidator{},
		&fakeStore{summary: datatypes.StorageSummary{Buffered: true}},
	)

	resp, err := p.Run(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, resp.Strategies, 4)
	assert.False(t, resp.Degraded)
	assert.True(t, resp.Storage.Buffered)
	for i, item := range resp.Strategies {
		assert.Equal(t, datatypes.AllOptimizationTypes()[i], item.OptimizationType)
		assert.Equal(t, datatypes.ComplianceApproved, item.ComplianceStatus)
	}
	assert.GreaterOrEqual(t, resp.TimingMs.Total, int64(0))
}

func TestRun_DegradedBundlePropagates(t *testing.T) {
	gen := &fakeGenerator{strategies: fourStrategies()}
	p := newTestPipeline(
		&fakeGatherer{bundle: datatypes.ContextBundle{Degraded: true}},
		gen,
		&fakeValidator{},
		&fakeStore{},
	)

	resp, err := p.Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.True(t, gen.gotBundle.Degraded)
}

func TestRun_FallbackStrategiesMarkResponseDegraded(t *testing.T) {
	strategies := fourStrategies()
	for i := range strategies {
		strategies[i].Fallback = true
		strategies[i].LLMConfidence = 0.1
	}
	p := newTestPipeline(
		&fakeGatherer{},
		&fakeGenerator{strategies: strategies},
		&fakeValidator{},
		&fakeStore{summary: datatypes.StorageSummary{Buffered: true}},
	)

	resp, err := p.Run(context.Background(), validRequest())
	require.NoError(t, err, "fallback substitution must not abort the request")
	require.Len(t, resp.Strategies, 4)
	assert.True(t, resp.Degraded)
	for _, item := range resp.Strategies {
		assert.True(t, item.Fallback)
	}
}

func TestRun_GatherFailureContinuesWithEmptyBundle(t *testing.T) {
	gen := &fakeGenerator{strategies: fourStrategies()}
	p := newTestPipeline(
		&fakeGatherer{err: fmt.Errorf("all context sources failed")},
		gen,
		&fakeValidator{},
		&fakeStore{},
	)

	resp, err := p.Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.True(t, gen.gotBundle.Empty() || gen.gotBundle.Degraded)
	require.Len(t, resp.Strategies, 4)
}

func TestRun_ValidationFailureShipsPendingVerdicts(t *testing.T) {
	p := newTestPipeline(
		&fakeGatherer{},
		&fakeGenerator{strategies: fourStrategies()},
		&fakeValidator{err: context.DeadlineExceeded},
		&fakeStore{},
	)

	resp, err := p.Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Strategies, 4)
	for _, item := range resp.Strategies {
		assert.Equal(t, datatypes.CompliancePending, item.ComplianceStatus)
	}
}

func TestRun_InvalidInputReturnsValidationError(t *testing.T) {
	p := newTestPipeline(&fakeGatherer{}, &fakeGenerator{}, &fakeValidator{}, &fakeStore{})

	req := validRequest()
	req.SpecialtyAccess = "   "
	req.NetworkProviders = nil

	_, err := p.Run(context.Background(), req)
	require.Error(t, err)

	ve, ok := datatypes.AsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Fields, 2)
}

func TestRun_GenerationFailureAborts(t *testing.T) {
	p := newTestPipeline(
		&fakeGatherer{},
		&fakeGenerator{err: fmt.Errorf("every backend down")},
		&fakeValidator{},
		&fakeStore{},
	)

	_, err := p.Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy generation failed")
}

func TestRun_StorageFailureAborts(t *testing.T) {
	p := newTestPipeline(
		&fakeGatherer{},
		&fakeGenerator{strategies: fourStrategies()},
		&fakeValidator{},
		&fakeStore{err: fmt.Errorf("buffer unavailable")},
	)

	_, err := p.Run(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy buffering failed")
}

func TestBuildResponseItems_MissingResultsDefaultToPending(t *testing.T) {
	strategies := fourStrategies()
	results := []datatypes.ValidationResult{
		{ComplianceStatus: datatypes.ComplianceApproved},
		{ComplianceStatus: datatypes.ComplianceRejected, Reasons: []datatypes.ValidationReason{{Category: datatypes.ReasonLegal, Severity: datatypes.SeverityCritical, Message: "no"}}},
	}

	items := buildResponseItems(strategies, results)
	require.Len(t, items, 4)
	assert.Equal(t, datatypes.ComplianceApproved, items[0].ComplianceStatus)
	assert.Equal(t, datatypes.ComplianceRejected, items[1].ComplianceStatus)
	assert.Len(t, items[1].ValidationReasons, 1)
	assert.Equal(t, datatypes.CompliancePending, items[2].ComplianceStatus)
	assert.Equal(t, datatypes.CompliancePending, items[3].ComplianceStatus)
}
