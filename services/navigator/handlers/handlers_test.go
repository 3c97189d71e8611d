// Copyright (C) 2025 Insurance Navigator contributors
// Tests for the navigator API handlers

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/buffer"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/workflow"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promauto registers with the default registry; one metric set is shared by
// every test in this binary.
var testMetrics = observability.NewPipelineMetrics()

func init() {
	gin.SetMode(gin.TestMode)
}

// ===== Pipeline Stage Fakes =====

type stubGatherer struct{}

func (stubGatherer) Gather(ctx context.Context, constraints datatypes.PlanConstraints) (datatypes.ContextBundle, error) {
	return datatypes.ContextBundle{}, nil
}

type stubGenerator struct {
	err error
}

func (s stubGenerator) Generate(ctx context.Context, constraints datatypes.PlanConstraints, bundle datatypes.ContextBundle) ([]datatypes.Strategy, error) {
	if s.err != nil {
		return nil, s.err
	}
	axes := datatypes.AllOptimizationTypes()
	strategies := make([]datatypes.Strategy, len(axes))
	for i, axis := range axes {
		strategies[i] = datatypes.Strategy{
			OptimizationType: axis,
			Title:            "Stub Strategy",
			Approach:         "Do the thing.",
			Rationale:        "It works.",
			ActionableSteps:  []string{"step"},
			ContentHash:      fmt.Sprintf("hash-%d", i),
		}
	}
	return strategies, nil
}

type stubValidator struct{}

func (stubValidator) ValidateAll(ctx context.Context, strategies []datatypes.Strategy, regulatory []datatypes.RegulatoryPassage) ([]datatypes.ValidationResult, error) {
	results := make([]datatypes.ValidationResult, len(strategies))
	for i := range results {
		results[i] = datatypes.ValidationResult{ComplianceStatus: datatypes.ComplianceApproved, Confidence: 0.9}
	}
	return results, nil
}

type stubStore struct{}

func (stubStore) EnqueueAndPersist(ctx context.Context, strategies []datatypes.Strategy, results []datatypes.ValidationResult, constraints datatypes.PlanConstraints) (datatypes.StorageSummary, error) {
	return datatypes.StorageSummary{Buffered: true}, nil
}

func newStubPipeline(genErr error) *workflow.Pipeline {
	return workflow.NewPipeline(stubGatherer{}, stubGenerator{err: genErr}, stubValidator{}, stubStore{}, testMetrics)
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ===== Health Tests =====

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

// ===== Strategy Generation Tests =====

func TestGenerateStrategies_Success(t *testing.T) {
	router := gin.New()
	router.POST("/v1/strategies", GenerateStrategies(newStubPipeline(nil)))

	w := postJSON(router, "/v1/strategies", `{
		"copay": 25,
		"deductible": 1500,
		"network_providers": ["Alpha Medical"],
		"geographic_scope": "franklin county, oh",
		"specialty_access": "cardiology"
	}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.GenerateStrategiesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Strategies, 4)
	assert.True(t, resp.Storage.Buffered)
	for _, item := range resp.Strategies {
		assert.Equal(t, datatypes.ComplianceApproved, item.ComplianceStatus)
	}
}

func TestGenerateStrategies_MalformedBodyReturns400(t *testing.T) {
	router := gin.New()
	router.POST("/v1/strategies", GenerateStrategies(newStubPipeline(nil)))

	w := postJSON(router, "/v1/strategies", `{"copay": "not a number"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateStrategies_InvalidConstraintsListAllFields(t *testing.T) {
	router := gin.New()
	router.POST("/v1/strategies", GenerateStrategies(newStubPipeline(nil)))

	// Missing deductible, empty providers, blank specialty.
	w := postJSON(router, "/v1/strategies", `{
		"copay": 25,
		"network_providers": [],
		"geographic_scope": "franklin county, oh",
		"specialty_access": "   "
	}`)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error  string                `json:"error"`
		Fields []datatypes.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid plan constraints", body.Error)
	assert.Len(t, body.Fields, 3)
}

func TestGenerateStrategies_PipelineFailureReturns500(t *testing.T) {
	router := gin.New()
	router.POST("/v1/strategies", GenerateStrategies(newStubPipeline(fmt.Errorf("every backend down"))))

	w := postJSON(router, "/v1/strategies", `{
		"copay": 25,
		"deductible": 1500,
		"network_providers": ["Alpha Medical"],
		"geographic_scope": "franklin county, oh",
		"specialty_access": "cardiology"
	}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// ===== Feedback Validation Tests =====

// The store is only consulted after the rating passes validation, so these
// cases run without one.

func TestSubmitFeedback_OutOfRangeRatingReturns400(t *testing.T) {
	router := gin.New()
	router.POST("/v1/strategies/:strategyId/feedback", SubmitFeedback(nil, testMetrics))

	for _, body := range []string{
		`{"effectiveness_rating": 0.5}`,
		`{"effectiveness_rating": 5.1}`,
		`{}`,
	} {
		w := postJSON(router, "/v1/strategies/abc/feedback", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestSubmitFeedback_MalformedBodyReturns400(t *testing.T) {
	router := gin.New()
	router.POST("/v1/strategies/:strategyId/feedback", SubmitFeedback(nil, testMetrics))

	w := postJSON(router, "/v1/strategies/abc/feedback", `{"effectiveness_rating": "five"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===== Regulatory Ingest Validation Tests =====

func TestIngestRegulatoryDocument_MissingFieldsReturn400(t *testing.T) {
	router := gin.New()
	router.POST("/v1/regulatory/documents", IngestRegulatoryDocument(nil))

	w := postJSON(router, "/v1/regulatory/documents", `{"source": "ohio dept of insurance"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===== Buffer Admin Tests =====

type noopCommitter struct{}

func (noopCommitter) Commit(ctx context.Context, entry buffer.Entry) error { return nil }

func openHandlerBuffer(t *testing.T) *buffer.Buffer {
	t.Helper()
	db, err := buffer.OpenDB(buffer.InMemoryDBConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return buffer.New(db)
}

func TestBufferStats_ReportsCensus(t *testing.T) {
	buf := openHandlerBuffer(t)
	_, err := buf.Enqueue(datatypes.Strategy{
		OptimizationType: datatypes.OptimizeSpeed,
		Title:            "t",
		Approach:         "a",
		Rationale:        "r",
		ActionableSteps:  []string{"s"},
		ContentHash:      "hash-1",
	}, datatypes.PlanConstraints{}, datatypes.ComplianceApproved)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/v1/buffer/stats", BufferStats(buf, testMetrics))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/buffer/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var stats buffer.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Total)
}

func TestBufferSweep_DrainsAndPurges(t *testing.T) {
	buf := openHandlerBuffer(t)
	_, err := buf.Enqueue(datatypes.Strategy{
		OptimizationType: datatypes.OptimizeCost,
		Title:            "t",
		Approach:         "a",
		Rationale:        "r",
		ActionableSteps:  []string{"s"},
		ContentHash:      "hash-1",
	}, datatypes.PlanConstraints{}, datatypes.ComplianceApproved)
	require.NoError(t, err)

	processor := buffer.NewProcessor(buf, noopCommitter{}, buffer.ProcessorConfig{})
	sweeper := buffer.NewSweeper(buf, buffer.SweeperConfig{})

	router := gin.New()
	router.POST("/v1/buffer/sweep", BufferSweep(processor, sweeper))

	w := postJSON(router, "/v1/buffer/sweep", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Committed int `json:"committed"`
		Purged    int `json:"purged"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Committed)
	assert.Equal(t, 0, body.Purged)
}
