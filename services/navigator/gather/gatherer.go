// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gather assembles the per-request context bundle fed to the
// strategy generator: live web-search hits, semantically similar stored
// strategies, and regulatory passages.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/llm"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/search"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("navigator.gather")

// Config controls gatherer fan-out and budgets.
type Config struct {
	// WebTimeout bounds the whole web-search leg (all derived queries).
	// Default: 5s.
	WebTimeout time.Duration

	// WebHitsPerQuery is the per-query result cap. Default: 3.
	WebHitsPerQuery int

	// SimilarLimit is the maximum number of similar strategies. Default: 5.
	SimilarLimit int

	// MinSimilarity drops retrieved strategies whose certainty falls below
	// it. Default: 0.7.
	MinSimilarity float64

	// RegulatoryLimit is the maximum number of regulatory passages. Default: 5.
	RegulatoryLimit int

	// CacheTTL is the web-search cache TTL. Default: 5m.
	CacheTTL time.Duration
}

// applyConfigDefaults fills zero-valued fields with production defaults.
func applyConfigDefaults(cfg *Config) {
	if cfg.WebTimeout <= 0 {
		cfg.WebTimeout = 5 * time.Second
	}
	if cfg.WebHitsPerQuery <= 0 {
		cfg.WebHitsPerQuery = 3
	}
	if cfg.SimilarLimit <= 0 {
		cfg.SimilarLimit = 5
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.7
	}
	if cfg.RegulatoryLimit <= 0 {
		cfg.RegulatoryLimit = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
}

// Gatherer collects context from the three sources concurrently.
//
// # Description
//
// For each request the gatherer fans out three legs:
//
//  1. Web search: three queries derived from the constraints (speed, cost,
//     effort phrasing), each capped at WebHitsPerQuery hits, the whole leg
//     bounded by WebTimeout. Results are cached per canonical constraint
//     key with singleflight deduplication.
//  2. Semantic retrieval: the constraint key is embedded and matched against
//     stored strategy vectors, pre-filtered by specialty category, then the
//     owning records are fetched.
//  3. Regulatory lookup: BM25 keyword search over ingested regulatory
//     chunks for the specialty.
//
// A failed web leg degrades the bundle rather than failing it. Only when
// every source fails does Gather return an error.
//
// # Thread Safety
//
// Safe for concurrent use. One gatherer is shared across all requests.
type Gatherer struct {
	searchClient   search.Client
	weaviateClient *weaviate.Client
	embedder       llm.Embedder
	cache          *WebSearchCache
	config         Config
}

// NewGatherer wires a gatherer from its dependencies. searchClient may be
// nil, in which case the web leg is skipped and bundles are always degraded.
func NewGatherer(searchClient search.Client, weaviateClient *weaviate.Client, embedder llm.Embedder, cfg Config) *Gatherer {
	applyConfigDefaults(&cfg)
	return &Gatherer{
		searchClient:   searchClient,
		weaviateClient: weaviateClient,
		embedder:       embedder,
		cache:          NewWebSearchCache(cfg.CacheTTL),
		config:         cfg,
	}
}

// deriveQueries builds the three web-search queries from the constraints.
// Each phrasing targets one optimization axis so the hits cover different
// ground.
func deriveQueries(pc datatypes.PlanConstraints) []string {
	return []string{
		fmt.Sprintf("fastest way to get %s appointment %s insurance", pc.SpecialtyAccess, pc.GeographicScope),
		fmt.Sprintf("lowest cost %s care options %s copay deductible", pc.SpecialtyAccess, pc.GeographicScope),
		fmt.Sprintf("how to access %s specialist %s insurance network steps", pc.SpecialtyAccess, pc.GeographicScope),
	}
}

// Gather assembles the context bundle for one request.
//
// # Inputs
//
//   - ctx: Bounds the whole gathering stage. The web leg additionally gets
//     its own shorter deadline.
//   - constraints: Canonical plan constraints.
//
// # Outputs
//
//   - datatypes.ContextBundle: Possibly degraded, possibly partially empty.
//   - error: Non-nil only when every context source failed.
func (g *Gatherer) Gather(ctx context.Context, constraints datatypes.PlanConstraints) (datatypes.ContextBundle, error) {
	ctx, span := tracer.Start(ctx, "Gatherer.Gather")
	defer span.End()

	var (
		wg         sync.WaitGroup
		bundle     datatypes.ContextBundle
		webErr     error
		similarErr error
		regErr     error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		bundle.WebHits, webErr = g.gatherWeb(ctx, constraints)
	}()
	go func() {
		defer wg.Done()
		bundle.SimilarStrategies, similarErr = g.gatherSimilar(ctx, constraints)
	}()
	go func() {
		defer wg.Done()
		bundle.RegulatoryPassages, regErr = g.gatherRegulatory(ctx, constraints)
	}()
	wg.Wait()

	if webErr != nil {
		slog.Warn("Web context unavailable, degrading bundle", "error", webErr)
		bundle.Degraded = true
	}
	if similarErr != nil {
		slog.Warn("Semantic retrieval failed", "error", similarErr)
	}
	if regErr != nil {
		slog.Warn("Regulatory lookup failed", "error", regErr)
	}

	span.SetAttributes(
		attribute.Int("gather.web_hits", len(bundle.WebHits)),
		attribute.Int("gather.similar", len(bundle.SimilarStrategies)),
		attribute.Int("gather.regulatory", len(bundle.RegulatoryPassages)),
		attribute.Bool("gather.degraded", bundle.Degraded),
	)

	if webErr != nil && similarErr != nil && regErr != nil {
		return datatypes.ContextBundle{}, fmt.Errorf("all context sources failed: web=%v, similar=%v, regulatory=%v", webErr, similarErr, regErr)
	}
	return bundle, nil
}

// gatherWeb runs the three derived queries under the web budget, through the
// per-constraint-key cache.
func (g *Gatherer) gatherWeb(ctx context.Context, constraints datatypes.PlanConstraints) ([]datatypes.WebSearchHit, error) {
	if g.searchClient == nil {
		return nil, fmt.Errorf("no web-search provider configured")
	}
	ctx, span := tracer.Start(ctx, "Gatherer.gatherWeb")
	defer span.End()

	webCtx, cancel := context.WithTimeout(ctx, g.config.WebTimeout)
	defer cancel()

	key := constraints.CanonicalKey()
	return g.cache.GetOrFetch(webCtx, key, func(fetchCtx context.Context) ([]datatypes.WebSearchHit, error) {
		queries := deriveQueries(constraints)
		type legResult struct {
			hits []datatypes.WebSearchHit
			err  error
		}
		results := make([]legResult, len(queries))
		var wg sync.WaitGroup
		for i, q := range queries {
			wg.Add(1)
			go func(i int, q string) {
				defer wg.Done()
				hits, err := g.searchClient.Search(fetchCtx, q, g.config.WebHitsPerQuery)
				results[i] = legResult{hits: hits, err: err}
			}(i, q)
		}
		wg.Wait()

		var all []datatypes.WebSearchHit
		failures := 0
		for _, r := range results {
			if r.err != nil {
				failures++
				continue
			}
			all = append(all, r.hits...)
		}
		if failures == len(queries) {
			return nil, fmt.Errorf("all %d web queries failed", len(queries))
		}
		return all, nil
	})
}

// gatherSimilar embeds the constraint key and retrieves similar stored
// strategies, pre-filtered by specialty category.
func (g *Gatherer) gatherSimilar(ctx context.Context, constraints datatypes.PlanConstraints) ([]datatypes.SimilarStrategy, error) {
	if g.weaviateClient == nil || g.embedder == nil {
		return nil, fmt.Errorf("semantic retrieval not configured")
	}
	ctx, span := tracer.Start(ctx, "Gatherer.gatherSimilar")
	defer span.End()

	vector, err := g.embedder.Embed(ctx, constraints.CanonicalKey())
	if err != nil {
		return nil, fmt.Errorf("failed to embed constraints: %w", err)
	}

	categoryFilter := filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Equal).
		WithValueString(constraints.SpecialtyAccess)

	nearVector := g.weaviateClient.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// Certainty is requested instead of distance: it is always in [0,1]
	// regardless of the index's distance metric.
	fields := []graphql.Field{
		{Name: "strategy_id"},
		{Name: "category"},
		{Name: "model_version"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := g.weaviateClient.GraphQL().Get().
		WithClassName(datatypes.ClassStrategyVector).
		WithFields(fields...).
		WithWhere(categoryFilter).
		WithNearVector(nearVector).
		WithLimit(g.config.SimilarLimit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.StrategyVectorQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vector results: %w", err)
	}

	similar := make([]datatypes.SimilarStrategy, 0, len(parsed.Get.StrategyVector))
	for _, v := range parsed.Get.StrategyVector {
		if v.Additional.Certainty != nil && float64(*v.Additional.Certainty) < g.config.MinSimilarity {
			continue
		}
		record, err := g.fetchStrategyRecord(ctx, v.StrategyID)
		if err != nil {
			slog.Debug("Skipping similar strategy with missing record", "strategy_id", v.StrategyID, "error", err)
			continue
		}
		sim := datatypes.SimilarStrategy{
			ID:       v.StrategyID,
			Title:    record.Title,
			Approach: record.Approach,
			Category: v.Category,
		}
		if v.Additional.Certainty != nil {
			sim.Similarity = float64(*v.Additional.Certainty)
		}
		similar = append(similar, sim)
	}
	return similar, nil
}

// fetchStrategyRecord loads one committed record by its object ID.
func (g *Gatherer) fetchStrategyRecord(ctx context.Context, strategyID string) (datatypes.StrategyRecord, error) {
	idFilter := filters.Where().
		WithPath([]string{"id"}).
		WithOperator(filters.Equal).
		WithValueString(strategyID)

	result, err := g.weaviateClient.GraphQL().Get().
		WithClassName(datatypes.ClassStrategyRecord).
		WithFields(
			graphql.Field{Name: "title"},
			graphql.Field{Name: "category"},
			graphql.Field{Name: "approach"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
		).
		WithWhere(idFilter).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return datatypes.StrategyRecord{}, fmt.Errorf("record fetch failed: %w", err)
	}
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.StrategyRecordQueryResponse](result)
	if err != nil {
		return datatypes.StrategyRecord{}, fmt.Errorf("failed to parse record: %w", err)
	}
	if len(parsed.Get.StrategyRecord) == 0 {
		return datatypes.StrategyRecord{}, fmt.Errorf("no record with id %s", strategyID)
	}
	return parsed.Get.StrategyRecord[0].ToRecord(), nil
}

// gatherRegulatory runs a BM25 keyword search over regulatory chunks for
// the specialty.
func (g *Gatherer) gatherRegulatory(ctx context.Context, constraints datatypes.PlanConstraints) ([]datatypes.RegulatoryPassage, error) {
	if g.weaviateClient == nil {
		return nil, fmt.Errorf("regulatory lookup not configured")
	}
	ctx, span := tracer.Start(ctx, "Gatherer.gatherRegulatory")
	defer span.End()

	query := fmt.Sprintf("%s %s coverage access requirements", constraints.SpecialtyAccess, constraints.GeographicScope)
	bm25 := g.weaviateClient.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("content")

	result, err := g.weaviateClient.GraphQL().Get().
		WithClassName(datatypes.ClassRegulatoryDocument).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "section"},
			graphql.Field{Name: "category"},
		).
		WithBM25(bm25).
		WithLimit(g.config.RegulatoryLimit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("regulatory search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.RegulatoryQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regulatory results: %w", err)
	}

	passages := make([]datatypes.RegulatoryPassage, 0, len(parsed.Get.RegulatoryDocument))
	for _, d := range parsed.Get.RegulatoryDocument {
		passages = append(passages, datatypes.RegulatoryPassage{
			Source:  d.Source,
			Section: d.Section,
			Content: d.Content,
		})
	}
	return passages, nil
}
