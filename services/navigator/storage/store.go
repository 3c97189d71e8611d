// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage owns the durable strategy stores: the write-ahead buffer
// on the request path and the paired metadata/vector classes behind it.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/llm"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/buffer"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("navigator.storage")

// strategyNamespace seeds deterministic object IDs. Hashing the content
// hash into a UUID makes commits idempotent: the same strategy always maps
// to the same object ID, so a retried commit collides with itself instead
// of duplicating.
var strategyNamespace = uuid.MustParse("8f2b4a1c-6d3e-4f7a-9b0c-5e8d1a2f3c4b")

// recordID returns the deterministic StrategyRecord object ID for a hash.
func recordID(contentHash string) string {
	return uuid.NewSHA1(strategyNamespace, []byte("record:"+contentHash)).String()
}

// vectorID returns the deterministic StrategyVector object ID for a hash.
func vectorID(contentHash string) string {
	return uuid.NewSHA1(strategyNamespace, []byte("vector:"+contentHash)).String()
}

// DurableStore persists strategies to the paired Weaviate classes via the
// write-ahead buffer.
//
// # Description
//
// The request path calls EnqueueAndPersist, which only touches the buffer;
// the background processor later calls Commit, which embeds the strategy
// and writes the StrategyRecord and StrategyVector rows. The record is
// written first; if the vector write fails, the record is deleted again so
// the pair invariant (vector exists iff record exists) holds.
//
// # Thread Safety
//
// Safe for concurrent use.
type DurableStore struct {
	client   *weaviate.Client
	embedder llm.Embedder
	buffer   *buffer.Buffer
	now      func() time.Time
}

// NewDurableStore wires the store from its dependencies.
func NewDurableStore(client *weaviate.Client, embedder llm.Embedder, buf *buffer.Buffer) *DurableStore {
	return &DurableStore{
		client:   client,
		embedder: embedder,
		buffer:   buf,
		now:      time.Now,
	}
}

// EnqueueAndPersist acknowledges the strategies into the buffer.
//
// # Description
//
// The synchronous half of the outbox: each strategy is written to the
// buffer, keyed by content hash, before the response returns. Strategy IDs
// in the summary are deterministic, so they are valid even though the
// durable commit has not happened yet. Duplicate hashes map onto existing
// entries and are still acknowledged.
//
// # Outputs
//
//   - datatypes.StorageSummary: Buffered flag plus the deterministic IDs.
//   - error: Non-nil when any buffer write failed.
func (s *DurableStore) EnqueueAndPersist(ctx context.Context, strategies []datatypes.Strategy, results []datatypes.ValidationResult, constraints datatypes.PlanConstraints) (datatypes.StorageSummary, error) {
	summary := datatypes.StorageSummary{StrategyIDs: make([]string, 0, len(strategies))}
	for i, strategy := range strategies {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("storage stage interrupted: %w", err)
		}
		status := datatypes.CompliancePending
		if i < len(results) {
			status = results[i].ComplianceStatus
		}
		inserted, err := s.buffer.Enqueue(strategy, constraints, status)
		if err != nil {
			return summary, fmt.Errorf("buffer strategy %s: %w", strategy.ContentHash, err)
		}
		if !inserted {
			slog.Debug("Strategy already buffered, deduplicated", "content_hash", strategy.ContentHash)
		}
		summary.StrategyIDs = append(summary.StrategyIDs, recordID(strategy.ContentHash))
	}
	summary.Buffered = true
	return summary, nil
}

// Commit implements buffer.Committer: it makes one buffered entry durable.
//
// # Description
//
// Embeds the strategy text, writes the StrategyRecord with its
// deterministic ID, then writes the StrategyVector. An ID collision on
// either write means a previous attempt already committed that half and
// counts as success. If the vector write fails for any other reason, the
// just-written record is deleted to keep the pair atomic, and the error is
// returned so the buffer can retry.
func (s *DurableStore) Commit(ctx context.Context, entry buffer.Entry) error {
	ctx, span := tracer.Start(ctx, "DurableStore.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("storage.content_hash", entry.ContentHash))

	embedText := entry.Strategy.Title + "\n" + entry.Strategy.Approach
	vector, err := s.embedder.Embed(ctx, embedText)
	if err != nil {
		return fmt.Errorf("embed strategy %s: %w", entry.ContentHash, err)
	}

	now := s.now().UTC().UnixMilli()
	record := datatypes.StrategyRecord{
		ID:               recordID(entry.ContentHash),
		Title:            entry.Strategy.Title,
		Category:         entry.Constraints.SpecialtyAccess,
		Approach:         entry.Strategy.Approach,
		Rationale:        entry.Strategy.Rationale,
		ActionableSteps:  entry.Strategy.ActionableSteps,
		PlanConstraints:  entry.Constraints.CanonicalKey(),
		OptimizationType: entry.Strategy.OptimizationType,
		LLMScoreSpeed:    entry.Strategy.LLMScoreSpeed,
		LLMScoreCost:     entry.Strategy.LLMScoreCost,
		LLMScoreEffort:   entry.Strategy.LLMScoreEffort,
		LLMConfidence:    entry.Strategy.LLMConfidence,
		ContentHash:      entry.ContentHash,
		ValidationStatus: entry.ValidationStatus,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = s.client.Data().Creator().
		WithClassName(datatypes.ClassStrategyRecord).
		WithID(record.ID).
		WithProperties(record.ToMap()).
		Do(ctx)
	if err != nil && !isAlreadyExists(err) {
		span.RecordError(err)
		return fmt.Errorf("create strategy record %s: %w", record.ID, err)
	}

	sv := datatypes.StrategyVector{
		StrategyID:   record.ID,
		Category:     record.Category,
		Embedding:    vector,
		ModelVersion: s.embedder.ModelVersion(),
		CreatedAt:    now,
	}
	_, err = s.client.Data().Creator().
		WithClassName(datatypes.ClassStrategyVector).
		WithID(vectorID(entry.ContentHash)).
		WithProperties(sv.ToMap()).
		WithVector(sv.Embedding).
		Do(ctx)
	if err != nil && !isAlreadyExists(err) {
		span.RecordError(err)
		// Compensate: remove the record so no vector-less record survives.
		if delErr := s.deleteObject(ctx, datatypes.ClassStrategyRecord, record.ID); delErr != nil {
			slog.Error("Compensating record delete failed; pair invariant broken until retry",
				"strategy_id", record.ID, "error", delErr)
		}
		return fmt.Errorf("create strategy vector for %s: %w", record.ID, err)
	}

	slog.Info("Strategy committed to durable store",
		"strategy_id", record.ID,
		"content_hash", entry.ContentHash,
		"validation_status", record.ValidationStatus)
	return nil
}

// isAlreadyExists detects an ID collision on create, which a retried or
// concurrent commit produces by design.
func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "status code: 422")
}

// deleteObject removes one object by class and ID.
func (s *DurableStore) deleteObject(ctx context.Context, className, id string) error {
	return s.client.Data().Deleter().
		WithClassName(className).
		WithID(id).
		Do(ctx)
}

// GetRecord fetches one committed StrategyRecord by its object ID.
func (s *DurableStore) GetRecord(ctx context.Context, strategyID string) (datatypes.StrategyRecord, error) {
	idFilter := filters.Where().
		WithPath([]string{"id"}).
		WithOperator(filters.Equal).
		WithValueString(strategyID)

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassStrategyRecord).
		WithFields(
			graphql.Field{Name: "title"},
			graphql.Field{Name: "category"},
			graphql.Field{Name: "approach"},
			graphql.Field{Name: "rationale"},
			graphql.Field{Name: "actionable_steps"},
			graphql.Field{Name: "plan_constraints"},
			graphql.Field{Name: "optimization_type"},
			graphql.Field{Name: "llm_score_speed"},
			graphql.Field{Name: "llm_score_cost"},
			graphql.Field{Name: "llm_score_effort"},
			graphql.Field{Name: "llm_confidence"},
			graphql.Field{Name: "human_score_effectiveness"},
			graphql.Field{Name: "num_ratings"},
			graphql.Field{Name: "content_hash"},
			graphql.Field{Name: "validation_status"},
			graphql.Field{Name: "created_at"},
			graphql.Field{Name: "updated_at"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
		).
		WithWhere(idFilter).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return datatypes.StrategyRecord{}, fmt.Errorf("fetch record %s: %w", strategyID, err)
	}
	parsed, err := datatypes.ParseGraphQLResponse[datatypes.StrategyRecordQueryResponse](result)
	if err != nil {
		return datatypes.StrategyRecord{}, fmt.Errorf("parse record %s: %w", strategyID, err)
	}
	if len(parsed.Get.StrategyRecord) == 0 {
		return datatypes.StrategyRecord{}, &datatypes.NotFoundError{StrategyID: strategyID}
	}
	return parsed.Get.StrategyRecord[0].ToRecord(), nil
}

// ApplyFeedback folds one human rating into a record's running average.
//
// # Description
//
// new_average = (old_average*num_ratings + rating) / (num_ratings+1).
// Only the human-score fields, the rating count, and updated_at change;
// LLM scores stay frozen. Returns NotFoundError for an unknown ID.
func (s *DurableStore) ApplyFeedback(ctx context.Context, strategyID string, rating float64) (datatypes.FeedbackConfirmation, error) {
	ctx, span := tracer.Start(ctx, "DurableStore.ApplyFeedback")
	defer span.End()
	span.SetAttributes(attribute.String("storage.strategy_id", strategyID))

	record, err := s.GetRecord(ctx, strategyID)
	if err != nil {
		return datatypes.FeedbackConfirmation{}, err
	}

	newAverage, newCount := foldRating(record.HumanScoreEffectiveness, record.NumRatings, rating)

	err = s.client.Data().Updater().
		WithClassName(datatypes.ClassStrategyRecord).
		WithID(strategyID).
		WithProperties(map[string]interface{}{
			"human_score_effectiveness": newAverage,
			"num_ratings":               newCount,
			"updated_at":                s.now().UTC().UnixMilli(),
		}).
		WithMerge().
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return datatypes.FeedbackConfirmation{}, fmt.Errorf("apply feedback to %s: %w", strategyID, err)
	}

	slog.Info("Feedback applied",
		"strategy_id", strategyID,
		"new_average", newAverage,
		"num_ratings", newCount)
	return datatypes.FeedbackConfirmation{NewAverage: newAverage, NumRatings: newCount}, nil
}

// foldRating folds one rating into a running average. A nil average means
// no ratings yet.
func foldRating(average *float64, count int, rating float64) (float64, int) {
	old := 0.0
	if average != nil {
		old = *average
	}
	newCount := count + 1
	return (old*float64(count) + rating) / float64(newCount), newCount
}

// DeleteStrategy removes a record and its vector together.
//
// The vector goes first so a failure between the two deletes leaves a
// record without a vector only transiently; the next call cleans it up.
func (s *DurableStore) DeleteStrategy(ctx context.Context, strategyID string, contentHash string) error {
	ctx, span := tracer.Start(ctx, "DurableStore.DeleteStrategy")
	defer span.End()

	if err := s.deleteObject(ctx, datatypes.ClassStrategyVector, vectorID(contentHash)); err != nil {
		return fmt.Errorf("delete vector for %s: %w", strategyID, err)
	}
	if err := s.deleteObject(ctx, datatypes.ClassStrategyRecord, strategyID); err != nil {
		return fmt.Errorf("delete record %s: %w", strategyID, err)
	}
	slog.Info("Strategy deleted", "strategy_id", strategyID)
	return nil
}

// Compile-time interface compliance.
var _ buffer.Committer = (*DurableStore)(nil)
