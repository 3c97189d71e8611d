// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ClassStrategyRecord, ClassStrategyVector, and ClassRegulatoryDocument name
// the Weaviate classes backing the durable stores.
const (
	ClassStrategyRecord     = "StrategyRecord"
	ClassStrategyVector     = "StrategyVector"
	ClassRegulatoryDocument = "RegulatoryDocument"
)

func GetStrategyRecordSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassStrategyRecord,
		Description: "Durable metadata for one generated insurance-access strategy.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Short human-readable strategy title.",
				Tokenization: "word",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Specialty category the strategy targets (e.g., 'cardiology').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "approach",
				DataType:     []string{"text"},
				Description:  "The strategy approach text.",
				Tokenization: "word",
			},
			{
				Name:         "rationale",
				DataType:     []string{"text"},
				Description:  "Why this strategy fits the constraints.",
				Tokenization: "word",
			},
			{
				Name:        "actionable_steps",
				DataType:    []string{"text"},
				Description: "Ordered actionable steps, JSON-encoded array.",
			},
			{
				Name:            "plan_constraints",
				DataType:        []string{"text"},
				Description:     "Canonical constraint key the strategy was generated for.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "optimization_type",
				DataType:        []string{"text"},
				Description:     "One of speed, cost, effort, balanced.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "llm_score_speed",
				DataType:    []string{"number"},
				Description: "Model self-score for speed, in [0,1]. Frozen at generation time.",
			},
			{
				Name:        "llm_score_cost",
				DataType:    []string{"number"},
				Description: "Model self-score for cost, in [0,1]. Frozen at generation time.",
			},
			{
				Name:        "llm_score_effort",
				DataType:    []string{"number"},
				Description: "Model self-score for effort, in [0,1]. Frozen at generation time.",
			},
			{
				Name:        "llm_confidence",
				DataType:    []string{"number"},
				Description: "Model confidence in [0,1]. 0.1 marks fallback content.",
			},
			{
				Name:        "human_score_effectiveness",
				DataType:    []string{"number"},
				Description: "Running average of human ratings, in [1,5]. Absent until first feedback.",
			},
			{
				Name:        "num_ratings",
				DataType:    []string{"int"},
				Description: "Number of human ratings folded into the running average.",
			},
			{
				Name:            "content_hash",
				DataType:        []string{"text"},
				Description:     "Deterministic content fingerprint. Unique across strategies.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "validation_status",
				DataType:        []string{"text"},
				Description:     "Compliance verdict at commit time: approved, flagged, or rejected.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the record was committed.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "updated_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds of the last feedback update.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetStrategyVectorSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassStrategyVector,
		Description: "Embedding row coupled one-to-one to a StrategyRecord; exists only when its record is committed.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "strategy_id",
				DataType:        []string{"text"},
				Description:     "ID of the owning StrategyRecord.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Specialty category, denormalized from the record so similarity search can pre-filter cheaply.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "model_version",
				DataType:        []string{"text"},
				Description:     "Embedding model that produced the vector.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the vector was committed.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetRegulatoryDocumentSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassRegulatoryDocument,
		Description: "A chunk of regulatory text used for compliance checks and context gathering.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The regulatory passage text.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Originating document or citation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "section",
				DataType:        []string{"text"},
				Description:     "Section identifier within the source.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Specialty or topic category for keyword lookup.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func EnsureWeaviateSchema(client *weaviate.Client) {
	// A list of functions that return our schema definitions.
	schemaGetters := []func() *models.Class{
		GetStrategyRecordSchema,
		GetStrategyVectorSchema,
		GetRegulatoryDocumentSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// Check if the class already exists.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// If it doesn't exist, the client returns an error. We can now create it.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				// If we fail to create it, it's a fatal error.
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
