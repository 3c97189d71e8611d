// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel/attribute"
)

// Chunking parameters for regulatory text. Regulatory prose tends to carry
// meaning at the paragraph level, so chunks are paragraph-sized with enough
// overlap to keep cross-references intact.
const (
	regulatoryChunkSize    = 1000
	regulatoryChunkOverlap = 150
)

// regulatorySeparators splits on section breaks before paragraphs before
// sentences.
var regulatorySeparators = []string{"\n\n", "\n", ". ", " "}

// IngestRegulatory splits a regulatory document into chunks and stores each
// as a RegulatoryDocument object for BM25 lookup.
//
// # Inputs
//
//   - ctx: Bounds the whole ingest.
//   - req: Validated ingest request with non-empty source, category, content.
//
// # Outputs
//
//   - int: Number of chunks stored.
//   - error: Non-nil if splitting fails or any chunk write fails. Chunks
//     written before the failure remain; re-ingesting the document is safe
//     because lookup is keyword-based and tolerates near-duplicates.
func (s *DurableStore) IngestRegulatory(ctx context.Context, req datatypes.RegulatoryIngestRequest) (int, error) {
	ctx, span := tracer.Start(ctx, "DurableStore.IngestRegulatory")
	defer span.End()
	span.SetAttributes(attribute.String("ingest.source", req.Source))

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(regulatoryChunkSize),
		textsplitter.WithChunkOverlap(regulatoryChunkOverlap),
		textsplitter.WithSeparators(regulatorySeparators),
	)
	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		return 0, fmt.Errorf("split regulatory document %s: %w", req.Source, err)
	}

	now := s.now().UTC().UnixMilli()
	stored := 0
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		_, err := s.client.Data().Creator().
			WithClassName(datatypes.ClassRegulatoryDocument).
			WithProperties(map[string]interface{}{
				"content":     chunk,
				"source":      req.Source,
				"section":     req.Section,
				"category":    req.Category,
				"ingested_at": now,
			}).
			Do(ctx)
		if err != nil {
			span.RecordError(err)
			return stored, fmt.Errorf("store regulatory chunk %d of %s: %w", stored, req.Source, err)
		}
		stored++
	}

	slog.Info("Regulatory document ingested",
		"source", req.Source,
		"category", req.Category,
		"chunks", stored)
	span.SetAttributes(attribute.Int("ingest.chunks", stored))
	return stored, nil
}
