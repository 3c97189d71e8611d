// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/storage"
	"github.com/gin-gonic/gin"
)

// ingestValidate reuses the shared validator for ingest bodies.
var ingestValidate = feedbackValidate

// IngestRegulatoryDocument handles POST /v1/regulatory/documents.
//
// Splits the submitted document into keyword-searchable chunks and stores
// them for compliance checks and context gathering.
func IngestRegulatoryDocument(store *storage.DurableStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RegulatoryIngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := ingestValidate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source, category, and content are required"})
			return
		}

		chunks, err := store.IngestRegulatory(c.Request.Context(), req)
		if err != nil {
			slog.Error("Regulatory ingest failed", "source", req.Source, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest document"})
			return
		}

		c.JSON(http.StatusCreated, datatypes.RegulatoryIngestResponse{
			Source:      req.Source,
			ChunksAdded: chunks,
		})
	}
}
