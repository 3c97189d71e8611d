// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/storage"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// feedbackValidate checks the rating range declared on FeedbackRequest.
var feedbackValidate = validator.New()

// SubmitFeedback handles POST /v1/strategies/:strategyId/feedback.
//
// # Description
//
// Folds one human effectiveness rating in [1.0, 5.0] into the strategy's
// running average. Out-of-range or missing ratings return 400; an unknown
// strategy ID returns 404. LLM scores are never touched.
func SubmitFeedback(store *storage.DurableStore, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		strategyID := c.Param("strategyId")
		if strategyID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "strategyId is required"})
			return
		}

		var req datatypes.FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := feedbackValidate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "effectiveness_rating must be between 1.0 and 5.0"})
			return
		}

		confirmation, err := store.ApplyFeedback(c.Request.Context(), strategyID, *req.EffectivenessRating)
		if err != nil {
			var nf *datatypes.NotFoundError
			if errors.As(err, &nf) {
				c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
				return
			}
			slog.Error("Feedback update failed", "strategy_id", strategyID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply feedback"})
			return
		}

		metrics.FeedbackTotal.Inc()
		c.JSON(http.StatusOK, datatypes.FeedbackResponse{
			NewAverage: confirmation.NewAverage,
			NumRatings: confirmation.NumRatings,
		})
	}
}
