// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the gin handlers for the navigator API.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/workflow"
	"github.com/gin-gonic/gin"
)

// GenerateStrategies handles POST /v1/strategies.
//
// # Description
//
// Binds the plan constraints, runs the full pipeline, and returns the four
// annotated strategies. Invalid constraints return 400 with every violated
// field listed; pipeline failures return 500. Degraded and partial runs
// still return 200 with the degraded flag set.
func GenerateStrategies(pipeline *workflow.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StrategyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}

		resp, err := pipeline.Run(c.Request.Context(), req)
		if err != nil {
			if ve, ok := datatypes.AsValidationError(err); ok {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":  "invalid plan constraints",
					"fields": ve.Fields,
				})
				return
			}
			slog.Error("Pipeline run failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "strategy generation failed"})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}
