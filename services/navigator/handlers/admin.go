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

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/buffer"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/gin-gonic/gin"
)

// BufferStats handles GET /v1/buffer/stats.
//
// Walks the buffer and reports a per-status census; also refreshes the
// buffer depth gauges as a side effect.
func BufferStats(buf *buffer.Buffer, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := buf.Stats()
		if err != nil {
			slog.Error("Buffer stats failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read buffer"})
			return
		}
		metrics.BufferDepth.WithLabelValues("pending").Set(float64(stats.Pending))
		metrics.BufferDepth.WithLabelValues("processing").Set(float64(stats.Processing))
		metrics.BufferDepth.WithLabelValues("completed").Set(float64(stats.Completed))
		metrics.BufferDepth.WithLabelValues("failed").Set(float64(stats.Failed))
		metrics.BufferDepth.WithLabelValues("abandoned").Set(float64(stats.Abandoned))
		c.JSON(http.StatusOK, stats)
	}
}

// BufferSweep handles POST /v1/buffer/sweep.
//
// Runs one drain pass followed by one purge pass synchronously, for
// operators who don't want to wait for the background schedules.
func BufferSweep(processor *buffer.Processor, sweeper *buffer.Sweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		committed := processor.DrainOnce()
		purged := sweeper.SweepOnce()
		c.JSON(http.StatusOK, gin.H{
			"committed": committed,
			"purged":    purged,
		})
	}
}
