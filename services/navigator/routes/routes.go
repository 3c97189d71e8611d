// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/buffer"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/handlers"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/storage"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/workflow"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// SetupRoutes registers every navigator endpoint on the router.
func SetupRoutes(router *gin.Engine, client *weaviate.Client, pipeline *workflow.Pipeline,
	store *storage.DurableStore, buf *buffer.Buffer, processor *buffer.Processor,
	sweeper *buffer.Sweeper, metrics *observability.PipelineMetrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadyCheck(client))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/strategies", handlers.GenerateStrategies(pipeline))
		v1.POST("/strategies/:strategyId/feedback", handlers.SubmitFeedback(store, metrics))
		v1.POST("/regulatory/documents", handlers.IngestRegulatoryDocument(store))
		// Buffer administration routes
		buffers := v1.Group("/buffer")
		{
			buffers.GET("/stats", handlers.BufferStats(buf, metrics))
			buffers.POST("/sweep", handlers.BufferSweep(processor, sweeper))
		}
	}
}
