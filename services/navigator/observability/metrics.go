// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus metrics for the navigator
// service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics instruments the strategy pipeline end to end.
//
// All metrics live under the "navigator" namespace. One instance is created
// at startup and shared; promauto registers everything with the default
// registry, which the /metrics endpoint serves.
type PipelineMetrics struct {
	// RequestsTotal counts pipeline runs by terminal outcome
	// (complete, degraded, partial, failed).
	RequestsTotal *prometheus.CounterVec

	// StageDuration observes per-stage latency in seconds
	// (context, generation, validation, storage).
	StageDuration *prometheus.HistogramVec

	// PipelineDuration observes total pipeline latency in seconds.
	PipelineDuration prometheus.Histogram

	// FallbackStrategies counts deterministic fallback substitutions.
	FallbackStrategies prometheus.Counter

	// ComplianceVerdicts counts validation outcomes by status.
	ComplianceVerdicts *prometheus.CounterVec

	// GuardrailHits counts blocklist rejections.
	GuardrailHits prometheus.Counter

	// BufferDepth gauges entries currently in the buffer by status.
	BufferDepth *prometheus.GaugeVec

	// BufferCommits counts background commit attempts by outcome
	// (committed, retried, abandoned).
	BufferCommits *prometheus.CounterVec

	// FeedbackTotal counts accepted feedback submissions.
	FeedbackTotal prometheus.Counter
}

// NewPipelineMetrics registers and returns the metric set. Call once per
// process.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navigator",
			Name:      "pipeline_requests_total",
			Help:      "Pipeline runs by terminal outcome.",
		}, []string{"outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "navigator",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage pipeline latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stage"}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "navigator",
			Name:      "pipeline_duration_seconds",
			Help:      "Total pipeline latency.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
		}),
		FallbackStrategies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "navigator",
			Name:      "fallback_strategies_total",
			Help:      "Deterministic fallback strategies substituted for failed generations.",
		}),
		ComplianceVerdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navigator",
			Name:      "compliance_verdicts_total",
			Help:      "Compliance validation outcomes by status.",
		}, []string{"status"}),
		GuardrailHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "navigator",
			Name:      "guardrail_hits_total",
			Help:      "Strategies rejected by the phrase blocklist.",
		}),
		BufferDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "navigator",
			Name:      "buffer_entries",
			Help:      "Buffer entries by status.",
		}, []string{"status"}),
		BufferCommits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "navigator",
			Name:      "buffer_commits_total",
			Help:      "Background commit attempts by outcome.",
		}, []string{"outcome"}),
		FeedbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "navigator",
			Name:      "feedback_total",
			Help:      "Accepted feedback submissions.",
		}),
	}
}
