// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package buffer

import (
	"context"
	"log/slog"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("navigator.buffer")

// Committer performs the durable commit of one buffered entry. Implemented
// by the storage layer; a commit must be idempotent because an entry can be
// retried after a crash mid-commit.
type Committer interface {
	Commit(ctx context.Context, entry Entry) error
}

// ProcessorConfig controls the drain loop.
type ProcessorConfig struct {
	// PollInterval is how often the processor looks for due entries.
	// Default: 500ms.
	PollInterval time.Duration

	// BatchSize is the maximum entries claimed per poll. Default: 16.
	BatchSize int

	// CommitTimeout bounds one commit attempt. Default: 10s.
	CommitTimeout time.Duration

	// Metrics receives per-commit outcome counts. Optional.
	Metrics *observability.PipelineMetrics
}

func applyProcessorDefaults(cfg *ProcessorConfig) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 10 * time.Second
	}
}

// Processor drains the buffer into durable storage in the background.
//
// # Description
//
// On each tick the processor claims due entries, commits them one at a
// time, and records the outcome. A failed commit re-queues the entry with
// backoff until the retry budget runs out; the entry is then abandoned and
// logged. If the process dies mid-commit, the claim's processing lease
// expires and the entry is reclaimed on a later tick; commits are
// idempotent, so the redo is safe.
//
// # Thread Safety
//
// Run exactly one Processor per buffer database.
type Processor struct {
	buffer    *Buffer
	committer Committer
	config    ProcessorConfig
	done      chan struct{}
}

// NewProcessor wires a processor; call Start to begin draining.
func NewProcessor(buf *Buffer, committer Committer, cfg ProcessorConfig) *Processor {
	applyProcessorDefaults(&cfg)
	return &Processor{
		buffer:    buf,
		committer: committer,
		config:    cfg,
		done:      make(chan struct{}),
	}
}

// Start launches the drain loop goroutine.
func (p *Processor) Start() {
	go p.run()
	slog.Info("Buffer processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
}

// Stop halts the drain loop. In-flight commits finish their attempt.
func (p *Processor) Stop() {
	close(p.done)
}

func (p *Processor) run() {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.drainOnce()
		}
	}
}

// DrainOnce claims and commits one batch synchronously. Exposed for the
// admin sweep endpoint and tests; the background loop calls it on a ticker.
func (p *Processor) DrainOnce() int {
	return p.drainOnce()
}

func (p *Processor) drainOnce() int {
	entries, err := p.buffer.ClaimDue(p.config.BatchSize)
	if err != nil {
		slog.Error("Failed to claim buffer entries", "error", err)
		return 0
	}
	committed := 0
	for _, entry := range entries {
		if p.commitOne(entry) {
			committed++
		}
	}
	return committed
}

// commitOne runs one commit attempt and records the outcome.
func (p *Processor) commitOne(entry Entry) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.CommitTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "Processor.commitOne")
	defer span.End()
	span.SetAttributes(
		attribute.String("buffer.content_hash", entry.ContentHash),
		attribute.Int("buffer.attempt", entry.Attempts+1),
	)

	if err := p.committer.Commit(ctx, entry); err != nil {
		span.RecordError(err)
		if markErr := p.buffer.MarkFailed(entry.ContentHash, err); markErr != nil {
			slog.Error("Failed to record commit failure", "content_hash", entry.ContentHash, "error", markErr)
			return false
		}
		if entry.Attempts+1 >= MaxAttempts {
			p.countCommit("abandoned")
			slog.Error("Abandoning buffer entry after exhausted retries",
				"content_hash", entry.ContentHash,
				"attempts", entry.Attempts+1,
				"error", err)
		} else {
			p.countCommit("retried")
			slog.Warn("Buffer commit failed, will retry",
				"content_hash", entry.ContentHash,
				"attempts", entry.Attempts+1,
				"error", err)
		}
		return false
	}

	if err := p.buffer.MarkCompleted(entry.ContentHash); err != nil {
		slog.Error("Commit succeeded but completion not recorded",
			"content_hash", entry.ContentHash, "error", err)
		return false
	}
	p.countCommit("committed")
	slog.Debug("Buffer entry committed", "content_hash", entry.ContentHash)
	return true
}

// countCommit records one commit outcome when metrics are configured.
func (p *Processor) countCommit(outcome string) {
	if p.config.Metrics != nil {
		p.config.Metrics.BufferCommits.WithLabelValues(outcome).Inc()
	}
}
