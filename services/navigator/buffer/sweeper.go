// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package buffer

import (
	"log/slog"
	"time"
)

// SweeperConfig controls retention enforcement.
type SweeperConfig struct {
	// Interval is how often the sweep runs. Default: 1h.
	Interval time.Duration

	// CompletedTTL is how long completed and abandoned entries are kept
	// for inspection. Default: 24h.
	CompletedTTL time.Duration

	// StaleTTL is how long an unprocessed pending or failed entry may sit
	// before it is considered expired and purged. Default: 24h.
	StaleTTL time.Duration
}

func applySweeperDefaults(cfg *SweeperConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = 24 * time.Hour
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = 24 * time.Hour
	}
}

// Sweeper periodically purges expired buffer entries.
//
// A purged pending entry is gone for good: expiry means the work is too
// stale to be worth committing, so the sweeper removes it without ever
// handing it to the processor.
type Sweeper struct {
	buffer *Buffer
	config SweeperConfig
	done   chan struct{}
}

// NewSweeper wires a sweeper; call Start to begin sweeping.
func NewSweeper(buf *Buffer, cfg SweeperConfig) *Sweeper {
	applySweeperDefaults(&cfg)
	return &Sweeper{buffer: buf, config: cfg, done: make(chan struct{})}
}

// Start launches the sweep loop goroutine.
func (s *Sweeper) Start() {
	go s.run()
	slog.Info("Buffer sweeper started",
		"interval", s.config.Interval,
		"completed_ttl", s.config.CompletedTTL,
		"stale_ttl", s.config.StaleTTL)
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	close(s.done)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs one purge pass synchronously. Exposed for the admin
// endpoint and tests.
func (s *Sweeper) SweepOnce() int {
	purged, err := s.buffer.PurgeExpired(s.config.CompletedTTL, s.config.StaleTTL)
	if err != nil {
		slog.Error("Buffer sweep failed", "error", err)
		return 0
	}
	if purged > 0 {
		slog.Info("Buffer sweep purged expired entries", "purged", purged)
	}
	return purged
}
