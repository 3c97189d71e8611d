// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// blocklistFile is the YAML shape of the guardrail blocklist on disk.
type blocklistFile struct {
	// Phrases are matched case-insensitively as substrings of the strategy
	// title, approach, and steps.
	Phrases []string `yaml:"phrases"`
}

// Guardrail is the deterministic phrase blocklist applied before any model
// judgment.
//
// # Description
//
// Loads a YAML phrase list and rechecks every strategy against it. A hit
// forces a rejected verdict regardless of what the ReAct stages conclude.
// The file is watched with fsnotify and reloaded on write, so operators can
// tighten the blocklist without a restart. A reload that fails to parse
// keeps the previous list.
//
// # Thread Safety
//
// Safe for concurrent use. Phrase swaps happen under a RWMutex.
type Guardrail struct {
	mu      sync.RWMutex
	phrases []string
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewGuardrail loads the blocklist at path and starts watching it.
//
// # Outputs
//
//   - *Guardrail: Active guardrail. Call Close on shutdown.
//   - error: Non-nil if the initial load or the watcher setup fails.
func NewGuardrail(path string) (*Guardrail, error) {
	g := &Guardrail{path: path, done: make(chan struct{})}
	if err := g.reload(); err != nil {
		return nil, fmt.Errorf("failed to load guardrail blocklist: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create blocklist watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch blocklist file: %w", err)
	}
	g.watcher = watcher
	go g.watchLoop()

	slog.Info("Guardrail blocklist loaded", "path", path, "phrases", len(g.phrases))
	return g, nil
}

// NewStaticGuardrail builds a guardrail from an in-memory phrase list, with
// no file watching. Used by tests and as the empty-path fallback.
func NewStaticGuardrail(phrases []string) *Guardrail {
	g := &Guardrail{done: make(chan struct{})}
	g.setPhrases(phrases)
	return g
}

// reload re-reads and re-parses the blocklist file.
func (g *Guardrail) reload() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", g.path, err)
	}
	var file blocklistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", g.path, err)
	}
	g.setPhrases(file.Phrases)
	return nil
}

// setPhrases installs a lowercased copy of the phrase list.
func (g *Guardrail) setPhrases(phrases []string) {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if t := strings.ToLower(strings.TrimSpace(p)); t != "" {
			lowered = append(lowered, t)
		}
	}
	g.mu.Lock()
	g.phrases = lowered
	g.mu.Unlock()
}

// watchLoop handles fsnotify events until Close.
func (g *Guardrail) watchLoop() {
	for {
		select {
		case <-g.done:
			return
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			// Editors often replace the file rather than writing in place,
			// so Create and Rename count as changes too.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if err := g.reload(); err != nil {
					slog.Error("Blocklist reload failed, keeping previous phrases", "error", err)
					continue
				}
				g.mu.RLock()
				n := len(g.phrases)
				g.mu.RUnlock()
				slog.Info("Guardrail blocklist reloaded", "phrases", n)
				// Re-add in case the file was replaced atomically.
				_ = g.watcher.Add(g.path)
			}
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Blocklist watcher error", "error", err)
		}
	}
}

// Check returns the first blocked phrase found in text, if any.
func (g *Guardrail) Check(text string) (string, bool) {
	lowered := strings.ToLower(text)
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, p := range g.phrases {
		if strings.Contains(lowered, p) {
			return p, true
		}
	}
	return "", false
}

// Close stops the file watcher. Safe to call once.
func (g *Guardrail) Close() error {
	close(g.done)
	if g.watcher != nil {
		return g.watcher.Close()
	}
	return nil
}
