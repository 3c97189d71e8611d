// Copyright (C) 2025 Insurance Navigator contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gather

import (
	"context"
	"sync"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"golang.org/x/sync/singleflight"
)

// webCacheEntry holds one cached web-search result set.
type webCacheEntry struct {
	hits      []datatypes.WebSearchHit
	expiresAt time.Time
}

// WebSearchCache caches web-search results per canonical constraint key.
//
// # Description
//
// A TTL cache with singleflight deduplication: concurrent requests for the
// same constraint key share one provider call instead of fanning out
// duplicate searches. Entries expire after the configured TTL; expired
// entries are replaced lazily on the next lookup.
//
// # Thread Safety
//
// Safe for concurrent use. Uses sync.RWMutex for the entry map and
// singleflight.Group for fetch deduplication.
type WebSearchCache struct {
	mu      sync.RWMutex
	entries map[string]webCacheEntry
	flight  singleflight.Group
	ttl     time.Duration
	now     func() time.Time
}

// NewWebSearchCache creates a cache with the given TTL. A non-positive TTL
// falls back to 5 minutes.
func NewWebSearchCache(ttl time.Duration) *WebSearchCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &WebSearchCache{
		entries: make(map[string]webCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// GetOrFetch returns the cached hits for key, or runs fetch once (shared
// across concurrent callers) and caches the result.
//
// A fetch error is returned to every waiting caller and nothing is cached,
// so a transient provider failure does not poison the cache.
func (c *WebSearchCache) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) ([]datatypes.WebSearchHit, error)) ([]datatypes.WebSearchHit, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.hits, nil
	}

	result, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have just filled it.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.now().Before(entry.expiresAt) {
			return entry.hits, nil
		}

		hits, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = webCacheEntry{hits: hits, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]datatypes.WebSearchHit), nil
}

// Len returns the number of entries currently held, expired or not.
func (c *WebSearchCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
