// Copyright (C) 2025 Insurance Navigator contributors
// Tests for the web-search cache

package gather

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHits(title string) []datatypes.WebSearchHit {
	return []datatypes.WebSearchHit{{Title: title, URL: "https://example.com", Snippet: "snippet"}}
}

func TestGetOrFetch_CachesWithinTTL(t *testing.T) {
	c := NewWebSearchCache(10 * time.Minute)
	var calls int32

	fetch := func(ctx context.Context) ([]datatypes.WebSearchHit, error) {
		atomic.AddInt32(&calls, 1)
		return sampleHits("first"), nil
	}

	hits, err := c.GetOrFetch(context.Background(), "key", fetch)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = c.GetOrFetch(context.Background(), "key", fetch)
	require.NoError(t, err)
	assert.Equal(t, "first", hits[0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup must hit the cache")
	assert.Equal(t, 1, c.Len())
}

func TestGetOrFetch_ExpiredEntryIsRefetched(t *testing.T) {
	c := NewWebSearchCache(time.Minute)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	_, err := c.GetOrFetch(context.Background(), "key", func(ctx context.Context) ([]datatypes.WebSearchHit, error) {
		return sampleHits("stale"), nil
	})
	require.NoError(t, err)

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	hits, err := c.GetOrFetch(context.Background(), "key", func(ctx context.Context) ([]datatypes.WebSearchHit, error) {
		return sampleHits("fresh"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", hits[0].Title)
}

func TestGetOrFetch_ConcurrentCallersShareOneFetch(t *testing.T) {
	c := NewWebSearchCache(10 * time.Minute)
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) ([]datatypes.WebSearchHit, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sampleHits("shared"), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetOrFetch(context.Background(), "key", fetch)
		}(i)
	}

	// Let every worker reach the flight before the fetch completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent callers must share a single fetch")
}

func TestGetOrFetch_ErrorIsNotCached(t *testing.T) {
	c := NewWebSearchCache(10 * time.Minute)
	var calls int32

	fetch := func(ctx context.Context) ([]datatypes.WebSearchHit, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, fmt.Errorf("provider down")
		}
		return sampleHits("recovered"), nil
	}

	_, err := c.GetOrFetch(context.Background(), "key", fetch)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len(), "failed fetch must not poison the cache")

	hits, err := c.GetOrFetch(context.Background(), "key", fetch)
	require.NoError(t, err)
	assert.Equal(t, "recovered", hits[0].Title)
}

func TestDeriveQueries_CoversAllAxes(t *testing.T) {
	queries := deriveQueries(datatypes.PlanConstraints{
		SpecialtyAccess: "cardiology",
		GeographicScope: "franklin county, oh",
	})
	require.Len(t, queries, 3)
	for _, q := range queries {
		assert.Contains(t, q, "cardiology")
		assert.Contains(t, q, "franklin county, oh")
	}
}
