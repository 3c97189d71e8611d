// Copyright (C) 2026 Insurance Navigator contributors
// Tests for the buffer drain loop

package buffer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/datatypes"
	"github.com/andrew-quintana/insurance-navigator-sub011/services/navigator/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// One metrics instance per test binary; the collectors register globally.
var testMetrics = observability.NewPipelineMetrics()

// fakeCommitter scripts per-hash commit outcomes.
type fakeCommitter struct {
	mu       sync.Mutex
	failures map[string]int // remaining failures per hash
	commits  []string
}

func (f *fakeCommitter) Commit(ctx context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining := f.failures[entry.ContentHash]; remaining > 0 {
		f.failures[entry.ContentHash] = remaining - 1
		return fmt.Errorf("simulated commit failure for %s", entry.ContentHash)
	}
	f.commits = append(f.commits, entry.ContentHash)
	return nil
}

func (f *fakeCommitter) committed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commits...)
}

func TestDrainOnce_CommitsPendingEntries(t *testing.T) {
	buf := openTestBuffer(t)
	committer := &fakeCommitter{}
	p := NewProcessor(buf, committer, ProcessorConfig{})

	for i := 0; i < 3; i++ {
		_, err := buf.Enqueue(testStrategy(fmt.Sprintf("hash-%d", i)), testPlan(), datatypes.ComplianceApproved)
		require.NoError(t, err)
	}

	committed := p.DrainOnce()
	assert.Equal(t, 3, committed)
	assert.Len(t, committer.committed(), 3)

	stats, err := buf.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 0, stats.Pending)
}

func TestDrainOnce_FailureSchedulesRetryThenSucceeds(t *testing.T) {
	buf := openTestBuffer(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	buf.now = func() time.Time { return now }

	committer := &fakeCommitter{failures: map[string]int{"hash-1": 1}}
	p := NewProcessor(buf, committer, ProcessorConfig{})

	_, err := buf.Enqueue(testStrategy("hash-1"), testPlan(), datatypes.ComplianceApproved)
	require.NoError(t, err)

	assert.Equal(t, 0, p.DrainOnce())

	entry, err := buf.Get("hash-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Equal(t, 1, entry.Attempts)

	// Advance past the backoff; the retry succeeds.
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, p.DrainOnce())

	entry, err = buf.Get("hash-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, entry.Status)
	assert.Equal(t, []string{"hash-1"}, committer.committed())
}

func TestDrainOnce_ExhaustedRetriesAbandon(t *testing.T) {
	buf := openTestBuffer(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	buf.now = func() time.Time { return now }

	committer := &fakeCommitter{failures: map[string]int{"hash-1": MaxAttempts + 1}}
	p := NewProcessor(buf, committer, ProcessorConfig{})

	_, err := buf.Enqueue(testStrategy("hash-1"), testPlan(), datatypes.ComplianceApproved)
	require.NoError(t, err)

	for i := 0; i < MaxAttempts; i++ {
		assert.Equal(t, 0, p.DrainOnce())
		now = now.Add(time.Minute)
	}

	entry, err := buf.Get("hash-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAbandoned, entry.Status)

	// Further drains never touch it.
	assert.Equal(t, 0, p.DrainOnce())
	assert.Empty(t, committer.committed())
}

func TestDrainOnce_CountsCommitOutcomes(t *testing.T) {
	buf := openTestBuffer(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	buf.now = func() time.Time { return now }

	committed := testMetrics.BufferCommits.WithLabelValues("committed")
	retried := testMetrics.BufferCommits.WithLabelValues("retried")
	abandoned := testMetrics.BufferCommits.WithLabelValues("abandoned")
	committedBefore := testutil.ToFloat64(committed)
	retriedBefore := testutil.ToFloat64(retried)
	abandonedBefore := testutil.ToFloat64(abandoned)

	committer := &fakeCommitter{failures: map[string]int{
		"flaky": 1,
		"dead":  MaxAttempts,
	}}
	p := NewProcessor(buf, committer, ProcessorConfig{Metrics: testMetrics})

	for _, hash := range []string{"clean", "flaky", "dead"} {
		_, err := buf.Enqueue(testStrategy(hash), testPlan(), datatypes.ComplianceApproved)
		require.NoError(t, err)
	}

	for i := 0; i < MaxAttempts; i++ {
		p.DrainOnce()
		now = now.Add(time.Minute)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(committed)-committedBefore)
	assert.Equal(t, float64(3), testutil.ToFloat64(retried)-retriedBefore)
	assert.Equal(t, float64(1), testutil.ToFloat64(abandoned)-abandonedBefore)
}
