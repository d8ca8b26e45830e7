package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrms-extract/internal/model"
	"github.com/sells-group/mrms-extract/internal/rescache"
	"github.com/sells-group/mrms-extract/internal/store"
)

// fakeStore serves canned summaries; only SummarizeAttempts matters here.
type fakeStore struct {
	summaries []store.StrategySummary
	err       error
}

func (f *fakeStore) RecordAttempt(context.Context, *store.Attempt) error { return nil }
func (f *fakeStore) RecordAttemptBatch(context.Context, []store.Attempt) (int64, error) {
	return 0, nil
}
func (f *fakeStore) ListAttempts(context.Context, store.AttemptFilter) ([]store.Attempt, error) {
	return nil, nil
}
func (f *fakeStore) SummarizeAttempts(context.Context, time.Time) ([]store.StrategySummary, error) {
	return f.summaries, f.err
}
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

func TestCollector_AggregatesStrategies(t *testing.T) {
	st := &fakeStore{summaries: []store.StrategySummary{
		{Strategy: "adaptive_locate", Attempts: 60, Successes: 55, Partials: 2, Failures: 3, AvgLinesScanned: 20000},
		{Strategy: "full_scan", Attempts: 40, Successes: 30, Partials: 5, Failures: 5, AvgLinesScanned: 500000},
	}}

	c := NewCollector(st, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, int64(100), snap.AttemptsTotal)
	assert.Equal(t, int64(85), snap.Successes)
	assert.Equal(t, int64(7), snap.Partials)
	assert.Equal(t, int64(8), snap.Failures)
	assert.InDelta(t, 0.08, snap.FailureRate, 1e-9)
	assert.InDelta(t, 0.4, snap.FullScanShare, 1e-9)
	assert.InDelta(t, 212000, snap.AvgLinesScanned, 1e-6)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Len(t, snap.Strategies, 2)
}

func TestCollector_IncludesCacheStats(t *testing.T) {
	cache := rescache.New(time.Minute, time.Second)
	cache.Get(context.Background(), "k", func(context.Context) model.Outcome {
		return model.Outcome{Status: model.StatusSuccess}
	})
	cache.Get(context.Background(), "k", func(context.Context) model.Outcome {
		return model.Outcome{Status: model.StatusSuccess}
	})

	c := NewCollector(&fakeStore{}, cache)
	snap, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.CacheEntries)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, int64(1), snap.CacheMisses)
	assert.InDelta(t, 0.5, snap.CacheHitRate, 1e-9)
}

func TestCollector_EmptyWindow(t *testing.T) {
	c := NewCollector(&fakeStore{}, nil)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Zero(t, snap.AttemptsTotal)
	assert.Zero(t, snap.FailureRate)
	assert.Zero(t, snap.FullScanShare)
}

func TestCollector_StoreError(t *testing.T) {
	c := NewCollector(&fakeStore{err: eris.New("db gone")}, nil)
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize attempts")
}
