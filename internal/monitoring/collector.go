// Package monitoring aggregates the attempt log and result cache into health
// snapshots, evaluates them against alert thresholds, and pushes breaches to a
// webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrms-extract/internal/rescache"
	"github.com/sells-group/mrms-extract/internal/store"
)

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	// Attempt metrics (within lookback window).
	AttemptsTotal   int64   `json:"attempts_total"`
	Successes       int64   `json:"successes"`
	Partials        int64   `json:"partials"`
	Failures        int64   `json:"failures"`
	FailureRate     float64 `json:"failure_rate"`
	FullScanShare   float64 `json:"full_scan_share"`
	AvgLinesScanned float64 `json:"avg_lines_scanned"`

	// Per-strategy breakdown.
	Strategies []store.StrategySummary `json:"strategies"`

	// Result cache.
	CacheEntries int     `json:"cache_entries"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the attempt log and the result cache.
type Collector struct {
	store store.Store
	cache *rescache.Cache
}

// NewCollector creates a new metrics collector. cache may be nil when the
// caller only wants attempt-log metrics.
func NewCollector(st store.Store, cache *rescache.Cache) *Collector {
	return &Collector{store: st, cache: cache}
}

// Collect gathers a snapshot of extraction metrics over the given lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	summaries, err := c.store.SummarizeAttempts(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: summarize attempts")
	}
	snap.Strategies = summaries

	var weightedLines float64
	var fullScans int64
	for _, s := range summaries {
		snap.AttemptsTotal += s.Attempts
		snap.Successes += s.Successes
		snap.Partials += s.Partials
		snap.Failures += s.Failures
		weightedLines += s.AvgLinesScanned * float64(s.Attempts)
		if s.Strategy == "full_scan" {
			fullScans = s.Attempts
		}
	}

	if snap.AttemptsTotal > 0 {
		snap.FailureRate = float64(snap.Failures) / float64(snap.AttemptsTotal)
		snap.FullScanShare = float64(fullScans) / float64(snap.AttemptsTotal)
		snap.AvgLinesScanned = weightedLines / float64(snap.AttemptsTotal)
	}

	if c.cache != nil {
		cs := c.cache.Stats()
		snap.CacheEntries = cs.Entries
		snap.CacheHitRate = cs.HitRate
		snap.CacheHits = cs.Hits
		snap.CacheMisses = cs.Misses
	}

	return snap, nil
}
