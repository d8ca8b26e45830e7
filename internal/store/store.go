// Package store persists the extraction attempt log. Every strategy attempt,
// successful or not, becomes one row, which is what the stats endpoints and
// the monitoring collector aggregate over.
package store

import (
	"context"
	"time"

	"github.com/sells-group/mrms-extract/internal/model"
)

// Attempt is one recorded strategy attempt.
type Attempt struct {
	ID           string        `json:"id"`
	SourceID     string        `json:"source_id"`
	Strategy     string        `json:"strategy"`
	Status       string        `json:"status"`
	LinesScanned int64         `json:"lines_scanned"`
	Matched      int           `json:"matched"`
	Malformed    int64         `json:"malformed"`
	Elapsed      time.Duration `json:"elapsed"`
	FailReason   string        `json:"fail_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// AttemptFilter specifies criteria for listing attempts.
type AttemptFilter struct {
	SourceID string `json:"source_id,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Status   string `json:"status,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// StrategySummary aggregates the attempt log per strategy.
type StrategySummary struct {
	Strategy        string  `json:"strategy"`
	Attempts        int64   `json:"attempts"`
	Successes       int64   `json:"successes"`
	Partials        int64   `json:"partials"`
	Failures        int64   `json:"failures"`
	AvgLinesScanned float64 `json:"avg_lines_scanned"`
	AvgElapsedMs    float64 `json:"avg_elapsed_ms"`
}

// Store defines the persistence interface for the attempt log.
type Store interface {
	// RecordAttempt inserts one attempt, assigning ID and CreatedAt.
	RecordAttempt(ctx context.Context, a *Attempt) error

	// RecordAttemptBatch inserts many attempts at once. Returns rows written.
	RecordAttemptBatch(ctx context.Context, attempts []Attempt) (int64, error)

	// ListAttempts returns attempts matching the filter, newest first.
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)

	// SummarizeAttempts aggregates attempts recorded since the given time.
	SummarizeAttempts(ctx context.Context, since time.Time) ([]StrategySummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// AttemptHook adapts a Store into the engine's telemetry hook. Write errors
// are swallowed after logging; losing a telemetry row must never fail an
// extraction.
func AttemptHook(s Store, logErr func(error)) func(sourceID, strategyName string, status model.Status, stats model.Stats, failReason string) {
	return func(sourceID, strategyName string, status model.Status, stats model.Stats, failReason string) {
		a := &Attempt{
			SourceID:     sourceID,
			Strategy:     strategyName,
			Status:       string(status),
			LinesScanned: stats.LinesScanned,
			Matched:      stats.Matched,
			Malformed:    stats.Malformed,
			Elapsed:      stats.Elapsed,
			FailReason:   failReason,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.RecordAttempt(ctx, a); err != nil && logErr != nil {
			logErr(err)
		}
	}
}
