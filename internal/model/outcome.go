package model

import "github.com/rotisserie/eris"

// Status tags an extraction outcome.
type Status string

const (
	// StatusSuccess means a strategy completed its scan. An empty match set
	// is still a success; "found nothing" is never conflated with "gave up".
	StatusSuccess Status = "success"
	// StatusPartialTimeout means the budget ran out mid-scan; Points holds
	// whatever matched before the ceiling.
	StatusPartialTimeout Status = "partial_timeout"
	// StatusFailed means no strategy completed a scan.
	StatusFailed Status = "failed"
)

// Outcome is the tagged result of one extraction request.
type Outcome struct {
	Status Status        `json:"status"`
	Points []PointRecord `json:"points"`
	Stats  Stats         `json:"stats"`
	Reason string        `json:"reason,omitempty"`
}

// Cacheable reports whether the outcome may be stored in the result cache.
// Failures are never cached so transient producer errors self-heal on retry.
func (o Outcome) Cacheable() bool {
	return o.Status == StatusSuccess || o.Status == StatusPartialTimeout
}

// Sentinel errors for the extraction taxonomy.
var (
	// ErrDecodeUnavailable: the producer failed to start or exited nonzero.
	ErrDecodeUnavailable = eris.New("decoder unavailable")
	// ErrBudgetExceeded: a soft ceiling was crossed; downgraded to PartialTimeout.
	ErrBudgetExceeded = eris.New("extraction budget exceeded")
	// ErrAllStrategiesExhausted: every strategy errored or ran out of budget
	// with none completing a scan.
	ErrAllStrategiesExhausted = eris.New("all extraction strategies exhausted")
)
