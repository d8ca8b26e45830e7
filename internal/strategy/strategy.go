// Package strategy implements the extraction algorithms that locate a window's
// points within a decoder stream. All strategies share one contract and are
// tried by the orchestrator in fixed priority order: NativeConstraint, then
// AdaptiveLocate, then FullScan. Each is progressively more expensive but more
// certain to succeed regardless of stream characteristics.
package strategy

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/gridstream"
	"github.com/sells-group/mrms-extract/internal/model"
	"github.com/sells-group/mrms-extract/internal/window"
)

// Strategy is one algorithm for extracting a window's points from a stream.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, f decoder.Factory, win model.Window, budget model.Budget) model.Outcome
}

// deadlineCheckEvery controls how often the consumer loop pays for a
// time.Now() call.
const deadlineCheckEvery = 512

// consumeResult is what one linear consumption pass produced.
type consumeResult struct {
	points    []model.PointRecord
	status    model.Status
	reason    string
	ordered   bool // latitude-descending, verified over the consumed prefix
	conv      model.Convention
	exhausted bool // a budget ceiling was hit
}

// consume runs the shared linear scan: sample the leading records to pin the
// longitude convention, normalize the window, then stream membership tests
// with early termination once latitude ordering is established and the stream
// has moved strictly south of the window.
func consume(ctx context.Context, r *gridstream.Reader, win model.Window, deadline time.Time) consumeResult {
	var sample []model.PointRecord

	for len(sample) < window.SampleSize {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return consumeOnError(err, nil)
		}
		sample = append(sample, p)
	}

	conv := window.DetectConvention(sample)
	bounds := window.Normalize(win, conv)

	res := consumeResult{status: model.StatusSuccess, conv: conv}

	// Ordering is verified continuously rather than from a fixed prefix. A
	// raster emits thousands of points per constant-latitude row, so any
	// bounded sample can be flat even on a perfectly ordered stream.
	var ord orderTracker

	match := func(p model.PointRecord) bool {
		if !bounds.Contains(p.Lat, p.Lon) {
			return false
		}
		res.points = append(res.points, window.ToSigned180(p))
		return true
	}

	for _, p := range sample {
		ord.observe(p.Lat)
		match(p)
	}

	var sinceCheck int
	for {
		p, err := r.Next()
		if err == io.EOF {
			res.ordered = ord.descending()
			return res
		}
		if err != nil {
			out := consumeOnError(err, res.points)
			out.ordered = ord.descending()
			out.conv = conv
			return out
		}

		ord.observe(p.Lat)
		match(p)

		// The dominant real-world speedup: a descending stream strictly south
		// of the window has nothing left for us.
		if p.Lat < win.South && ord.descending() {
			res.ordered = true
			return res
		}

		sinceCheck++
		if sinceCheck >= deadlineCheckEvery {
			sinceCheck = 0
			if ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline)) {
				res.status = model.StatusPartialTimeout
				res.reason = model.ErrBudgetExceeded.Error()
				res.exhausted = true
				res.ordered = ord.descending()
				return res
			}
		}
	}
}

func consumeOnError(err error, points []model.PointRecord) consumeResult {
	if eris.Is(err, model.ErrBudgetExceeded) {
		return consumeResult{
			points:    points,
			status:    model.StatusPartialTimeout,
			reason:    model.ErrBudgetExceeded.Error(),
			exhausted: true,
		}
	}
	return consumeResult{
		points: points,
		status: model.StatusFailed,
		reason: err.Error(),
	}
}

// orderTracker watches latitudes as they stream past. Equal latitudes are
// allowed (a grid emits whole rows at one latitude); the stream counts as
// descending once a strict drop was seen with no increase anywhere before the
// current point.
type orderTracker struct {
	started  bool
	prevLat  float64
	dropSeen bool
	violated bool
}

func (t *orderTracker) observe(lat float64) {
	if !t.started {
		t.started = true
		t.prevLat = lat
		return
	}
	switch {
	case lat < t.prevLat:
		t.dropSeen = true
	case lat > t.prevLat:
		t.violated = true
	}
	t.prevLat = lat
}

func (t *orderTracker) descending() bool { return t.dropSeen && !t.violated }

// deadlineFor converts a wall-clock budget into an absolute deadline.
func deadlineFor(budget model.Budget, start time.Time) time.Time {
	if budget.MaxWallClock <= 0 {
		return time.Time{}
	}
	return start.Add(budget.MaxWallClock)
}

func failed(name, reason string, stats model.Stats) model.Outcome {
	stats.Strategy = name
	return model.Outcome{Status: model.StatusFailed, Reason: reason, Stats: stats}
}
