package strategy

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/gridstream"
	"github.com/sells-group/mrms-extract/internal/model"
)

// AdaptiveLocate exploits latitude ordering on a stream that cannot be seeked:
// cheap probe reads (spawn, discard to line N, inspect the latitude there)
// gallop and then binary-search for the window's first record, after which a
// single linear pass consumes from just before that point. Each probe burns a
// fresh producer, so this only wins when the window starts late in the
// stream, which it does for the typical CONUS-wide MRMS grid.
type AdaptiveLocate struct {
	probeBase int64 // first gallop step in lines
	coarse    int64 // bracket width at which probing stops paying for itself
}

// NewAdaptiveLocate returns the probing strategy with default tuning.
func NewAdaptiveLocate() *AdaptiveLocate {
	return &AdaptiveLocate{probeBase: 4096, coarse: 2048}
}

func (s *AdaptiveLocate) Name() string { return "adaptive_locate" }

// probeResult is one probe read's finding.
type probeResult struct {
	lat   float64
	atEOF bool  // the stream ended before line n
	end   int64 // lines available when atEOF
}

// Attempt locates the window via probes, then scans linearly from a safety
// margin before the located start.
func (s *AdaptiveLocate) Attempt(ctx context.Context, f decoder.Factory, win model.Window, budget model.Budget) model.Outcome {
	start := time.Now()
	deadline := deadlineFor(budget, start)

	// Probing needs headroom: a line budget smaller than a few gallop steps
	// is better spent on a direct scan.
	if budget.MaxLines > 0 && budget.MaxLines < 4*s.probeBase {
		return failed(s.Name(), "line budget too small for probing", model.Stats{Elapsed: time.Since(start)})
	}

	// linesUsed/bytesUsed are budget accounting (every line the producers
	// emitted); scanned is the telemetry stat (lines actually parsed).
	var linesUsed, bytesUsed, scanned int64
	remaining := func() model.Budget {
		rem := budget
		if rem.MaxLines > 0 {
			rem.MaxLines -= linesUsed
		}
		if rem.MaxBytes > 0 {
			rem.MaxBytes -= bytesUsed
		}
		return rem
	}
	outOfBudget := func() bool {
		if budget.MaxLines > 0 && linesUsed >= budget.MaxLines {
			return true
		}
		if budget.MaxBytes > 0 && bytesUsed >= budget.MaxBytes {
			return true
		}
		return !deadline.IsZero() && time.Now().After(deadline)
	}
	stats := func(matched int) model.Stats {
		return model.Stats{
			LinesScanned: scanned,
			Matched:      matched,
			Elapsed:      time.Since(start),
			Strategy:     s.Name(),
		}
	}
	partial := func() model.Outcome {
		return model.Outcome{
			Status: model.StatusPartialTimeout,
			Reason: model.ErrBudgetExceeded.Error(),
			Stats:  stats(0),
		}
	}

	probe := func(n int64) (probeResult, error) {
		h, err := f.Open(ctx)
		if err != nil {
			return probeResult{}, err
		}
		r := gridstream.NewReader(h, remaining())
		defer func() {
			linesUsed += r.LinesRead()
			bytesUsed += r.BytesRead()
			scanned += r.LinesScanned()
			r.Terminate()
		}()

		skipped, err := r.Skip(n)
		if err == io.EOF {
			return probeResult{atEOF: true, end: skipped}, nil
		}
		if err != nil {
			return probeResult{}, err
		}
		p, err := r.Next()
		if err == io.EOF {
			return probeResult{atEOF: true, end: skipped}, nil
		}
		if err != nil {
			return probeResult{}, err
		}
		return probeResult{lat: p.Lat}, nil
	}

	// Gallop until a probe lands at or past the window's north edge. Probe
	// latitudes must be non-increasing; anything else means the stream is not
	// latitude-ordered and this strategy does not apply.
	var (
		lo      int64 // last line known strictly north of the window
		hi      int64
		prevLat = 91.0
		found   bool
	)
	for n := s.probeBase; ; n *= 2 {
		if outOfBudget() {
			return partial()
		}
		pr, err := probe(n)
		if err != nil {
			return s.probeFailure(err, stats(0))
		}
		if pr.atEOF {
			// Stream ends before line n; the window start, if any, is in
			// (lo, end].
			hi = pr.end
			found = true
			break
		}
		if pr.lat > prevLat {
			return failed(s.Name(), "stream not latitude-ordered", stats(0))
		}
		prevLat = pr.lat
		if pr.lat <= win.North {
			hi = n
			found = true
			break
		}
		lo = n
	}
	if !found {
		return failed(s.Name(), "gallop did not converge", stats(0))
	}

	// Binary-search the bracket down to coarse width.
	for hi-lo > s.coarse {
		if outOfBudget() {
			return partial()
		}
		mid := lo + (hi-lo)/2
		pr, err := probe(mid)
		if err != nil {
			return s.probeFailure(err, stats(0))
		}
		if !pr.atEOF && pr.lat > win.North {
			lo = mid
		} else {
			hi = mid
		}
	}

	// Linear consumption from a 2x bracket-width safety margin before the
	// located start, then the same early-terminating scan as FullScan.
	startLine := lo - 2*(hi-lo)
	if startLine < 0 {
		startLine = 0
	}

	zap.L().Debug("adaptive locate: bracket resolved",
		zap.Int64("lo", lo),
		zap.Int64("hi", hi),
		zap.Int64("start_line", startLine),
		zap.Int64("probe_lines", linesUsed),
	)

	h, err := f.Open(ctx)
	if err != nil {
		return s.probeFailure(err, stats(0))
	}
	r := gridstream.NewReader(h, remaining())
	defer r.Terminate()

	if _, err := r.Skip(startLine); err != nil {
		linesUsed += r.LinesRead()
		if err == io.EOF {
			// Everything at or before the located start is north of the
			// window, so a shorter-than-expected stream holds no matches.
			return model.Outcome{Status: model.StatusSuccess, Stats: stats(0)}
		}
		return consumeErrOutcome(s.Name(), err, nil, stats(0))
	}

	res := consume(ctx, r, win, deadline)
	linesUsed += r.LinesRead()
	bytesUsed += r.BytesRead()
	scanned += r.LinesScanned()

	st := stats(len(res.points))
	st.Malformed = r.Malformed()
	return model.Outcome{
		Status: res.status,
		Points: res.points,
		Reason: res.reason,
		Stats:  st,
	}
}

// probeFailure classifies an error from a probe or stream open.
func (s *AdaptiveLocate) probeFailure(err error, st model.Stats) model.Outcome {
	return consumeErrOutcome(s.Name(), err, nil, st)
}

// consumeErrOutcome maps a raw stream error onto the outcome taxonomy.
func consumeErrOutcome(name string, err error, points []model.PointRecord, st model.Stats) model.Outcome {
	st.Strategy = name
	st.Matched = len(points)
	if eris.Is(err, model.ErrBudgetExceeded) {
		return model.Outcome{
			Status: model.StatusPartialTimeout,
			Points: points,
			Reason: model.ErrBudgetExceeded.Error(),
			Stats:  st,
		}
	}
	reason := err.Error()
	if eris.Is(err, model.ErrDecodeUnavailable) {
		reason = model.ErrDecodeUnavailable.Error()
	}
	return model.Outcome{Status: model.StatusFailed, Points: nil, Reason: reason, Stats: st}
}
