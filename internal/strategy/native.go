package strategy

import (
	"context"
	"time"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/gridstream"
	"github.com/sells-group/mrms-extract/internal/model"
)

// NativeConstraint delegates spatial filtering to the decoder itself when the
// factory supports it (wgrib2 -undefine out-box). Output is still run through
// the window normalizer: native constraints have been observed to silently
// no-op, and correctness beats trust.
type NativeConstraint struct{}

// NewNativeConstraint returns the native-predicate strategy.
func NewNativeConstraint() *NativeConstraint { return &NativeConstraint{} }

func (s *NativeConstraint) Name() string { return "native_constraint" }

// Attempt opens a pre-filtered stream and scans it defensively.
func (s *NativeConstraint) Attempt(ctx context.Context, f decoder.Factory, win model.Window, budget model.Budget) model.Outcome {
	start := time.Now()

	wf, ok := f.(decoder.WindowedFactory)
	if !ok {
		return failed(s.Name(), "decoder does not accept a spatial predicate", model.Stats{Elapsed: time.Since(start)})
	}

	h, err := wf.OpenWindow(ctx, win)
	if err != nil {
		return consumeErrOutcome(s.Name(), err, nil, model.Stats{Elapsed: time.Since(start)})
	}

	r := gridstream.NewReader(h, budget)
	defer r.Terminate()

	res := consume(ctx, r, win, deadlineFor(budget, start))

	return model.Outcome{
		Status: res.status,
		Points: res.points,
		Reason: res.reason,
		Stats: model.Stats{
			LinesScanned: r.LinesScanned(),
			Matched:      len(res.points),
			Malformed:    r.Malformed(),
			Elapsed:      time.Since(start),
			Strategy:     s.Name(),
		},
	}
}
