package strategy

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/gridstream"
	"github.com/sells-group/mrms-extract/internal/model"
)

// FullScan reads every record and tests membership. Slowest, but succeeds on
// any stream the decoder can produce, so it anchors the fallback chain.
type FullScan struct{}

// NewFullScan returns the full-scan strategy.
func NewFullScan() *FullScan { return &FullScan{} }

func (s *FullScan) Name() string { return "full_scan" }

// Attempt scans the whole stream under the given budget.
func (s *FullScan) Attempt(ctx context.Context, f decoder.Factory, win model.Window, budget model.Budget) model.Outcome {
	start := time.Now()

	h, err := f.Open(ctx)
	if err != nil {
		reason := "open stream: " + err.Error()
		if eris.Is(err, model.ErrDecodeUnavailable) {
			reason = model.ErrDecodeUnavailable.Error()
		}
		return failed(s.Name(), reason, model.Stats{Elapsed: time.Since(start)})
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
