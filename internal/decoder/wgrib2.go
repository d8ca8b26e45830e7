package decoder

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/model"
)

// Wgrib2 starts wgrib2 runs against a local GRIB2 file. The decoder emits CSV
// rows on stdout whose final three fields are lon, lat, value.
type Wgrib2 struct {
	binPath  string
	gribPath string
}

// NewWgrib2 creates a factory for the given GRIB2 file. If binPath is empty,
// "wgrib2" is used.
func NewWgrib2(binPath, gribPath string) *Wgrib2 {
	if binPath == "" {
		binPath = "wgrib2"
	}
	return &Wgrib2{binPath: binPath, gribPath: gribPath}
}

// Open starts a full-grid decode.
func (w *Wgrib2) Open(ctx context.Context) (Handle, error) {
	return w.start(ctx, w.binPath, w.gribPath, "-csv", "-")
}

// OpenWindow pushes the spatial predicate into wgrib2 via -undefine out-box,
// which blanks every point outside the box so it never reaches the CSV output.
// wgrib2 wants the box in grid (0..360) longitudes.
func (w *Wgrib2) OpenWindow(ctx context.Context, win model.Window) (Handle, error) {
	west, east := win.West, win.East
	if west < 0 {
		west += 360
	}
	if east < 0 {
		east += 360
	}
	box := fmt.Sprintf("%.6f:%.6f %.6f:%.6f", west, east, win.South, win.North)
	return w.start(ctx, w.binPath, w.gribPath, "-undefine", "out-box", box, "-csv", "-")
}

func (w *Wgrib2) start(ctx context.Context, bin string, args ...string) (Handle, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, eris.Wrap(err, "decoder: stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, eris.Wrapf(model.ErrDecodeUnavailable, "decoder: start %s: %v", bin, err)
	}

	zap.L().Debug("decoder: wgrib2 started",
		zap.String("grib", w.gribPath),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &processHandle{cmd: cmd, stdout: stdout}, nil
}

// processHandle wraps a running decoder process. Kill is idempotent and always
// reaps the child so no zombie is left behind.
type processHandle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	killOnce sync.Once
	killErr  error
}

func (h *processHandle) Read(p []byte) (int, error) {
	return h.stdout.Read(p)
}

func (h *processHandle) Kill() error {
	h.killOnce.Do(func() {
		_ = h.stdout.Close()
		if h.cmd.Process != nil {
			if err := h.cmd.Process.Kill(); err != nil {
				h.killErr = eris.Wrap(err, "decoder: kill")
			}
		}
		// Reap regardless; the exit error after a kill is expected.
		_ = h.cmd.Wait()
	})
	return h.killErr
}
