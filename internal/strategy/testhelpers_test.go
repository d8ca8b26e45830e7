package strategy

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/model"
	"github.com/sells-group/mrms-extract/internal/window"
)

// rowFunc produces the synthetic grid point for row i.
type rowFunc func(i int64) (lat, lon, val float64)

// genHandle lazily generates decoder CSV output so tests can model
// million-row or unbounded streams without materializing them.
type genHandle struct {
	rows   int64 // negative means unbounded
	row    rowFunc
	i      int64
	buf    []byte
	header bool
	killed *atomic.Int32
}

func (g *genHandle) Read(p []byte) (int, error) {
	for len(g.buf) == 0 {
		if !g.header {
			g.header = true
			g.buf = []byte("lon,lat,value\n")
			break
		}
		if g.rows >= 0 && g.i >= g.rows {
			return 0, io.EOF
		}
		lat, lon, val := g.row(g.i)
		g.i++
		g.buf = fmt.Appendf(g.buf, "%.6f,%.6f,%.6f\n", lon, lat, val)
	}
	n := copy(p, g.buf)
	g.buf = g.buf[n:]
	return n, nil
}

func (g *genHandle) Kill() error {
	if g.killed != nil {
		g.killed.Add(1)
	}
	return nil
}

// synthFactory is a decoder.Factory over a synthetic grid.
type synthFactory struct {
	rows  int64
	row   rowFunc
	opens atomic.Int32
	kills atomic.Int32
}

func (f *synthFactory) Open(_ context.Context) (decoder.Handle, error) {
	f.opens.Add(1)
	return &genHandle{rows: f.rows, row: f.row, killed: &f.kills}, nil
}

// windowedSynthFactory adds a native spatial predicate. With noop set it
// silently ignores the window, the failure mode NativeConstraint must survive.
type windowedSynthFactory struct {
	synthFactory
	noop        bool
	windowOpens atomic.Int32
}

func (f *windowedSynthFactory) OpenWindow(ctx context.Context, win model.Window) (decoder.Handle, error) {
	f.windowOpens.Add(1)
	if f.noop {
		return f.Open(ctx)
	}
	bounds := window.Normalize(win, model.Unsigned360)
	inner := f.row
	filtered := &filterHandle{
		gen:    genHandle{rows: f.rows, row: inner, killed: &f.kills},
		bounds: bounds,
	}
	return filtered, nil
}

// filterHandle emits only in-window rows, emulating wgrib2 -undefine out-box.
type filterHandle struct {
	gen    genHandle
	bounds window.Bounds
	buf    []byte
	header bool
}

func (f *filterHandle) Read(p []byte) (int, error) {
	for len(f.buf) == 0 {
		if !f.header {
			f.header = true
			f.buf = []byte("lon,lat,value\n")
			break
		}
		if f.gen.rows >= 0 && f.gen.i >= f.gen.rows {
			return 0, io.EOF
		}
		lat, lon, val := f.gen.row(f.gen.i)
		f.gen.i++
		if !f.bounds.Contains(lat, lon) {
			continue
		}
		f.buf = fmt.Appendf(f.buf, "%.6f,%.6f,%.6f\n", lon, lat, val)
	}
	n := copy(p, f.buf)
	f.buf = f.buf[n:]
	return n, nil
}

func (f *filterHandle) Kill() error { return f.gen.Kill() }

// rowGrid mimics the raster layout wgrib2 actually emits: cols points per
// constant-latitude row, latitude stepping down only between rows. Any
// bounded prefix of such a stream is flat.
func rowGrid(cols int64, latHi, latStep float64) rowFunc {
	return func(i int64) (float64, float64, float64) {
		lat := latHi - float64(i/cols)*latStep
		lon := 230.0 + float64(i%cols)*0.01
		val := float64(i % 77)
		return lat, lon, val
	}
}

// descendingGrid mimics an MRMS export: latitude descending linearly from
// latHi to latLo across rows, longitude cycling west to east.
func descendingGrid(rows int64, latHi, latLo float64) rowFunc {
	return func(i int64) (float64, float64, float64) {
		lat := latHi - (latHi-latLo)*float64(i)/float64(rows-1)
		lon := 230.0 + float64(i%1000)*0.1
		val := float64(i % 77)
		return lat, lon, val
	}
}
