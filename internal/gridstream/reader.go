// Package gridstream consumes the external decoder's newline-delimited output
// as a lazy, finite, non-restartable sequence of grid points. The full stream
// is never materialized; a 30M-point decode costs one line of buffer.
package gridstream

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/model"
)

// maxLineBytes bounds a single record line. wgrib2 CSV rows are well under 1KB;
// anything bigger is a runaway line, not a record.
const maxLineBytes = 64 * 1024

// Reader turns a decoder handle into point records while enforcing the active
// budget's line and byte ceilings. Not safe for concurrent use; each strategy
// attempt owns exactly one consumer loop.
type Reader struct {
	handle  decoder.Handle
	scanner *bufio.Scanner
	counter *countingReader
	budget  model.Budget

	lines     int64
	discarded int64
	malformed int64
	headerCut bool

	termOnce sync.Once
}

// NewReader wraps a decoder handle under the given budget. Zero budget fields
// are unlimited.
func NewReader(h decoder.Handle, budget model.Budget) *Reader {
	c := &countingReader{r: h}
	s := bufio.NewScanner(c)
	s.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Reader{handle: h, scanner: s, counter: c, budget: budget}
}

// Next returns the next well-formed record. It returns io.EOF when the
// producer is done and model.ErrBudgetExceeded when a ceiling is crossed.
func (r *Reader) Next() (model.PointRecord, error) {
	for {
		if r.budget.MaxLines > 0 && r.lines >= r.budget.MaxLines {
			return model.PointRecord{}, model.ErrBudgetExceeded
		}
		if r.budget.MaxBytes > 0 && r.counter.n >= r.budget.MaxBytes {
			return model.PointRecord{}, model.ErrBudgetExceeded
		}

		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return model.PointRecord{}, err
			}
			return model.PointRecord{}, io.EOF
		}
		r.lines++

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		p, ok := parseRecord(line)
		if ok {
			r.headerCut = true
			return p, nil
		}

		// The first unparseable line is the decoder's header, discarded once.
		// Everything after that is a malformed record: counted, never fatal.
		if !r.headerCut {
			r.headerCut = true
			continue
		}
		r.malformed++
	}
}

// Skip discards up to n raw lines without parsing them. This is what makes
// probe reads cheap: discarded lines still count against the budget ceilings
// but cost no field parsing and are excluded from the scanned-lines stat.
// Returns the number actually discarded before EOF or a budget ceiling.
func (r *Reader) Skip(n int64) (int64, error) {
	var skipped int64
	for skipped < n {
		if r.budget.MaxLines > 0 && r.lines >= r.budget.MaxLines {
			return skipped, model.ErrBudgetExceeded
		}
		if r.budget.MaxBytes > 0 && r.counter.n >= r.budget.MaxBytes {
			return skipped, model.ErrBudgetExceeded
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return skipped, err
			}
			return skipped, io.EOF
		}
		r.lines++
		r.discarded++
		skipped++
		// The header can only ever be the stream's first line, so any skip
		// consumes it.
		r.headerCut = true
	}
	return skipped, nil
}

// LinesRead returns every line consumed so far, discarded or parsed. This is
// the budget-accounting basis.
func (r *Reader) LinesRead() int64 { return r.lines }

// LinesScanned returns the lines actually parsed (read minus raw discards).
func (r *Reader) LinesScanned() int64 { return r.lines - r.discarded }

// BytesRead returns the number of producer bytes consumed so far.
func (r *Reader) BytesRead() int64 { return r.counter.n }

// Malformed returns the count of skipped malformed lines.
func (r *Reader) Malformed() int64 { return r.malformed }

// Terminate kills the underlying producer and releases its pipes. It is
// idempotent and must be called on every exit path, early or not.
func (r *Reader) Terminate() {
	r.termOnce.Do(func() {
		if err := r.handle.Kill(); err != nil {
			zap.L().Warn("gridstream: producer kill failed", zap.Error(err))
		}
	})
}

// parseRecord extracts (lat, lon, value) from one decoder line. wgrib2 -csv
// rows carry metadata fields first; the final three fields are lon, lat, value.
func parseRecord(line string) (model.PointRecord, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return model.PointRecord{}, false
	}

	lon, err1 := parseField(fields[len(fields)-3])
	lat, err2 := parseField(fields[len(fields)-2])
	val, err3 := parseField(fields[len(fields)-1])
	if err1 != nil || err2 != nil || err3 != nil {
		return model.PointRecord{}, false
	}
	if !finite(lat) || !finite(lon) || !finite(val) {
		return model.PointRecord{}, false
	}

	return model.PointRecord{Lat: lat, Lon: lon, Value: val}, true
}

func parseField(s string) (float64, error) {
	return strconv.ParseFloat(strings.Trim(strings.TrimSpace(s), `"`), 64)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// countingReader tracks bytes pulled from the producer so byte ceilings apply
// to what was actually read, not what was parsed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
