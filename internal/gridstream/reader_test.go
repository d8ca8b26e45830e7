package gridstream

import (
	"io"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrms-extract/internal/model"
)

// fakeHandle serves canned decoder output in fixed-size chunks so line
// boundaries fall mid-read, the way a real pipe behaves.
type fakeHandle struct {
	r         io.Reader
	chunkSize int
	killed    int
}

func newFakeHandle(data string, chunkSize int) *fakeHandle {
	return &fakeHandle{r: strings.NewReader(data), chunkSize: chunkSize}
}

func (f *fakeHandle) Read(p []byte) (int, error) {
	if f.chunkSize > 0 && len(p) > f.chunkSize {
		p = p[:f.chunkSize]
	}
	return f.r.Read(p)
}

func (f *fakeHandle) Kill() error {
	f.killed++
	return nil
}

func TestReader_ParsesTrailingTripleOfCSVRow(t *testing.T) {
	// wgrib2 -csv rows carry metadata columns before lon,lat,value.
	data := `"2026-08-22 12:00","2026-08-22 12:02","PrecipRate","surface",262.5,35.4,2.5` + "\n"

	r := NewReader(newFakeHandle(data, 0), model.Budget{})
	defer r.Terminate()

	p, err := r.Next()
	require.NoError(t, err)
	assert.InDelta(t, 35.4, p.Lat, 1e-9)
	assert.InDelta(t, 262.5, p.Lon, 1e-9)
	assert.InDelta(t, 2.5, p.Value, 1e-9)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_HeaderDiscardedOnce(t *testing.T) {
	data := "lon,lat,value\n262.5,35.4,1.0\n262.5,35.3,2.0\n"

	r := NewReader(newFakeHandle(data, 0), model.Budget{})
	defer r.Terminate()

	p, err := r.Next()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.Value, 1e-9)
	assert.Zero(t, r.Malformed(), "header must not count as malformed")

	p, err = r.Next()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, p.Value, 1e-9)
}

func TestReader_ChunkBoundaryMidLine(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("lon,lat,value\n")
	for i := 0; i < 100; i++ {
		sb.WriteString("262.500000,35.400000,12.345678\n")
	}

	// 7-byte reads guarantee nearly every line straddles a chunk boundary.
	r := NewReader(newFakeHandle(sb.String(), 7), model.Budget{})
	defer r.Terminate()

	var count int
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.InDelta(t, 12.345678, p.Value, 1e-9)
		count++
	}
	assert.Equal(t, 100, count)
	assert.Zero(t, r.Malformed())
}

func TestReader_MalformedLinesCountedAndSkipped(t *testing.T) {
	data := strings.Join([]string{
		"262.5,35.4,1.0",
		"garbage line",
		"262.5,35.3",         // wrong field count
		"262.5,35.2,NaN",     // non-finite
		"262.5,abc,2.0",      // non-numeric
		"262.5,35.1,3.0",
	}, "\n") + "\n"

	r := NewReader(newFakeHandle(data, 0), model.Budget{})
	defer r.Terminate()

	var values []float64
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		values = append(values, p.Value)
	}

	assert.Equal(t, []float64{1.0, 3.0}, values)
	assert.Equal(t, int64(4), r.Malformed())
}

func TestReader_LineBudgetExceeded(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("262.5,35.4,1.0\n")
	}

	r := NewReader(newFakeHandle(sb.String(), 0), model.Budget{MaxLines: 10})
	defer r.Terminate()

	var n int64
	for {
		_, err := r.Next()
		if err != nil {
			require.True(t, eris.Is(err, model.ErrBudgetExceeded))
			break
		}
		n++
	}
	assert.Equal(t, int64(10), n)
	assert.Equal(t, int64(10), r.LinesScanned())
}

func TestReader_ByteBudgetExceeded(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString("262.5,35.4,1.0\n")
	}

	r := NewReader(newFakeHandle(sb.String(), 0), model.Budget{MaxBytes: 64})
	defer r.Terminate()

	for {
		_, err := r.Next()
		if err != nil {
			require.True(t, eris.Is(err, model.ErrBudgetExceeded))
			break
		}
	}
	// The reader may overshoot by at most one internal buffer, never the
	// whole stream.
	assert.Less(t, r.BytesRead(), int64(sb.Len()))
}

func TestReader_Skip(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("lon,lat,value\n")
	for i := 0; i < 50; i++ {
		sb.WriteString("262.5,35.4,1.0\n")
	}

	r := NewReader(newFakeHandle(sb.String(), 0), model.Budget{})
	defer r.Terminate()

	// Raw skip counts lines, header included, without parsing.
	skipped, err := r.Skip(21)
	require.NoError(t, err)
	assert.Equal(t, int64(21), skipped)
	assert.Equal(t, int64(21), r.LinesRead())
	assert.Zero(t, r.LinesScanned(), "skipped lines are not scanned")

	// EOF mid-skip reports how far it got.
	skipped, err = r.Skip(100)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int64(30), skipped)
}

func TestReader_SkipRespectsLineBudget(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("262.5,35.4,1.0\n")
	}

	r := NewReader(newFakeHandle(sb.String(), 0), model.Budget{MaxLines: 25})
	defer r.Terminate()

	skipped, err := r.Skip(50)
	require.True(t, eris.Is(err, model.ErrBudgetExceeded))
	assert.Equal(t, int64(25), skipped)
}

func TestReader_TerminateIdempotent(t *testing.T) {
	h := newFakeHandle("262.5,35.4,1.0\n", 0)
	r := NewReader(h, model.Budget{})

	r.Terminate()
	r.Terminate()
	assert.Equal(t, 1, h.killed, "kill must fire exactly once")
}
