package decoder

import (
	"context"
	"io"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrms-extract/internal/model"
)

func TestWgrib2_StartFailureIsDecodeUnavailable(t *testing.T) {
	f := NewWgrib2("/nonexistent/wgrib2-binary", "/tmp/nope.grib2")

	_, err := f.Open(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrDecodeUnavailable))
}

func TestWgrib2_OpenReadsStdout(t *testing.T) {
	// Use a shell stand-in for wgrib2 so the handle plumbing is exercised
	// without the real binary.
	f := NewWgrib2("echo", "header\n1,2,3")

	h, err := f.Open(context.Background())
	require.NoError(t, err)
	defer h.Kill()

	out, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Contains(t, string(out), "header")
}

func TestProcessHandle_KillIdempotent(t *testing.T) {
	f := NewWgrib2("sleep", "60")

	h, err := f.Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.Kill())
	// Second kill must not panic or re-kill.
	require.NoError(t, h.Kill())
}

func TestWgrib2_DefaultBinPath(t *testing.T) {
	f := NewWgrib2("", "/data/mrms.grib2")
	assert.Equal(t, "wgrib2", f.binPath)
}
