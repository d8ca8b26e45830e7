package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestSourceID(t *testing.T) {
	a := SourceID("https://mrms.ncep.noaa.gov/latest.grib2.gz", `"v1"`)
	b := SourceID("https://mrms.ncep.noaa.gov/latest.grib2.gz", `"v1"`)
	c := SourceID("https://mrms.ncep.noaa.gov/latest.grib2.gz", `"v2"`)

	assert.Equal(t, a, b, "same snapshot, same identity")
	assert.NotEqual(t, a, c, "rotated content is a new source")
	assert.Len(t, a, 24)
}

func TestAcquirer_MaterializeGzip(t *testing.T) {
	payload := []byte("GRIB2 binary payload here")
	gz := gzipped(t, payload)
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"snap-1"`)
		if r.Method == http.MethodHead {
			return
		}
		gets.Add(1)
		_, _ = w.Write(gz)
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := NewAcquirer(dir, NewHTTPFetcher(HTTPOptions{}), nil)

	path, sourceID, err := a.Materialize(context.Background(), srv.URL+"/latest.grib2.gz")
	require.NoError(t, err)
	assert.NotEmpty(t, sourceID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data, "archive lands decompressed")

	// A second materialization of the same snapshot is a local stat, not a
	// second download.
	path2, sourceID2, err := a.Materialize(context.Background(), srv.URL+"/latest.grib2.gz")
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.Equal(t, sourceID, sourceID2)
	assert.Equal(t, int32(1), gets.Load())
}

func TestAcquirer_MaterializeUncompressed(t *testing.T) {
	payload := []byte("plain grib2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	a := NewAcquirer(t.TempDir(), NewHTTPFetcher(HTTPOptions{}), nil)

	path, _, err := a.Materialize(context.Background(), srv.URL+"/archive.grib2")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestAcquirer_UnsupportedScheme(t *testing.T) {
	a := NewAcquirer(t.TempDir(), NewHTTPFetcher(HTTPOptions{}), nil)

	_, _, err := a.Materialize(context.Background(), "gopher://example.com/file.grib2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestAcquirer_FTPWithoutFetcherConfigured(t *testing.T) {
	a := NewAcquirer(t.TempDir(), NewHTTPFetcher(HTTPOptions{}), nil)

	_, _, err := a.Materialize(context.Background(), "ftp://tgftp.nws.noaa.gov/mrms/latest.grib2.gz")
	require.Error(t, err)
}
