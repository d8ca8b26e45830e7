//go:build !integration

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrms-extract/internal/config"
	"github.com/sells-group/mrms-extract/internal/monitoring"
	"github.com/sells-group/mrms-extract/internal/store"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()

	cfg = &config.Config{
		Monitoring: config.MonitoringConfig{LookbackWindowHours: 24},
	}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "attempts.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	return newMux(&env{Store: st}, monitoring.NewCollector(st, nil))
}

func TestMux_Health(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMux_Stats_EmptyLog(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"attempts_total":0`)
	assert.Contains(t, rec.Body.String(), `"lookback_hours":24`)
}

func TestMux_Precip_MissingSource(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/precip?bbox=-97.9,35,-97.5,36", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "source is required")
}

func TestMux_Precip_BadBBox(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/precip?source=/tmp/a.grib2&bbox=nope", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMux_Precip_BadMin(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/precip?source=/tmp/a.grib2&bbox=-97.9,35,-97.5,36&min=heavy", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "min must be numeric")
}

func TestMux_Precip_UnknownLocalSource(t *testing.T) {
	mux := newTestMux(t)

	rec := httptest.NewRecorder()
	missing := filepath.Join(t.TempDir(), "no-such.grib2")
	req := httptest.NewRequest(http.MethodGet, "/v1/precip?source="+missing+"&bbox=-97.9,35,-97.5,36", nil)
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "source unavailable")
}
