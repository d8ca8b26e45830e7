package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mrms-extract/internal/model"
)

func TestProcess_ThresholdFilter(t *testing.T) {
	points := []model.PointRecord{
		{Lat: 35.1, Lon: -97.1, Value: 10},
		{Lat: 35.2, Lon: -97.2, Value: 50},
		{Lat: 35.3, Lon: -97.3, Value: 49.99},
		{Lat: 35.4, Lon: -97.4, Value: 80},
	}

	out := Process(points, Options{MinValue: 50})

	require.Len(t, out, 2)
	assert.InDelta(t, 80, out[0].Value, 1e-9)
	assert.InDelta(t, 50, out[1].Value, 1e-9)
}

func TestProcess_UnitConversion(t *testing.T) {
	points := []model.PointRecord{{Lat: 35.1, Lon: -97.1, Value: 25.4}}

	out := Process(points, Options{ScaleFactor: MmToInches})

	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].Value, 1e-6, "25.4mm is one inch")
}

func TestProcess_DedupKeepsLargerValue(t *testing.T) {
	points := []model.PointRecord{
		{Lat: 35.10001, Lon: -97.10001, Value: 3},
		{Lat: 35.10002, Lon: -97.10002, Value: 7}, // same cell at 4 decimals
		{Lat: 35.2, Lon: -97.2, Value: 5},
	}

	out := Process(points, Options{})

	require.Len(t, out, 2)
	assert.InDelta(t, 7, out[0].Value, 1e-9)
	assert.InDelta(t, 5, out[1].Value, 1e-9)
}

func TestProcess_SortValueDescendingDeterministicTies(t *testing.T) {
	points := []model.PointRecord{
		{Lat: 35.1, Lon: -97.1, Value: 5},
		{Lat: 35.3, Lon: -97.3, Value: 5},
		{Lat: 35.2, Lon: -97.2, Value: 9},
	}

	out := Process(points, Options{})

	require.Len(t, out, 3)
	assert.InDelta(t, 9, out[0].Value, 1e-9)
	// Ties run north to south.
	assert.InDelta(t, 35.3, out[1].Lat, 1e-9)
	assert.InDelta(t, 35.1, out[2].Lat, 1e-9)
}

func TestProcess_EmptyAndNilSafe(t *testing.T) {
	assert.Empty(t, Process(nil, Options{MinValue: 1}))
	assert.Empty(t, Process([]model.PointRecord{}, Options{}))
}

func TestProcess_ThresholdAppliesBeforeConversion(t *testing.T) {
	// 30mm passes a 25mm threshold even though the converted value (1.18in)
	// would not.
	points := []model.PointRecord{{Lat: 35.1, Lon: -97.1, Value: 30}}

	out := Process(points, Options{MinValue: 25, ScaleFactor: MmToInches})

	require.Len(t, out, 1)
	assert.InDelta(t, 30*MmToInches, out[0].Value, 1e-9)
}
