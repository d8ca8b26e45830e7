// Package aggregate post-processes matched grid points: thresholding, unit
// conversion, coordinate dedup, and output ordering. Pure functions, no I/O;
// this is the seam where business thresholds are tested independently of
// extraction mechanics.
package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/mrms-extract/internal/model"
)

// MmToInches converts MRMS precipitation values (millimetres) to inches.
const MmToInches = 0.0393700787

// coordPrecision is the rounding grid for dedup: two points whose coordinates
// collide at 4 decimal places (roughly 11 m) are the same cell seen twice.
const coordPrecision = 1e4

// Options controls one aggregation pass.
type Options struct {
	// MinValue drops points below the threshold, applied before conversion
	// in the stream's native unit.
	MinValue float64
	// ScaleFactor multiplies every retained value; zero means no conversion.
	ScaleFactor float64
}

// Process filters, converts, deduplicates, and orders matched points.
// Dedup keeps the larger value for a rounded-coordinate collision. Output is
// sorted by value descending, ties broken north-to-south then west-to-east so
// results are deterministic.
func Process(points []model.PointRecord, opts Options) []model.PointRecord {
	type cell struct{ lat, lon int64 }
	best := make(map[cell]model.PointRecord, len(points))

	for _, p := range points {
		if p.Value < opts.MinValue {
			continue
		}
		c := cell{roundCoord(p.Lat), roundCoord(p.Lon)}
		if prev, ok := best[c]; ok && prev.Value >= p.Value {
			continue
		}
		best[c] = p
	}

	out := make([]model.PointRecord, 0, len(best))
	for _, p := range best {
		if opts.ScaleFactor != 0 {
			p.Value *= opts.ScaleFactor
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		if out[i].Lat != out[j].Lat {
			return out[i].Lat > out[j].Lat
		}
		return out[i].Lon < out[j].Lon
	})

	return out
}

func roundCoord(deg float64) int64 {
	return int64(math.Round(deg * coordPrecision))
}
