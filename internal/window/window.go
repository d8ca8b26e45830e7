// Package window canonicalizes bounding boxes against a stream's longitude
// convention and answers point-in-window membership.
//
// MRMS grids emit longitudes in 0..360 while callers almost always think in
// -180..180. The convention is inferred once per stream from a small sample
// and never changes mid-stream.
package window

import (
	"github.com/sells-group/mrms-extract/internal/model"
)

// SampleSize is how many leading points are inspected to classify a stream's
// longitude convention.
const SampleSize = 50

// DetectConvention classifies a sample of points. Any longitude above 180
// means the stream uses the 0..360 convention.
func DetectConvention(sample []model.PointRecord) model.Convention {
	for _, p := range sample {
		if p.Lon > 180 {
			return model.Unsigned360
		}
	}
	return model.Signed180
}

// lonSpan is one contiguous longitude interval in the stream's convention.
type lonSpan struct {
	west, east float64
}

func (s lonSpan) contains(lon float64) bool {
	return lon >= s.west && lon <= s.east
}

// Bounds is a window normalized to a stream's convention. A window whose
// west/east interval crosses the convention seam is held as two sub-intervals;
// membership is "inside either", never a naive west <= lon <= east.
type Bounds struct {
	South, North float64
	spans        []lonSpan
	conv         model.Convention
}

// Normalize converts the caller's window into the stream's convention.
func Normalize(win model.Window, conv model.Convention) Bounds {
	west := toConvention(win.West, conv)
	east := toConvention(win.East, conv)

	b := Bounds{South: win.South, North: win.North, conv: conv}
	if west <= east {
		b.spans = []lonSpan{{west, east}}
		return b
	}

	// The interval crosses the seam: split at the convention's wrap point.
	if conv == model.Unsigned360 {
		b.spans = []lonSpan{{west, 360}, {0, east}}
	} else {
		b.spans = []lonSpan{{west, 180}, {-180, east}}
	}
	return b
}

// Contains tests membership of a raw stream point against the normalized window.
func (b Bounds) Contains(lat, lon float64) bool {
	if lat < b.South || lat > b.North {
		return false
	}
	for _, s := range b.spans {
		if s.contains(lon) {
			return true
		}
	}
	return false
}

// toConvention maps a longitude into the given convention.
func toConvention(lon float64, conv model.Convention) float64 {
	if conv == model.Unsigned360 {
		if lon < 0 {
			return lon + 360
		}
		return lon
	}
	if lon > 180 {
		return lon - 360
	}
	return lon
}

// ToSigned180 rewrites a matched point into the -180..180 convention before it
// leaves the engine.
func ToSigned180(p model.PointRecord) model.PointRecord {
	if p.Lon > 180 {
		p.Lon -= 360
	}
	return p
}
