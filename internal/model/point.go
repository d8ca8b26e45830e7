// Package model holds the value types shared across the extraction engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// PointRecord is a single decoded grid point. Records are value-typed and
// transient: they are never retained beyond aggregation.
type PointRecord struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Value float64 `json:"value"`
}

// Window is a target geographic bounding box in degrees.
// South < North always; West/East are compared in canonical form only
// because the interval may cross a longitude-convention seam.
type Window struct {
	South float64 `json:"south"`
	North float64 `json:"north"`
	West  float64 `json:"west"`
	East  float64 `json:"east"`
}

// Validate checks the latitude invariant.
func (w Window) Validate() error {
	if w.South >= w.North {
		return eris.Errorf("model: window south %.4f must be below north %.4f", w.South, w.North)
	}
	return nil
}

// Convention identifies how a stream expresses longitudes.
type Convention int

const (
	// Signed180 is the -180..180 convention.
	Signed180 Convention = iota
	// Unsigned360 is the 0..360 convention used by MRMS grids.
	Unsigned360
)

func (c Convention) String() string {
	if c == Unsigned360 {
		return "unsigned360"
	}
	return "signed180"
}

// Budget is the combined ceiling governing one extraction attempt.
// Zero fields mean unlimited for that dimension.
type Budget struct {
	MaxWallClock time.Duration `json:"max_wall_clock"`
	MaxLines     int64         `json:"max_lines"`
	MaxBytes     int64         `json:"max_bytes"`
}

// Stats describes what one strategy attempt actually did.
type Stats struct {
	LinesScanned int64         `json:"lines_scanned"`
	Matched      int           `json:"matched"`
	Malformed    int64         `json:"malformed"`
	Elapsed      time.Duration `json:"elapsed"`
	Strategy     string        `json:"strategy"`
}

// Key derives the cache key for an extraction request. Identical requests
// collapse to the same key so concurrent callers share one computation.
func Key(sourceID string, win Window, minValue float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.6f,%.6f,%.6f,%.6f|%.4f", sourceID, win.South, win.North, win.West, win.East, minValue)
	return hex.EncodeToString(h.Sum(nil))[:32]
}
