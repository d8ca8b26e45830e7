// Package geojson renders extraction results as GeoJSON for API consumers.
package geojson

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	geomjson "github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mrms-extract/internal/model"
)

// FeatureCollection converts extracted points into a GeoJSON feature
// collection. Coordinates are emitted lon-first per RFC 7946; values ride
// along as feature properties.
func FeatureCollection(points []model.PointRecord) *geomjson.FeatureCollection {
	features := make([]*geomjson.Feature, 0, len(points))
	for _, p := range points {
		features = append(features, &geomjson.Feature{
			Geometry: geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(4326),
			Properties: map[string]any{
				"value": p.Value,
			},
		})
	}
	return &geomjson.FeatureCollection{Features: features}
}

// Marshal renders points as GeoJSON bytes.
func Marshal(points []model.PointRecord) ([]byte, error) {
	data, err := json.Marshal(FeatureCollection(points))
	if err != nil {
		return nil, eris.Wrap(err, "geojson: marshal")
	}
	return data, nil
}
