// Package aoi turns a GeoJSON area of interest into the two values that
// parameterize a spatial filter: a covering quadkey and a WKT polygon.
package aoi

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"openbuildings/pkg/tile"
)

// Read parses a GeoJSON Feature from r.
func Read(r io.Reader) (*geojson.Feature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read geojson: %w", err)
	}
	f, err := geojson.UnmarshalFeature(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse geojson feature: %w", err)
	}
	return f, nil
}

// ReadFile parses a GeoJSON Feature from a file.
func ReadFile(path string) (*geojson.Feature, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geojson %s: %w", path, err)
	}
	defer file.Close()
	return Read(file)
}

// Bound returns the bounding box of the feature. An explicit bbox member
// wins; otherwise the exterior ring(s) are scanned with a min/max
// reduction. Holes are ignored for this purpose.
func Bound(f *geojson.Feature) (orb.Bound, error) {
	if f.BBox.Valid() {
		b := f.BBox.Bound()
		return b, nil
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	scan := func(ring orb.Ring) {
		for _, p := range ring {
			minLon = math.Min(minLon, p[0])
			minLat = math.Min(minLat, p[1])
			maxLon = math.Max(maxLon, p[0])
			maxLat = math.Max(maxLat, p[1])
		}
	}

	switch g := f.Geometry.(type) {
	case orb.Polygon:
		if len(g) == 0 {
			return orb.Bound{}, fmt.Errorf("polygon has no rings")
		}
		scan(g[0])
	case orb.MultiPolygon:
		for _, poly := range g {
			if len(poly) > 0 {
				scan(poly[0])
			}
		}
	default:
		return orb.Bound{}, fmt.Errorf("unsupported AOI geometry type %q, expected Polygon", f.Geometry.GeoJSONType())
	}

	if math.IsInf(minLon, 1) {
		return orb.Bound{}, fmt.Errorf("AOI geometry has no coordinates")
	}
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}, nil
}

// Quadkey returns the quadkey of the smallest single tile containing the
// feature's bounding box.
func Quadkey(f *geojson.Feature) (string, error) {
	b, err := Bound(f)
	if err != nil {
		return "", err
	}
	return tile.Covering(b), nil
}

// QuadkeyGeoJSON returns a GeoJSON Feature for the rectangle of the tile
// addressed by the quadkey.
func QuadkeyGeoJSON(qk string) (*geojson.Feature, error) {
	b, err := tile.Bound(qk)
	if err != nil {
		return nil, err
	}
	return geojson.NewFeature(b.ToPolygon()), nil
}
