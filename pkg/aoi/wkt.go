package aoi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WKT renders the feature geometry as Well-Known Text in the
// `POLYGON ((x y, x y, ...))` form. Coordinates use the shortest decimal
// representation that round-trips, never scientific notation, so the
// output matches the source coordinates digit for digit.
func WKT(f *geojson.Feature) (string, error) {
	return MarshalWKT(f.Geometry)
}

// MarshalWKT renders a polygonal geometry as WKT.
func MarshalWKT(g orb.Geometry) (string, error) {
	var b strings.Builder
	switch geom := g.(type) {
	case orb.Polygon:
		b.WriteString("POLYGON ")
		writePolygon(&b, geom)
	case orb.MultiPolygon:
		b.WriteString("MULTIPOLYGON (")
		for i, poly := range geom {
			if i > 0 {
				b.WriteString(", ")
			}
			writePolygon(&b, poly)
		}
		b.WriteByte(')')
	default:
		return "", fmt.Errorf("unsupported WKT geometry type %q, expected Polygon", g.GeoJSONType())
	}
	return b.String(), nil
}

func writePolygon(b *strings.Builder, poly orb.Polygon) {
	b.WriteByte('(')
	for i, ring := range poly {
		if i > 0 {
			b.WriteString(", ")
		}
		writeRing(b, ring)
	}
	b.WriteByte(')')
}

func writeRing(b *strings.Builder, ring orb.Ring) {
	b.WriteByte('(')
	for i, p := range ring {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatCoord(p[0]))
		b.WriteByte(' ')
		b.WriteString(formatCoord(p[1]))
	}
	b.WriteByte(')')
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
