package convert

import (
	"fmt"
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// writeShapefile writes the footprints with their attributes. DBF field
// names are capped at ten characters, so area_in_meters becomes area_m.
func writeShapefile(path string, buildings []Building) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}

	w.SetFields([]shp.Field{
		shp.FloatField("area_m", 24, 8),
		shp.FloatField("confidence", 12, 6),
		shp.StringField("plus_code", 16),
	})

	for _, b := range buildings {
		rings, err := shapeRings(b.Geometry)
		if err != nil {
			w.Close()
			return err
		}
		// Write returns the record count, so the record just written
		// sits at index count-1.
		row := int(w.Write((*shp.Polygon)(shp.NewPolyLine(rings)))) - 1
		w.WriteAttribute(row, 0, b.AreaInMeters)
		w.WriteAttribute(row, 1, b.Confidence)
		w.WriteAttribute(row, 2, b.FullPlusCode)
	}
	w.Close()

	// go-shp names the attribute table "<stem>dbf", without the dot.
	// Move it to the conventional sidecar name readers expect.
	stem := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(stem + "dbf"); err == nil {
		if err := os.Rename(stem+"dbf", stem+".dbf"); err != nil {
			return fmt.Errorf("failed to rename attribute table: %w", err)
		}
	}
	return nil
}

// shapeRings flattens a polygonal geometry into shapefile parts. The
// format has no multipolygon type, so all rings land in one record.
func shapeRings(g orb.Geometry) ([][]shp.Point, error) {
	var polys []orb.Polygon
	switch v := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	default:
		return nil, fmt.Errorf("unsupported shapefile geometry %q", g.GeoJSONType())
	}

	var rings [][]shp.Point
	for _, poly := range polys {
		for _, ring := range poly {
			part := make([]shp.Point, len(ring))
			for i, pt := range ring {
				part[i] = shp.Point{X: pt[0], Y: pt[1]}
			}
			rings = append(rings, part)
		}
	}
	return rings, nil
}
