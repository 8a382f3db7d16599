// Package convert turns building footprint CSV dumps into GIS formats,
// optionally splitting multipolygons into their component polygons with
// recomputed areas and plus codes.
package convert

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	olc "github.com/google/open-location-code/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// plusCodeLength matches the precision of the codes shipped in the
// source CSVs.
const plusCodeLength = 12

// Building is one footprint row. Geometry is a Polygon or MultiPolygon
// in WGS84; the source latitude and longitude columns are dropped on
// read since the geometry carries them.
type Building struct {
	AreaInMeters float64
	Confidence   float64
	FullPlusCode string
	Geometry     orb.Geometry
}

// ReadCSV loads a footprint dump. Column order is taken from the
// header row.
func ReadCSV(path string) ([]Building, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"area_in_meters", "confidence", "geometry", "full_plus_code"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV is missing the %s column", required)
		}
	}

	var buildings []Building
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		area, err := strconv.ParseFloat(record[col["area_in_meters"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad area: %w", len(buildings)+1, err)
		}
		confidence, err := strconv.ParseFloat(record[col["confidence"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad confidence: %w", len(buildings)+1, err)
		}
		geom, err := wkt.Unmarshal(record[col["geometry"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad geometry: %w", len(buildings)+1, err)
		}
		buildings = append(buildings, Building{
			AreaInMeters: area,
			Confidence:   confidence,
			FullPlusCode: record[col["full_plus_code"]],
			Geometry:     geom,
		})
	}
	return buildings, nil
}

// Split replaces every MultiPolygon with its component polygons. Each
// component gets a freshly computed equal-area surface and a plus code
// for its own centroid; all other attributes are inherited.
func Split(buildings []Building) []Building {
	out := make([]Building, 0, len(buildings))
	multis := 0
	for _, b := range buildings {
		mp, ok := b.Geometry.(orb.MultiPolygon)
		if !ok {
			out = append(out, b)
			continue
		}
		multis++
		for _, poly := range mp {
			out = append(out, splitPart(b, poly))
		}
	}
	if multis > 0 {
		slog.Debug("split multipolygons", "count", multis)
	}
	return out
}

func splitPart(parent Building, poly orb.Polygon) Building {
	centroid, _ := planar.CentroidArea(poly)
	return Building{
		AreaInMeters: EqualAreaM2(poly),
		Confidence:   parent.Confidence,
		FullPlusCode: olc.Encode(centroid[1], centroid[0], plusCodeLength),
		Geometry:     poly,
	}
}
