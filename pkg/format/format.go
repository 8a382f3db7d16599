// Package format defines the closed set of supported output formats and
// processing backends. Unknown tags are rejected here, at the boundary,
// so the rest of the code can switch exhaustively.
package format

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies an output vector format.
type Format int

const (
	Shapefile Format = iota
	GeoJSON
	GeoPackage
	FlatGeobuf
	GeoParquet
)

// All lists every supported format in a stable order.
var All = []Format{Shapefile, GeoJSON, GeoPackage, FlatGeobuf, GeoParquet}

var formatNames = map[Format]string{
	Shapefile:  "shapefile",
	GeoJSON:    "geojson",
	GeoPackage: "geopackage",
	FlatGeobuf: "flatgeobuf",
	GeoParquet: "parquet",
}

// Extension table is fixed; it is the single source of truth for
// extension-to-format resolution.
var formatExts = map[Format]string{
	Shapefile:  "shp",
	GeoJSON:    "json",
	GeoPackage: "gpkg",
	FlatGeobuf: "fgb",
	GeoParquet: "parquet",
}

var gdalDrivers = map[Format]string{
	Shapefile:  "ESRI Shapefile",
	GeoJSON:    "GeoJSON",
	GeoPackage: "GPKG",
	FlatGeobuf: "FlatGeobuf",
	GeoParquet: "Parquet",
}

func (f Format) String() string { return formatNames[f] }

// Ext returns the canonical file extension, without the dot.
func (f Format) Ext() string { return formatExts[f] }

// GDALDriver returns the GDAL driver name used when the analytical engine
// or ogr2ogr writes this format.
func (f Format) GDALDriver() string { return gdalDrivers[f] }

func validFormats() string {
	names := make([]string, 0, len(All))
	for _, f := range All {
		names = append(names, formatNames[f])
	}
	return strings.Join(names, ", ")
}

// Parse resolves a format name. Both the long names and the short
// extension-style names (shp, fgb, ...) are accepted, case-insensitively.
func Parse(name string) (Format, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	for f, n := range formatNames {
		if s == n {
			return f, nil
		}
	}
	for f, ext := range formatExts {
		if s == ext {
			return f, nil
		}
	}
	if s == "geojson" || s == "json" {
		return GeoJSON, nil
	}
	return 0, fmt.Errorf("format %q is unknown, please choose one of %s", name, validFormats())
}

// FromPath resolves the format from a destination file extension.
func FromPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "json", "geojson":
		return GeoJSON, nil
	}
	for f, e := range formatExts {
		if ext == e {
			return f, nil
		}
	}
	return 0, fmt.Errorf("can't identify file extension of %q, please choose one of %s", path, validFormats())
}

// Backend identifies one of the interchangeable processing backends.
type Backend int

const (
	// BackendDuckDB routes the conversion through the embedded analytical
	// SQL engine.
	BackendDuckDB Backend = iota
	// BackendNative processes geometries in-process.
	BackendNative
	// BackendOGR shells out to ogr2ogr.
	BackendOGR
)

// Backends lists every backend in a stable order.
var Backends = []Backend{BackendDuckDB, BackendNative, BackendOGR}

var backendNames = map[Backend]string{
	BackendDuckDB: "duckdb",
	BackendNative: "native",
	BackendOGR:    "ogr",
}

func (b Backend) String() string { return backendNames[b] }

// ParseBackend resolves a backend name.
func ParseBackend(name string) (Backend, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	for b, n := range backendNames {
		if s == n {
			return b, nil
		}
	}
	return 0, fmt.Errorf("backend %q is unknown, please choose one of duckdb, native, ogr", name)
}
