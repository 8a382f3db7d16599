// Package query builds the SQL sent to the analytical engine. Values are
// interpolated directly: the tool runs locally against archives the user
// names, so SQL injection is an accepted limitation, not a threat model.
package query

import (
	"fmt"
	"strings"

	"openbuildings/pkg/config"
	"openbuildings/pkg/format"
)

// Filter describes a spatial filter: a cheap quadkey prefix match, an
// exact polygon containment test, and an optional country equality that
// lets the engine prune hive partitions before reading anything.
type Filter struct {
	Quadkey    string
	WKT        string
	CountryISO string

	// QuadkeyOnly drops the exact containment test and keeps just the
	// prefix match.
	QuadkeyOnly bool
}

// Where renders the WHERE clause.
func (f Filter) Where() string {
	var b strings.Builder
	b.WriteString("WHERE ")
	if f.CountryISO != "" {
		fmt.Fprintf(&b, "country_iso = '%s' AND ", f.CountryISO)
	}
	fmt.Fprintf(&b, "quadkey LIKE '%s%%'", f.Quadkey)
	if !f.QuadkeyOnly {
		fmt.Fprintf(&b, " AND\nST_Within(ST_GeomFromWKB(geometry), ST_GeomFromText('%s'))", f.WKT)
	}
	return b.String()
}

// overtureNarrowColumns lists the Overture columns safe for GIS drivers.
// The full schema carries nested structs that the GDAL drivers choke on.
const overtureNarrowColumns = "id, level, height, numfloors, class, country_iso, quadkey"

// BaseSelect renders the SELECT over the remote archive. Narrow selects
// named columns instead of the full schema; it is required when the
// Overture source is written to anything but Parquet.
func BaseSelect(src config.SourceConfig, narrow bool) string {
	selectValues := "* EXCLUDE geometry"
	if narrow {
		selectValues = overtureNarrowColumns
	}
	hive := 0
	if src.HivePartitioning {
		hive = 1
	}
	return fmt.Sprintf(
		"SELECT %s, ST_AsWKB(ST_GeomFromWKB(geometry)) AS geometry FROM read_parquet('%s', hive_partitioning=%d)",
		selectValues, src.BaseURL, hive)
}

// CreateTable renders the statement materializing the filtered archive
// subset into a local table.
func CreateTable(table string, src config.SourceConfig, narrow bool, f Filter) string {
	return fmt.Sprintf("CREATE TABLE %s AS (%s\n%s);", table, BaseSelect(src, narrow), f.Where())
}

// Count renders a row count over a table.
func Count(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s;", table)
}

// CopyGDAL renders a COPY through a GDAL driver.
func CopyGDAL(table, dst string, f format.Format) string {
	return fmt.Sprintf("COPY %s TO '%s' WITH (FORMAT GDAL, DRIVER '%s');", table, dst, f.GDALDriver())
}

// CopyParquet renders a COPY to Parquet with the configured codec.
func CopyParquet(table, dst, compression string) string {
	return fmt.Sprintf("COPY %s TO '%s' WITH (FORMAT PARQUET, COMPRESSION '%s');", table, dst, compression)
}

// Preview renders the one-statement form of an AOI extraction, suitable
// for printing instead of executing.
func Preview(src config.SourceConfig, f Filter, dst string, out format.Format) string {
	sel := fmt.Sprintf("(%s\n%s)", BaseSelect(src, false), f.Where())
	if out == format.GeoParquet {
		return CopyParquet(sel, dst, "snappy")
	}
	return CopyGDAL(sel, dst, out)
}
