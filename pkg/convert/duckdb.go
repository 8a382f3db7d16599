package convert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"openbuildings/pkg/aoi"
	"openbuildings/pkg/config"
	"openbuildings/pkg/duck"
	"openbuildings/pkg/format"
	"openbuildings/pkg/geoparquet"
)

// processDuckDB converts one CSV through the analytical engine, using a
// sidecar database file as working space.
func processDuckDB(ctx context.Context, input, dbPath string, f format.Format, out string, split bool, settings *config.Settings) error {
	db, err := duck.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	stmt := fmt.Sprintf(
		"CREATE TABLE buildings AS (SELECT * EXCLUDE (latitude, longitude) FROM '%s');", input)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	if split {
		if err := splitInEngine(ctx, db); err != nil {
			return err
		}
	}

	exportSelect := "SELECT * EXCLUDE geometry, ST_AsWKB(ST_GeomFromText(geometry)) AS geometry FROM buildings"

	switch f {
	case format.GeoParquet:
		stmt := fmt.Sprintf("COPY (%s) TO '%s' WITH (FORMAT PARQUET, COMPRESSION '%s');",
			exportSelect, out, settings.Compression)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		finalize, err := geoparquet.Parse(settings.Finalizer)
		if err != nil {
			return err
		}
		return finalize.Run(out, settings.RowGroupSize)
	case format.GeoPackage:
		if settings.SkipDuckGPKG {
			slog.Info("skipping engine GeoPackage conversion, it is far slower than the other paths",
				"output", out)
			return nil
		}
		fallthrough
	default:
		stmt := fmt.Sprintf("COPY (%s) TO '%s' WITH (FORMAT GDAL, DRIVER '%s');",
			exportSelect, out, f.GDALDriver())
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		return nil
	}
}

// splitInEngine mirrors Split on the engine's table: component polygons
// are inserted with recomputed attributes, then the originals dropped.
func splitInEngine(ctx context.Context, db duck.Querier) error {
	rows, err := db.QueryContext(ctx,
		"SELECT area_in_meters, confidence, geometry, full_plus_code FROM buildings WHERE geometry LIKE 'MULTIPOLYGON%';")
	if err != nil {
		return fmt.Errorf("failed to fetch multipolygons: %w", err)
	}
	defer rows.Close()

	var replacements []Building
	for rows.Next() {
		var b Building
		var geomWKT string
		if err := rows.Scan(&b.AreaInMeters, &b.Confidence, &geomWKT, &b.FullPlusCode); err != nil {
			return err
		}
		geom, err := wkt.Unmarshal(geomWKT)
		if err != nil {
			return fmt.Errorf("bad multipolygon in table: %w", err)
		}
		mp, ok := geom.(orb.MultiPolygon)
		if !ok {
			return fmt.Errorf("expected multipolygon, got %q", geom.GeoJSONType())
		}
		for _, poly := range mp {
			replacements = append(replacements, splitPart(b, poly))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range replacements {
		geomWKT, err := aoi.MarshalWKT(r.Geometry)
		if err != nil {
			return err
		}
		stmt := fmt.Sprintf(
			"INSERT INTO buildings (area_in_meters, confidence, geometry, full_plus_code) VALUES (%g, %g, '%s', '%s');",
			r.AreaInMeters, r.Confidence, geomWKT, r.FullPlusCode)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to insert split polygon: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM buildings WHERE geometry LIKE 'MULTIPOLYGON%';"); err != nil {
		return fmt.Errorf("failed to drop multipolygons: %w", err)
	}
	slog.Debug("split multipolygons in engine", "polygons", len(replacements))
	return nil
}
