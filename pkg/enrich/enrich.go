// Package enrich adds partitioning columns to raw Overture building
// files: a level-12 quadkey derived from each feature's bounding box
// midpoint, and the ISO country code from a boundaries file.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openbuildings/pkg/config"
	"openbuildings/pkg/duck"
	"openbuildings/pkg/geoparquet"
	"openbuildings/pkg/tile"
)

// quadkeyZoom is the partitioning level the downstream splitter expects.
const quadkeyZoom = 12

// Options configures an enrichment run.
type Options struct {
	// OutputDir receives one parquet and one working database per input.
	OutputDir string

	// CountriesPath is a parquet of country polygons with an
	// isocountrycodealpha2 column. Required with AddCountryISO.
	CountriesPath string

	AddQuadkey    bool
	AddCountryISO bool
	Overwrite     bool

	Settings *config.Settings
}

// Run processes a single parquet file, or every file in a directory.
func Run(ctx context.Context, input string, opts Options) error {
	if opts.AddCountryISO && opts.CountriesPath == "" {
		return fmt.Errorf("adding country codes requires a country boundaries file")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return processFile(ctx, input, opts)
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := processFile(ctx, filepath.Join(input, e.Name()), opts); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
	}
	return nil
}

func processFile(ctx context.Context, path string, opts Options) error {
	id := uniqueID(path)
	dbPath := filepath.Join(opts.OutputDir, id+".duckdb")
	outPath := filepath.Join(opts.OutputDir, id+".parquet")

	if exists(dbPath) || exists(outPath) {
		if !opts.Overwrite {
			slog.Info("output already exists, skipping", "id", id)
			return nil
		}
		for _, p := range []string{dbPath, outPath} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}

	start := time.Now()
	slog.Info("processing", "input", path, "id", id)

	db, err := duck.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// The names column is all NULL in the source dumps and crashes the
	// engine when materialized.
	stmt := fmt.Sprintf(
		"CREATE OR REPLACE TABLE buildings AS SELECT * EXCLUDE(names) FROM read_parquet('%s');", path)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}

	if opts.AddQuadkey {
		if err := addQuadkey(ctx, db); err != nil {
			return err
		}
	}
	if opts.AddCountryISO {
		if err := addCountryISO(ctx, db, opts.CountriesPath); err != nil {
			return err
		}
	}

	order := ""
	if opts.AddQuadkey {
		order = " ORDER BY quadkey"
	}
	copyStmt := fmt.Sprintf("COPY (SELECT * FROM buildings%s) TO '%s' WITH (FORMAT PARQUET, COMPRESSION '%s');",
		order, outPath, opts.Settings.Compression)
	if _, err := db.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	finalize, err := geoparquet.Parse(opts.Settings.Finalizer)
	if err != nil {
		return err
	}
	if err := finalize.Run(outPath, opts.Settings.RowGroupSize); err != nil {
		return err
	}

	slog.Info("processing complete", "id", id, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func addQuadkey(ctx context.Context, q duck.Querier) error {
	if _, err := q.ExecContext(ctx, "ALTER TABLE buildings ADD COLUMN IF NOT EXISTS quadkey VARCHAR;"); err != nil {
		return fmt.Errorf("failed to add quadkey column: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT id, bbox.minx, bbox.maxx, bbox.miny, bbox.maxy FROM buildings;")
	if err != nil {
		return fmt.Errorf("failed to read bounding boxes: %w", err)
	}
	defer rows.Close()

	keys := map[string][]string{}
	for rows.Next() {
		var id string
		var minx, maxx, miny, maxy float64
		if err := rows.Scan(&id, &minx, &maxx, &miny, &maxy); err != nil {
			return err
		}
		qk := tile.At((miny+maxy)/2, (minx+maxx)/2, quadkeyZoom)
		keys[qk] = append(keys[qk], id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return applyQuadkeys(ctx, q, keys)
}

// updateChunkSize caps the number of ids interpolated into a single
// UPDATE. A zoom 12 tile over a dense city can hold millions of
// buildings, far past what one statement should carry.
const updateChunkSize = 5000

// applyQuadkeys writes the computed keys back, one update per distinct
// quadkey, with the id lists split into bounded chunks.
func applyQuadkeys(ctx context.Context, q duck.Querier, keys map[string][]string) error {
	ordered := make([]string, 0, len(keys))
	for qk := range keys {
		ordered = append(ordered, qk)
	}
	sort.Strings(ordered)

	for _, qk := range ordered {
		ids := keys[qk]
		for start := 0; start < len(ids); start += updateChunkSize {
			end := start + updateChunkSize
			if end > len(ids) {
				end = len(ids)
			}
			quoted := make([]string, end-start)
			for i, id := range ids[start:end] {
				quoted[i] = "'" + strings.ReplaceAll(id, "'", "''") + "'"
			}
			stmt := fmt.Sprintf("UPDATE buildings SET quadkey = '%s' WHERE id IN (%s);",
				qk, strings.Join(quoted, ", "))
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to set quadkey %s: %w", qk, err)
			}
		}
	}
	return nil
}

func addCountryISO(ctx context.Context, q duck.Querier, countriesPath string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE countries AS SELECT * FROM read_parquet('%s');", countriesPath)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to load country boundaries: %w", err)
	}
	if _, err := q.ExecContext(ctx, "ALTER TABLE buildings ADD COLUMN IF NOT EXISTS country_iso VARCHAR;"); err != nil {
		return fmt.Errorf("failed to add country_iso column: %w", err)
	}
	update := `UPDATE buildings
SET country_iso = countries.isocountrycodealpha2
FROM countries
WHERE ST_Intersects(ST_GeomFromWKB(countries.geometry), ST_GeomFromWKB(buildings.geometry));`
	if _, err := q.ExecContext(ctx, update); err != nil {
		return fmt.Errorf("failed to assign country codes: %w", err)
	}
	return nil
}

// uniqueID extracts the per-file identifier: the token after the last
// underscore of the base name, extension stripped.
func uniqueID(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if i := strings.LastIndex(name, "_"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
