// Package download extracts buildings for an area of interest from a
// remote GeoParquet archive into a local file, in any supported format.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"openbuildings/pkg/aoi"
	"openbuildings/pkg/config"
	"openbuildings/pkg/duck"
	"openbuildings/pkg/format"
	"openbuildings/pkg/geoparquet"
	"openbuildings/pkg/query"
)

// Options configures one extraction.
type Options struct {
	// Source names the archive (google, overture).
	Source string

	// Dst is the output file or directory. A directory gets a
	// buildings.json file inside it.
	Dst string

	// FormatName overrides extension sniffing when non-empty.
	FormatName string

	// CountryISO is the optional two-letter country hint. It lets the
	// engine prune hive partitions and speeds queries up 5-10x.
	CountryISO string

	// Overwrite deletes an existing destination first.
	Overwrite bool

	// GenerateSQL prints the statements instead of executing them.
	GenerateSQL bool

	// SQLWriter receives the statements in GenerateSQL mode. Defaults to
	// standard output.
	SQLWriter io.Writer

	Settings *config.Settings
}

// Run performs the extraction.
func Run(ctx context.Context, feature *geojson.Feature, opts Options) error {
	src, err := opts.Settings.Source(strings.ToLower(opts.Source))
	if err != nil {
		return err
	}

	dst, outFormat, err := resolveDst(opts.Dst, opts.FormatName)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dst); err == nil && !opts.GenerateSQL {
		if !opts.Overwrite {
			slog.Info("file already exists, use --overwrite to overwrite it", "path", dst)
			return nil
		}
		slog.Debug("deleting existing file", "path", dst)
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("failed to remove existing file: %w", err)
		}
	}

	slog.Debug("converting GeoJSON to quadkey and WKT")
	quadkey, err := aoi.Quadkey(feature)
	if err != nil {
		return err
	}
	wkt, err := aoi.WKT(feature)
	if err != nil {
		return err
	}
	slog.Debug("computed spatial filter", "quadkey", quadkey, "wkt", wkt)

	filter := query.Filter{Quadkey: quadkey, WKT: wkt, CountryISO: opts.CountryISO}
	narrow := strings.EqualFold(opts.Source, "overture") && outFormat != format.GeoParquet
	createStmt := query.CreateTable("buildings", src, narrow, filter)

	if opts.CountryISO != "" {
		slog.Info("querying and downloading data",
			"quadkey", quadkey, "country", opts.CountryISO)
		slog.Info("expect query times of at least 5-10 seconds")
	} else {
		slog.Info("querying and downloading data", "quadkey", quadkey)
		slog.Info("expect query times of at least 30 seconds, the --country-iso option can lessen this")
	}

	if opts.GenerateSQL {
		w := opts.SQLWriter
		if w == nil {
			w = os.Stdout
		}
		fmt.Fprintln(w, createStmt)
		fmt.Fprintln(w, copyStatement(outFormat, dst, opts.Settings.Compression))
		return nil
	}

	db, err := duck.OpenMemory(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createStmt); err != nil {
		return fmt.Errorf("archive query failed: %w", err)
	}

	var count int64
	if err := db.QueryRowContext(ctx, query.Count("buildings")).Scan(&count); err != nil {
		return fmt.Errorf("failed to count results: %w", err)
	}
	slog.Info("downloaded features", "count", count)

	if count == 0 {
		if opts.CountryISO != "" {
			slog.Info("zero results: if you are sure the GeoJSON should have buildings, check that the country code is right",
				"country", opts.CountryISO)
		}
		return nil
	}

	slog.Info("writing output", "path", dst, "format", outFormat.String())
	return writeOutput(ctx, db, outFormat, dst, opts.Settings)
}

func copyStatement(f format.Format, dst, compression string) string {
	if f == format.GeoParquet {
		return query.CopyParquet("buildings", dst, compression)
	}
	return query.CopyGDAL("buildings", dst, f)
}

func writeOutput(ctx context.Context, db *duck.DB, f format.Format, dst string, settings *config.Settings) error {
	if f != format.GeoParquet {
		stmt := query.CopyGDAL("buildings", dst, f)
		slog.Debug("executing", "query", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to write %s: %w", dst, err)
		}
		return nil
	}

	// Parquet goes through a temp path so the finalizer rewrites before
	// the file appears under its final name.
	tmp := dst + "." + uuid.NewString() + ".tmp.parquet"
	defer os.Remove(tmp)

	stmt := query.CopyParquet("buildings", tmp, settings.Compression)
	slog.Debug("executing", "query", stmt)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}

	finalize, err := geoparquet.Parse(settings.Finalizer)
	if err != nil {
		return err
	}
	if err := finalize.Run(tmp, settings.RowGroupSize); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

// resolveDst applies the destination rules: a directory grows a default
// buildings.json, an explicit format overrides the extension, otherwise
// the extension picks the format.
func resolveDst(dst, formatName string) (string, format.Format, error) {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, "buildings.json")
	}

	if formatName != "" {
		f, err := format.Parse(formatName)
		if err != nil {
			return "", 0, err
		}
		ext := filepath.Ext(dst)
		dst = dst[:len(dst)-len(ext)] + "." + f.Ext()
		return dst, f, nil
	}

	f, err := format.FromPath(dst)
	if err != nil {
		return "", 0, err
	}
	return dst, f, nil
}
