// Package partition splits a buildings table into GeoParquet files keyed
// by country and quadkey prefix. Each country becomes one file when it
// fits under the row threshold; otherwise its rows are subdivided by
// quadkey prefix, one digit at a time, until every leaf fits.
//
// The leaves of that search form a true partition of the country's rows:
// distinct prefixes at a given length are disjoint, and a prefix is only
// recursed into, never emitted alongside its children.
package partition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"openbuildings/pkg/duck"
	"openbuildings/pkg/geoparquet"
	"openbuildings/pkg/tile"
)

// Options configures a partitioning run.
type Options struct {
	// OutputDir receives the partition files.
	OutputDir string

	// MaxPerFile is the row threshold above which a partition is split.
	MaxPerFile int64

	// RowGroupSize is passed through to the finalizer.
	RowGroupSize int

	// Hive writes country_iso=XX/ folder structure.
	Hive bool

	// TableName is the source table.
	TableName string

	// Finalize is applied to every emitted file.
	Finalize geoparquet.Finalizer
}

// Partitioner runs the recursive quadkey partitioning.
type Partitioner struct {
	db   duck.Querier
	opts Options

	// emit copies the rows selected by where into dest. Swappable so the
	// search logic is testable without the analytical engine.
	emit func(ctx context.Context, where, dest string) error
}

// New creates a Partitioner over a database with a TableName table
// carrying country_iso and quadkey columns.
func New(db duck.Querier, opts Options) *Partitioner {
	p := &Partitioner{db: db, opts: opts}
	p.emit = p.copyPartition
	return p
}

// Run partitions every country in the table. Existing output files are
// skipped, which makes reruns after a partial failure safe: only files
// that were fully written (copy plus rename) exist on disk.
func (p *Partitioner) Run(ctx context.Context) error {
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	countries, err := p.distinctCountries(ctx)
	if err != nil {
		return err
	}
	slog.Info("partitioning countries", "count", len(countries))

	for _, country := range countries {
		if err := p.runCountry(ctx, country); err != nil {
			return fmt.Errorf("failed to partition country %s: %w", country, err)
		}
	}
	return nil
}

func (p *Partitioner) runCountry(ctx context.Context, country string) error {
	dir := p.opts.OutputDir
	if p.opts.Hive {
		dir = filepath.Join(dir, fmt.Sprintf("country_iso=%s", country))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create hive folder: %w", err)
		}
	}

	dest := filepath.Join(dir, country+".parquet")
	if _, err := os.Stat(dest); err == nil {
		slog.Info("output file already exists, skipping", "country", country, "path", dest)
		return nil
	}

	count, err := p.countRows(ctx, country, "")
	if err != nil {
		return err
	}
	slog.Debug("country row count", "country", country, "rows", count)

	if count <= p.opts.MaxPerFile {
		return p.emitLeaf(ctx, country, "", dest)
	}
	return p.splitQuadkeys(ctx, country, dir, 1, "")
}

// splitQuadkeys subdivides one country's rows at the given prefix
// length, scoped under parent (the prefix one digit shorter, empty at
// the top). Depth is bounded by the maximum quadkey length; a prefix
// still over the threshold at that depth is emitted oversized rather
// than recursed into forever.
func (p *Partitioner) splitQuadkeys(ctx context.Context, country, dir string, length int, parent string) error {
	if short, err := p.countShortQuadkeys(ctx, country, parent, length); err != nil {
		return err
	} else if short > 0 {
		// A quadkey shorter than the probe length can never match any
		// prefix at this depth, so these rows fall out of every leaf.
		// Preserved behavior; see the design notes.
		slog.Warn("rows with short quadkeys excluded at this depth",
			"country", country, "parent", parent, "length", length, "rows", short)
	}

	prefixes, err := p.distinctPrefixes(ctx, country, parent, length)
	if err != nil {
		return err
	}
	slog.Debug("distinct quadkey prefixes", "country", country, "length", length, "prefixes", prefixes)

	for _, prefix := range prefixes {
		count, err := p.countRows(ctx, country, prefix)
		if err != nil {
			return err
		}
		slog.Debug("quadkey prefix row count", "prefix", prefix, "rows", count)

		if count > p.opts.MaxPerFile && length < tile.MaxQuadkeyLen {
			if err := p.splitQuadkeys(ctx, country, dir, length+1, prefix); err != nil {
				return err
			}
			continue
		}
		if count > p.opts.MaxPerFile {
			slog.Warn("quadkey prefix exceeds row threshold at maximum depth, emitting oversized file",
				"country", country, "prefix", prefix, "rows", count)
		}

		dest := filepath.Join(dir, fmt.Sprintf("%s_%s.parquet", country, prefix))
		if _, err := os.Stat(dest); err == nil {
			slog.Info("output file already exists, skipping", "path", dest)
			continue
		}
		if err := p.emitLeaf(ctx, country, prefix, dest); err != nil {
			return err
		}
	}
	return nil
}

func (p *Partitioner) emitLeaf(ctx context.Context, country, prefix, dest string) error {
	where := whereClause(country, prefix)
	slog.Info("writing partition", "path", dest, "where", where)

	if err := p.emit(ctx, where, dest); err != nil {
		return err
	}
	if err := p.opts.Finalize.Run(dest, p.opts.RowGroupSize); err != nil {
		return err
	}
	slog.Debug("partition written", "path", dest, "finalizer", p.opts.Finalize)
	return nil
}

// copyPartition is the production emit: COPY into a temporary path, then
// rename so the skip-if-exists check never sees a half-written file.
func (p *Partitioner) copyPartition(ctx context.Context, where, dest string) error {
	tmp := dest + "." + uuid.NewString() + ".tmp"
	defer os.Remove(tmp)

	stmt := fmt.Sprintf(
		"COPY (SELECT * FROM %s %s ORDER BY quadkey) TO '%s' WITH (FORMAT PARQUET);",
		p.opts.TableName, where, tmp)
	slog.Debug("executing", "query", stmt)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("failed to move partition into place: %w", err)
	}
	return nil
}

func whereClause(country, prefix string) string {
	w := fmt.Sprintf("WHERE country_iso = '%s'", country)
	if prefix != "" {
		w += fmt.Sprintf(" AND SUBSTR(quadkey, 1, %d) = '%s'", len(prefix), prefix)
	}
	return w
}

func (p *Partitioner) distinctCountries(ctx context.Context) ([]string, error) {
	stmt := fmt.Sprintf("SELECT DISTINCT country_iso FROM %s", p.opts.TableName)
	slog.Debug("executing", "query", stmt)

	rows, err := p.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	defer rows.Close()

	var countries []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		countries = append(countries, c)
	}
	return countries, rows.Err()
}

func (p *Partitioner) distinctPrefixes(ctx context.Context, country, parent string, length int) ([]string, error) {
	stmt := fmt.Sprintf(
		"SELECT DISTINCT SUBSTR(quadkey, 1, %d) FROM %s WHERE country_iso = '%s'",
		length, p.opts.TableName, country)
	if parent != "" {
		stmt += fmt.Sprintf(" AND SUBSTR(quadkey, 1, %d) = '%s'", len(parent), parent)
	}
	slog.Debug("executing", "query", stmt)

	rows, err := p.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list quadkey prefixes: %w", err)
	}
	defer rows.Close()

	var prefixes []string
	for rows.Next() {
		var qk string
		if err := rows.Scan(&qk); err != nil {
			return nil, err
		}
		if len(qk) == length {
			prefixes = append(prefixes, qk)
		}
	}
	return prefixes, rows.Err()
}

func (p *Partitioner) countRows(ctx context.Context, country, prefix string) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", p.opts.TableName, whereClause(country, prefix))
	var count int64
	if err := p.db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return count, nil
}

func (p *Partitioner) countShortQuadkeys(ctx context.Context, country, parent string, length int) (int64, error) {
	stmt := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE country_iso = '%s' AND LENGTH(quadkey) < %d",
		p.opts.TableName, country, length)
	if parent != "" {
		stmt += fmt.Sprintf(" AND SUBSTR(quadkey, 1, %d) = '%s'", len(parent), parent)
	}
	var count int64
	if err := p.db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count short quadkeys: %w", err)
	}
	return count, nil
}
