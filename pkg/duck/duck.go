// Package duck wraps the embedded analytical SQL engine (DuckDB) behind
// database/sql, with the spatial extension loaded.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb/v2" // Register driver
)

// Querier is the subset of database/sql used by the partitioning and
// enrichment code. *sql.DB satisfies it, and so does any test double.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Open opens a database file and loads the spatial extension. An empty
// path opens an in-memory database.
func Open(ctx context.Context, path string) (*DB, error) {
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create db dir: %w", err)
			}
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// One connection per operation; queries build on each other's
	// temporary state (tables, loaded extensions).
	db.SetMaxOpenConns(1)

	d := &DB{db}
	if err := d.loadSpatial(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// OpenMemory opens an in-memory database with the spatial extension.
func OpenMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, "")
}

func (d *DB) loadSpatial(ctx context.Context) error {
	var installed bool
	err := d.QueryRowContext(ctx,
		`SELECT count(*) > 0 FROM duckdb_extensions() WHERE installed IS TRUE AND extension_name = 'spatial'`,
	).Scan(&installed)
	if err != nil {
		return fmt.Errorf("failed to check spatial extension: %w", err)
	}
	if !installed {
		if _, err := d.ExecContext(ctx, "INSTALL spatial;"); err != nil {
			return fmt.Errorf("failed to install spatial extension: %w", err)
		}
	}
	if _, err := d.ExecContext(ctx, "LOAD spatial;"); err != nil {
		return fmt.Errorf("failed to load spatial extension: %w", err)
	}
	return nil
}
