package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"openbuildings/pkg/duck"
)

func TestUniqueID(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/20230725_211237_00132_5p54t", "5p54t"},
		{"buildings_00012.parquet", "00012"},
		{"plain.parquet", "plain"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := uniqueID(tt.path); got != tt.want {
			t.Errorf("uniqueID(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestApplyQuadkeys(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, "CREATE TABLE buildings (id TEXT, quadkey TEXT);")
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c", "o'brien"} {
		_, err = db.ExecContext(ctx, "INSERT INTO buildings (id) VALUES (?);", id)
		require.NoError(t, err)
	}

	keys := map[string][]string{
		"300112": {"a", "c"},
		"300113": {"b", "o'brien"},
	}
	require.NoError(t, applyQuadkeys(ctx, db, keys))

	got := map[string]string{}
	rows, err := db.QueryContext(ctx, "SELECT id, quadkey FROM buildings;")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id, qk string
		require.NoError(t, rows.Scan(&id, &qk))
		got[id] = qk
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, map[string]string{
		"a": "300112", "c": "300112",
		"b": "300113", "o'brien": "300113",
	}, got)
}

// execSpy records UPDATE statements on their way to the engine.
type execSpy struct {
	duck.Querier
	stmts []string
}

func (s *execSpy) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.stmts = append(s.stmts, query)
	return s.Querier.ExecContext(ctx, query, args...)
}

func TestApplyQuadkeysChunksLargeTiles(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, "CREATE TABLE buildings (id TEXT, quadkey TEXT);")
	require.NoError(t, err)

	ids := make([]string, 2*updateChunkSize+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("b%06d", i)
	}
	spy := &execSpy{Querier: db}
	require.NoError(t, applyQuadkeys(ctx, spy, map[string][]string{"300112": ids}))

	require.Len(t, spy.stmts, 3)
	for _, stmt := range spy.stmts {
		assert.LessOrEqual(t, strings.Count(stmt, ","), updateChunkSize-1)
	}
	assert.Contains(t, spy.stmts[2], fmt.Sprintf("'b%06d'", 2*updateChunkSize))
}

func TestProcessFileSkipsExisting(t *testing.T) {
	out := t.TempDir()
	existing := filepath.Join(out, "5p54t.parquet")
	require.NoError(t, os.WriteFile(existing, []byte("sentinel"), 0o644))

	err := processFile(context.Background(), "/data/batch_5p54t", Options{OutputDir: out})
	require.NoError(t, err)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "sentinel", string(data))
}

func TestRunRequiresCountriesPath(t *testing.T) {
	err := Run(context.Background(), "in.parquet", Options{AddCountryISO: true, OutputDir: t.TempDir()})
	assert.Error(t, err)
}
