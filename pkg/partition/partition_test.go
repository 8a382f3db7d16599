package partition

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	_ "modernc.org/sqlite"

	"openbuildings/pkg/geoparquet"
)

// The search logic speaks plain SQL (DISTINCT, COUNT, SUBSTR), so the
// tests run it against an in-memory SQLite database and capture emits
// instead of running COPY statements.

type emitRecord struct {
	where string
	dest  string
}

func testDB(t *testing.T, rows [][2]string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE buildings (country_iso TEXT, quadkey TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO buildings VALUES (?, ?)`, r[0], r[1]); err != nil {
			t.Fatalf("failed to insert row: %v", err)
		}
	}
	return db
}

func testPartitioner(t *testing.T, db *sql.DB, outputDir string, maxPerFile int64) (*Partitioner, *[]emitRecord) {
	t.Helper()
	p := New(db, Options{
		OutputDir:  outputDir,
		MaxPerFile: maxPerFile,
		TableName:  "buildings",
		Finalize:   geoparquet.None,
	})
	var emitted []emitRecord
	p.emit = func(ctx context.Context, where, dest string) error {
		emitted = append(emitted, emitRecord{where: where, dest: dest})
		// Mimic the production emit's observable effect so the
		// idempotence check sees the file.
		return os.WriteFile(dest, []byte(where), 0o644)
	}
	return p, &emitted
}

func destNames(emitted []emitRecord) []string {
	names := make([]string, len(emitted))
	for i, e := range emitted {
		names[i] = filepath.Base(e.dest)
	}
	sort.Strings(names)
	return names
}

func TestSmallCountrySingleFile(t *testing.T) {
	db := testDB(t, [][2]string{
		{"SC", "301001330310"},
		{"SC", "301001330311"},
		{"SC", "301001330312"},
	})
	dir := t.TempDir()
	p, emitted := testPartitioner(t, db, dir, 10)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	names := destNames(*emitted)
	if len(names) != 1 || names[0] != "SC.parquet" {
		t.Fatalf("emitted = %v, want single SC.parquet", names)
	}
	if (*emitted)[0].where != "WHERE country_iso = 'SC'" {
		t.Errorf("where = %q", (*emitted)[0].where)
	}
}

func TestSplitStopsAtLengthOne(t *testing.T) {
	// 4 rows in quadrant 0 and 4 rows in quadrant 3: the country total
	// (8) exceeds the threshold (5), but each length-1 prefix fits, so
	// recursion must not reach length 2.
	var rows [][2]string
	for i := 0; i < 4; i++ {
		rows = append(rows, [2]string{"SC", fmt.Sprintf("0123012301%d2", i%4)})
		rows = append(rows, [2]string{"SC", fmt.Sprintf("3010013303%d0", i%4)})
	}
	db := testDB(t, rows)
	dir := t.TempDir()
	p, emitted := testPartitioner(t, db, dir, 5)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	names := destNames(*emitted)
	want := []string{"SC_0.parquet", "SC_3.parquet"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("emitted = %v, want %v", names, want)
	}
}

func TestRecursionDeepens(t *testing.T) {
	// All 6 rows share prefix 3; at length 2 they split 30 (4 rows) and
	// 31 (2 rows); with threshold 3 the 30 branch splits again.
	db := testDB(t, [][2]string{
		{"SC", "300000000000"},
		{"SC", "300000000001"},
		{"SC", "301000000000"},
		{"SC", "301000000001"},
		{"SC", "310000000000"},
		{"SC", "310000000001"},
	})
	dir := t.TempDir()
	p, emitted := testPartitioner(t, db, dir, 3)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	names := destNames(*emitted)
	want := []string{"SC_300.parquet", "SC_301.parquet", "SC_31.parquet"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("emitted = %v, want %v", names, want)
	}
}

func TestLeavesPartitionRows(t *testing.T) {
	// Every row's quadkey must have exactly one emitted leaf prefix as
	// an ancestor: no overlap, no gaps.
	rows := [][2]string{
		{"KE", "022200000000"}, {"KE", "022200000001"},
		{"KE", "022210000000"}, {"KE", "022210000001"},
		{"KE", "100000000000"},
		{"KE", "133333333333"},
	}
	db := testDB(t, rows)
	dir := t.TempDir()
	p, emitted := testPartitioner(t, db, dir, 3)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	var prefixes []string
	for _, e := range *emitted {
		name := filepath.Base(e.dest)
		prefixes = append(prefixes, name[len("KE_"):len(name)-len(".parquet")])
	}

	for _, r := range rows {
		matches := 0
		for _, prefix := range prefixes {
			if len(r[1]) >= len(prefix) && r[1][:len(prefix)] == prefix {
				matches++
			}
		}
		if matches != 1 {
			t.Errorf("quadkey %s covered by %d leaves %v, want exactly 1", r[1], matches, prefixes)
		}
	}
}

func TestIdempotentRerun(t *testing.T) {
	rows := [][2]string{
		{"SC", "300000000000"},
		{"SC", "310000000000"},
		{"AI", "033000000000"},
	}
	db := testDB(t, rows)
	dir := t.TempDir()

	p, emitted := testPartitioner(t, db, dir, 1)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	firstCount := len(*emitted)
	if firstCount == 0 {
		t.Fatal("first run emitted nothing")
	}

	p2, emitted2 := testPartitioner(t, db, dir, 1)
	if err := p2.Run(context.Background()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	if len(*emitted2) != 0 {
		t.Errorf("second run emitted %d files, want 0 (all skipped)", len(*emitted2))
	}
}

func TestHiveLayout(t *testing.T) {
	db := testDB(t, [][2]string{{"SC", "300000000000"}})
	dir := t.TempDir()

	p, emitted := testPartitioner(t, db, dir, 10)
	p.opts.Hive = true
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(*emitted) != 1 {
		t.Fatalf("emitted %d files, want 1", len(*emitted))
	}
	want := filepath.Join(dir, "country_iso=SC", "SC.parquet")
	if (*emitted)[0].dest != want {
		t.Errorf("dest = %q, want %q", (*emitted)[0].dest, want)
	}
}

func TestShortQuadkeysAreReportedNotEmitted(t *testing.T) {
	// One row has a bare "3" quadkey, shorter than the depth the split
	// reaches. It falls out of every length-2 probe; the run reports it
	// and carries on with the remaining rows.
	db := testDB(t, [][2]string{
		{"SC", "3"},
		{"SC", "300000000000"},
		{"SC", "300000000001"},
		{"SC", "310000000000"},
		{"SC", "310000000001"},
	})
	dir := t.TempDir()
	p, emitted := testPartitioner(t, db, dir, 3)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	names := destNames(*emitted)
	want := []string{"SC_30.parquet", "SC_31.parquet"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("emitted = %v, want %v", names, want)
	}
}
