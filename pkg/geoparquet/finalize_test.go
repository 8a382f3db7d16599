package geoparquet

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hangxie/parquet-go/v2/reader"
	"github.com/hangxie/parquet-go/v2/source/local"
	"github.com/hangxie/parquet-go/v2/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Finalizer
		wantErr bool
	}{
		{"gpq", GPQ, false},
		{"GPQ", GPQ, false},
		{"none", None, false},
		{"native", Native, false},
		{"ogr", OGR, false},
		{"pandas", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "Parse(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "Parse(%q)", tt.in)
		assert.Equal(t, tt.want, got, "Parse(%q)", tt.in)
	}
}

func TestGeoMetadata(t *testing.T) {
	meta, err := GeoMetadata("geometry", []string{"Polygon"})
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(meta), &parsed))
	assert.Equal(t, "geometry", parsed["primary_column"])

	columns := parsed["columns"].(map[string]any)
	geom := columns["geometry"].(map[string]any)
	assert.Equal(t, "WKB", geom["encoding"])
}

func writeFixture(t *testing.T, path string, rows []buildingRow) {
	t.Helper()
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewParquetWriter(fw, new(buildingRow), 1)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, pw.Write(r))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}

func strPtr(s string) *string { return &s }

func TestNativeRewriteAttachesMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SC_30.parquet")
	rows := []buildingRow{
		{ID: strPtr("a"), CountryISO: strPtr("SC"), Quadkey: strPtr("301001330310"), Geometry: "\x01\x03"},
		{ID: strPtr("b"), CountryISO: strPtr("SC"), Quadkey: strPtr("301001330311"), Geometry: "\x01\x03"},
	}
	writeFixture(t, path, rows)

	require.NoError(t, Native.Run(path, 0))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(buildingRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.EqualValues(t, 2, pr.GetNumRows())

	got := make([]buildingRow, 2)
	require.NoError(t, pr.Read(&got))
	assert.Equal(t, "301001330310", *got[0].Quadkey)

	var geo string
	for _, kv := range pr.Footer.KeyValueMetadata {
		if kv.GetKey() == "geo" {
			geo = kv.GetValue()
		}
	}
	require.NotEmpty(t, geo, "geo footer metadata missing")
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(geo), &parsed))
	assert.Equal(t, "geometry", parsed["primary_column"])
}

func TestNativeRewriteHonorsRowGroupSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SC_30.parquet")
	rows := make([]buildingRow, 5)
	for i := range rows {
		rows[i] = buildingRow{ID: strPtr(string(rune('a' + i))), Geometry: "\x01\x03"}
	}
	writeFixture(t, path, rows)

	require.NoError(t, Native.Run(path, 2))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(buildingRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.EqualValues(t, 5, pr.GetNumRows())
	// 5 rows at 2 per group: two full groups plus the remainder.
	assert.Len(t, pr.Footer.RowGroups, 3)
}

func TestNoneLeavesFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.parquet")
	writeFixture(t, path, []buildingRow{{Geometry: "\x01"}})
	require.NoError(t, None.Run(path, 0))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(buildingRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.EqualValues(t, 1, pr.GetNumRows())
}
