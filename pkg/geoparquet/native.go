package geoparquet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hangxie/parquet-go/v2/parquet"
	"github.com/hangxie/parquet-go/v2/reader"
	"github.com/hangxie/parquet-go/v2/source/local"
	"github.com/hangxie/parquet-go/v2/writer"
)

// buildingRow is the columnar schema the partitioning pipeline writes.
// The native finalizer is schema-aware: it only handles this layout, the
// external finalizers handle arbitrary files.
type buildingRow struct {
	ID         *string  `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Level      *int32   `parquet:"name=level, type=INT32, repetitiontype=OPTIONAL"`
	Height     *float64 `parquet:"name=height, type=DOUBLE, repetitiontype=OPTIONAL"`
	NumFloors  *int32   `parquet:"name=numfloors, type=INT32, repetitiontype=OPTIONAL"`
	Class      *string  `parquet:"name=class, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	CountryISO *string  `parquet:"name=country_iso, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Quadkey    *string  `parquet:"name=quadkey, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Geometry   string   `parquet:"name=geometry, type=BYTE_ARRAY"`
}

const readBatch = 64 * 1024

// GeoMetadata is the GeoParquet "geo" file metadata value.
func GeoMetadata(primaryColumn string, geometryTypes []string) (string, error) {
	meta := map[string]any{
		"version":        "1.0.0",
		"primary_column": primaryColumn,
		"columns": map[string]any{
			primaryColumn: map[string]any{
				"encoding":       "WKB",
				"geometry_types": geometryTypes,
			},
		},
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal geo metadata: %w", err)
	}
	return string(data), nil
}

// AppendGeoMetadata attaches the GeoParquet key/value footer entry to a
// writer before WriteStop.
func AppendGeoMetadata(pw *writer.ParquetWriter, geometryTypes []string) error {
	geo, err := GeoMetadata("geometry", geometryTypes)
	if err != nil {
		return err
	}
	pw.Footer.KeyValueMetadata = append(pw.Footer.KeyValueMetadata, &parquet.KeyValue{
		Key:   "geo",
		Value: &geo,
	})
	return nil
}

func rewriteNative(path string, rowGroupSize int) error {
	tmp := tempSibling(path)
	defer os.Remove(tmp)

	if err := copyWithMetadata(path, tmp, rowGroupSize); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s with converted file: %w", path, err)
	}
	return nil
}

func copyWithMetadata(src, dst string, rowGroupSize int) error {
	fr, err := local.NewLocalFileReader(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(buildingRow), 1)
	if err != nil {
		return fmt.Errorf("failed to read parquet %s: %w", src, err)
	}
	defer pr.ReadStop()

	fw, err := local.NewLocalFileWriter(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(buildingRow), 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	if err := AppendGeoMetadata(pw, []string{"Polygon", "MultiPolygon"}); err != nil {
		return err
	}

	total := pr.GetNumRows()
	slog.Debug("rewriting parquet with geo metadata", "path", src, "rows", total)

	// The writer groups by byte size, not row count, so the configured
	// rows-per-group limit is enforced with explicit flushes.
	var inGroup int
	for remaining := total; remaining > 0; {
		n := int64(readBatch)
		if remaining < n {
			n = remaining
		}
		rows := make([]buildingRow, n)
		if err := pr.Read(&rows); err != nil {
			return fmt.Errorf("failed to read rows from %s: %w", src, err)
		}
		for i := range rows {
			if err := pw.Write(rows[i]); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			inGroup++
			if rowGroupSize > 0 && inGroup >= rowGroupSize {
				if err := pw.Flush(true); err != nil {
					return fmt.Errorf("failed to flush row group: %w", err)
				}
				inGroup = 0
			}
		}
		remaining -= n
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finish parquet %s: %w", dst, err)
	}
	return nil
}
