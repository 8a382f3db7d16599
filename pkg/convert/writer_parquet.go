package convert

import (
	"encoding/binary"
	"fmt"

	"github.com/hangxie/parquet-go/v2/parquet"
	"github.com/hangxie/parquet-go/v2/source/local"
	"github.com/hangxie/parquet-go/v2/writer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"openbuildings/pkg/geoparquet"
)

type footprintRow struct {
	AreaInMeters float64 `parquet:"name=area_in_meters, type=DOUBLE"`
	Confidence   float64 `parquet:"name=confidence, type=DOUBLE"`
	FullPlusCode string  `parquet:"name=full_plus_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Geometry     string  `parquet:"name=geometry, type=BYTE_ARRAY"`
}

func writeParquet(path string, buildings []Building) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(footprintRow), 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	types := map[string]bool{}
	for _, b := range buildings {
		data, err := wkb.Marshal(b.Geometry, binary.LittleEndian)
		if err != nil {
			return fmt.Errorf("failed to encode geometry: %w", err)
		}
		types[geoParquetType(b.Geometry)] = true
		if err := pw.Write(footprintRow{
			AreaInMeters: b.AreaInMeters,
			Confidence:   b.Confidence,
			FullPlusCode: b.FullPlusCode,
			Geometry:     string(data),
		}); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}

	geometryTypes := make([]string, 0, len(types))
	for _, t := range []string{"Polygon", "MultiPolygon"} {
		if types[t] {
			geometryTypes = append(geometryTypes, t)
		}
	}
	if err := geoparquet.AppendGeoMetadata(pw, geometryTypes); err != nil {
		return err
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

func geoParquetType(g orb.Geometry) string {
	if _, ok := g.(orb.MultiPolygon); ok {
		return "MultiPolygon"
	}
	return "Polygon"
}
