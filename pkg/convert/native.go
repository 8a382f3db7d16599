package convert

import (
	"fmt"
	"log/slog"

	"openbuildings/pkg/config"
	"openbuildings/pkg/format"
)

type formatWriter func(path string, buildings []Building) error

func writerFor(f format.Format) (formatWriter, error) {
	switch f {
	case format.GeoJSON:
		return writeGeoJSON, nil
	case format.Shapefile:
		return writeShapefile, nil
	case format.GeoPackage:
		return writeGeoPackage, nil
	case format.FlatGeobuf:
		return writeFlatGeobuf, nil
	case format.GeoParquet:
		return writeParquet, nil
	default:
		return nil, fmt.Errorf("no writer for format %q", f)
	}
}

// processNative converts one CSV entirely in-process.
func processNative(input string, f format.Format, out string, split bool, _ *config.Settings) error {
	buildings, err := ReadCSV(input)
	if err != nil {
		return err
	}
	slog.Debug("loaded rows", "count", len(buildings))

	if split {
		buildings = Split(buildings)
		slog.Debug("rows after split", "count", len(buildings))
	}

	write, err := writerFor(f)
	if err != nil {
		return err
	}
	return write(out, buildings)
}
