package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"openbuildings/pkg/format"
)

// processOGR shells out to ogr2ogr. Splitting multipolygons is not
// supported on this path; shapefiles are exempt because the format does
// not distinguish polygons from multipolygons anyway.
func processOGR(ctx context.Context, input string, f format.Format, out string, split bool) error {
	if split && f != format.Shapefile {
		slog.Info("the ogr backend does not support splitting multipolygons, skipping",
			"input", input)
		return nil
	}

	args := []string{
		"-f", f.GDALDriver(),
		"-select", "confidence,area_in_meters,full_plus_code",
		out, input,
		"-oo", "GEOM_POSSIBLE_NAMES=geometry",
		"-a_srs", "EPSG:4326",
	}
	slog.Debug("running ogr2ogr", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, "ogr2ogr", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ogr2ogr failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
