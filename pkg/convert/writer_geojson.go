package convert

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

func writeGeoJSON(path string, buildings []Building) error {
	fc := geojson.NewFeatureCollection()
	for _, b := range buildings {
		f := geojson.NewFeature(b.Geometry)
		f.Properties["area_in_meters"] = b.AreaInMeters
		f.Properties["confidence"] = b.Confidence
		f.Properties["full_plus_code"] = b.FullPlusCode
		fc.Append(f)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
