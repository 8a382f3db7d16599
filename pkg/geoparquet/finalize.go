// Package geoparquet rewrites raw Parquet output (WKB geometry column,
// no geo metadata) into valid GeoParquet. Three interchangeable
// finalizers exist; they produce value-equivalent files and differ only
// in the embedded metadata and the tool doing the work.
package geoparquet

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
)

// Finalizer selects how a raw Parquet file is rewritten.
type Finalizer int

const (
	// None leaves the file as written, WKB column and all.
	None Finalizer = iota
	// GPQ shells out to the gpq utility.
	GPQ
	// Native rewrites the file in-process.
	Native
	// OGR shells out to ogr2ogr. Known non-functional for GeoParquet
	// output upstream; kept because the interface promises it.
	OGR
)

var finalizerNames = map[Finalizer]string{
	None:   "none",
	GPQ:    "gpq",
	Native: "native",
	OGR:    "ogr",
}

func (f Finalizer) String() string { return finalizerNames[f] }

// Parse resolves a finalizer name.
func Parse(name string) (Finalizer, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	for f, n := range finalizerNames {
		if s == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("geo conversion %q is unknown, please choose one of gpq, none, native, ogr", name)
}

// Run rewrites path in place. Every finalizer stages into a temporary
// sibling file and renames on success, so an interrupted run never
// leaves a half-written file under the final name.
func (f Finalizer) Run(path string, rowGroupSize int) error {
	switch f {
	case None:
		slog.Debug("skipping GeoParquet conversion", "path", path)
		return nil
	case GPQ:
		return runGPQ(path)
	case Native:
		return rewriteNative(path, rowGroupSize)
	case OGR:
		return runOGR(path)
	default:
		return fmt.Errorf("unhandled finalizer %d", f)
	}
}

func tempSibling(path string) string {
	return path + "." + uuid.NewString() + ".tmp.parquet"
}

func runGPQ(path string) error {
	tmp := tempSibling(path)
	defer os.Remove(tmp)

	slog.Debug("running gpq convert", "path", path)
	cmd := exec.Command("gpq", "convert", path, tmp)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("gpq convert %s failed: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s with converted file: %w", path, err)
	}
	return nil
}

func runOGR(path string) error {
	tmp := tempSibling(path)
	defer os.Remove(tmp)

	cmd := exec.Command("ogr2ogr",
		"-f", "Parquet",
		tmp, path,
		"-oo", "GEOM_POSSIBLE_NAMES=geometry",
	)
	slog.Debug("running ogr2ogr", "args", strings.Join(cmd.Args, " "))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ogr2ogr %s failed: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s with converted file: %w", path, err)
	}
	return nil
}
