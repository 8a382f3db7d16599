package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"openbuildings/pkg/config"
	"openbuildings/pkg/format"
)

// Options configures a conversion run.
type Options struct {
	OutputDir string
	Format    format.Format
	Backend   format.Backend

	// SplitMultis replaces multipolygons with their component polygons,
	// recomputing area and plus code per part.
	SplitMultis bool

	Overwrite bool
	Settings  *config.Settings
}

// Run converts a CSV file, or every CSV in a directory smallest first
// so problems surface before the long conversions start.
func Run(ctx context.Context, input string, opts Options) error {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if !strings.HasSuffix(input, ".csv") {
			return fmt.Errorf("input must be a CSV file or a directory of them: %s", input)
		}
		return processFile(ctx, input, opts)
	}

	files, err := csvFilesBySize(input)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := processFile(ctx, path, opts); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func processFile(ctx context.Context, input string, opts Options) error {
	out, dbPath := outputPaths(input, opts.OutputDir, opts.Format)

	if opts.Overwrite {
		for _, p := range []string{out, dbPath} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	if _, err := os.Stat(out); err == nil {
		slog.Info("output already exists, skipping", "input", input, "output", out)
		return nil
	}

	slog.Info("converting", "input", input, "backend", opts.Backend.String(), "format", opts.Format.String())
	start := time.Now()

	switch opts.Backend {
	case format.BackendDuckDB:
		if err := processDuckDB(ctx, input, dbPath, opts.Format, out, opts.SplitMultis, opts.Settings); err != nil {
			return err
		}
	case format.BackendNative:
		if err := processNative(input, opts.Format, out, opts.SplitMultis, opts.Settings); err != nil {
			return err
		}
	case format.BackendOGR:
		if err := processOGR(ctx, input, opts.Format, out, opts.SplitMultis); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown backend %q", opts.Backend)
	}

	slog.Info("conversion finished", "output", out, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// outputPaths derives the destination and the engine's sidecar database
// from the input name.
func outputPaths(input, outputDir string, f format.Format) (string, string) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(outputDir, stem+"."+f.Ext())
	return out, filepath.Join(outputDir, stem+".duckdb")
}

func csvFilesBySize(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type sized struct {
		path string
		size int64
	}
	var files []sized
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, sized{filepath.Join(dir, e.Name()), info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].size < files[j].size })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}
