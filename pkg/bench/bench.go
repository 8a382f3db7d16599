// Package bench times the conversion matrix: every requested backend
// against every requested format, on the same input.
package bench

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"openbuildings/pkg/config"
	"openbuildings/pkg/convert"
	"openbuildings/pkg/format"
)

// Result is one cell of the timing matrix.
type Result struct {
	Backend format.Backend
	Format  format.Format
	Elapsed time.Duration
}

// Options configures a benchmark run.
type Options struct {
	OutputDir string
	Backends  []format.Backend
	Formats   []format.Format

	SplitMultis bool
	Settings    *config.Settings
}

// Runner executes the matrix. The conversion function is swappable so
// the matrix logic is testable without real conversions.
type Runner struct {
	convertFn func(ctx context.Context, input string, opts convert.Options) error
}

func New() *Runner {
	return &Runner{convertFn: convert.Run}
}

// Run converts the input once per backend and format pair, overwriting
// previous outputs, and reports the wall time of each pair.
func (r *Runner) Run(ctx context.Context, input string, opts Options) ([]Result, error) {
	results := make([]Result, 0, len(opts.Backends)*len(opts.Formats))
	for _, backend := range opts.Backends {
		for _, f := range opts.Formats {
			start := time.Now()
			err := r.convertFn(ctx, input, convert.Options{
				OutputDir:   opts.OutputDir,
				Format:      f,
				Backend:     backend,
				SplitMultis: opts.SplitMultis,
				Overwrite:   true,
				Settings:    opts.Settings,
			})
			if err != nil {
				return nil, fmt.Errorf("%s to %s: %w", backend.String(), f.String(), err)
			}
			elapsed := time.Since(start)

			// The engine's GeoPackage path is skipped by default, so its
			// timing would only measure the skip.
			if backend == format.BackendDuckDB && f == format.GeoPackage && opts.Settings.SkipDuckGPKG {
				elapsed = 0
			}
			results = append(results, Result{Backend: backend, Format: f, Elapsed: elapsed})
			slog.Debug("benchmarked", "backend", backend.String(), "format", f.String(), "elapsed", elapsed)
		}
	}
	return results, nil
}

// matrix reorganizes results into backend rows and format columns,
// preserving first-seen order.
func matrix(results []Result) (backends []format.Backend, formats []format.Format, cells map[format.Backend]map[format.Format]time.Duration) {
	cells = map[format.Backend]map[format.Format]time.Duration{}
	seenB := map[format.Backend]bool{}
	seenF := map[format.Format]bool{}
	for _, r := range results {
		if !seenB[r.Backend] {
			seenB[r.Backend] = true
			backends = append(backends, r.Backend)
		}
		if !seenF[r.Format] {
			seenF[r.Format] = true
			formats = append(formats, r.Format)
		}
		if cells[r.Backend] == nil {
			cells[r.Backend] = map[format.Format]time.Duration{}
		}
		cells[r.Backend][r.Format] = r.Elapsed
	}
	return backends, formats, cells
}

// WriteTable renders the matrix as an aligned text table with
// minutes:seconds.milliseconds cells.
func WriteTable(w io.Writer, title string, results []Result) error {
	backends, formats, cells := matrix(results)

	fmt.Fprintf(w, "Results for %s\n", title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "process")
	for _, f := range formats {
		fmt.Fprintf(tw, "\t%s", f.String())
	}
	fmt.Fprintln(tw)
	for _, b := range backends {
		fmt.Fprint(tw, b.String())
		for _, f := range formats {
			fmt.Fprintf(tw, "\t%s", FormatDuration(cells[b][f]))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// WriteCSV renders the matrix with one row per backend.
func WriteCSV(w io.Writer, results []Result) error {
	backends, formats, cells := matrix(results)

	cw := csv.NewWriter(w)
	header := []string{"process"}
	for _, f := range formats {
		header = append(header, f.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range backends {
		row := []string{b.String()}
		for _, f := range formats {
			row = append(row, fmt.Sprintf("%.3f", cells[b][f].Seconds()))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON renders the matrix in a columnar layout: row labels, column
// labels, and a data grid of seconds.
func WriteJSON(w io.Writer, results []Result) error {
	backends, formats, cells := matrix(results)

	doc := struct {
		Index   []string    `json:"index"`
		Columns []string    `json:"columns"`
		Data    [][]float64 `json:"data"`
	}{}
	for _, f := range formats {
		doc.Columns = append(doc.Columns, f.String())
	}
	for _, b := range backends {
		doc.Index = append(doc.Index, b.String())
		row := make([]float64, len(formats))
		for i, f := range formats {
			row[i] = cells[b][f].Seconds()
		}
		doc.Data = append(doc.Data, row)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(doc)
}

// FormatDuration renders minutes:seconds.milliseconds.
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	millis := d.Milliseconds() % 1000
	return fmt.Sprintf("%02d:%02d.%03d", minutes, seconds, millis)
}
