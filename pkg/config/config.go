// Package config holds the explicit runtime settings for the toolkit.
// Everything that used to be a process-wide toggle (compression codec,
// GeoParquet conversion, GeoPackage skip) lives here and is passed into
// each operation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one remote GeoParquet archive.
type SourceConfig struct {
	BaseURL          string `yaml:"base_url"`
	HivePartitioning bool   `yaml:"hive_partitioning"`
}

// Settings is the full configuration.
type Settings struct {
	Sources map[string]SourceConfig `yaml:"sources"`

	// Compression is the Parquet codec; snappy and gzip work across all
	// backends, zstd only with the analytical engine.
	Compression string `yaml:"compression"`

	// Finalizer names the GeoParquet finalizer applied to raw Parquet
	// output: gpq, native, ogr or none.
	Finalizer string `yaml:"finalizer"`

	// SkipDuckGPKG skips the analytical engine's GeoPackage writer, which
	// is pathologically slow and would skew benchmark results.
	SkipDuckGPKG bool `yaml:"skip_duck_gpkg"`

	// MaxPerFile is the row threshold above which a partition is split by
	// quadkey prefix.
	MaxPerFile int `yaml:"max_per_file"`

	// RowGroupSize is the Parquet row group size for rewritten files.
	RowGroupSize int `yaml:"row_group_size"`
}

// Default returns the settings used when no config file is present.
func Default() *Settings {
	return &Settings{
		Sources: map[string]SourceConfig{
			"google": {
				BaseURL:          "s3://us-west-2.opendata.source.coop/google-research-open-buildings/geoparquet-by-country/*/*.parquet",
				HivePartitioning: true,
			},
			"overture": {
				BaseURL:          "s3://us-west-2.opendata.source.coop/cholmes/overture/geoparquet-country-quad-hive/*/*.parquet",
				HivePartitioning: true,
			},
		},
		Compression:  "snappy",
		Finalizer:    "gpq",
		SkipDuckGPKG: true,
		MaxPerFile:   10000000,
		RowGroupSize: 10000,
	}
}

// Load reads settings from the given path, merged over the defaults.
// A missing file is not an error; the defaults are returned as-is.
func Load(path string) (*Settings, error) {
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the settings to the path.
func Save(path string, cfg *Settings) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte("# openbuildings configuration\n\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, Default())
}

// Source returns the archive settings for a named source.
func (s *Settings) Source(name string) (SourceConfig, error) {
	src, ok := s.Sources[name]
	if !ok {
		names := make([]string, 0, len(s.Sources))
		for n := range s.Sources {
			names = append(names, n)
		}
		return SourceConfig{}, fmt.Errorf("source %q is unknown, please choose one of %v", name, names)
	}
	return src, nil
}
