// Command openbuildings extracts, converts and partitions building
// footprint datasets distributed as cloud-native GeoParquet.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"

	"openbuildings/pkg/aoi"
	"openbuildings/pkg/bench"
	"openbuildings/pkg/config"
	"openbuildings/pkg/convert"
	"openbuildings/pkg/download"
	"openbuildings/pkg/duck"
	"openbuildings/pkg/enrich"
	"openbuildings/pkg/format"
	"openbuildings/pkg/geoparquet"
	"openbuildings/pkg/logging"
	"openbuildings/pkg/partition"
	"openbuildings/pkg/query"
	"openbuildings/pkg/version"
)

const defaultConfigPath = "configs/openbuildings.yaml"

// countryQuadURL is the archive the bare sql verb targets, a country
// and quadkey partitioned Overture distribution.
const countryQuadURL = "s3://us-west-2.opendata.source.coop/cholmes/overture/geoparquet-country-quad-2/*.parquet"

func main() {
	// Environment overrides (AWS credentials and the like) may live in a
	// local .env file.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s COMMAND [options]

Commands:
  get-buildings  Extract buildings for a GeoJSON area of interest
  convert        Convert footprint CSV dumps to GIS formats
  benchmark      Time the conversion backends against each other
  add-columns    Add quadkey and country columns to Overture parquet
  partition      Split an enriched database into partitioned GeoParquet
  quadkey        Print the covering quadkey of a GeoJSON AOI
  wkt            Print the WKT of a GeoJSON AOI
  sql            Print the extraction SQL for a GeoJSON AOI
  quad2json      Print the GeoJSON footprint of a quadkey
  init-config    Write a default config file
  version        Print the version
`, filepath.Base(os.Args[0]))
}

func dispatch(ctx context.Context, verb string, args []string) error {
	switch verb {
	case "quadkey":
		return cmdQuadkey(args)
	case "wkt":
		return cmdWKT(args)
	case "sql":
		return cmdSQL(args)
	case "quad2json":
		return cmdQuad2JSON(args)
	case "get-buildings":
		return cmdGetBuildings(ctx, args)
	case "convert":
		return cmdConvert(ctx, args)
	case "benchmark":
		return cmdBenchmark(ctx, args)
	case "add-columns":
		return cmdAddColumns(ctx, args)
	case "partition":
		return cmdPartition(ctx, args)
	case "init-config":
		return cmdInitConfig(args)
	case "version":
		fmt.Println(version.Version)
		return nil
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", verb)
	}
}

// readAOI loads the GeoJSON argument, falling back to stdin so the AOI
// can be piped in.
func readAOI(args []string) (*geojson.Feature, error) {
	if len(args) > 0 {
		return aoi.ReadFile(args[0])
	}
	return aoi.Read(os.Stdin)
}

func cmdQuadkey(args []string) error {
	fs := flag.NewFlagSet("quadkey", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	feature, err := readAOI(fs.Args())
	if err != nil {
		return err
	}
	qk, err := aoi.Quadkey(feature)
	if err != nil {
		return err
	}
	fmt.Println(qk)
	return nil
}

func cmdWKT(args []string) error {
	fs := flag.NewFlagSet("wkt", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	feature, err := readAOI(fs.Args())
	if err != nil {
		return err
	}
	wkt, err := aoi.WKT(feature)
	if err != nil {
		return err
	}
	fmt.Println(wkt)
	return nil
}

func cmdSQL(args []string) error {
	fs := flag.NewFlagSet("sql", flag.ContinueOnError)
	onlyQuadkey := fs.Bool("only-quadkey", false, "include only the quadkey in the WHERE clause")
	local := fs.Bool("local", false, "query local parquet files instead of the S3 archive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	feature, err := readAOI(fs.Args())
	if err != nil {
		return err
	}

	qk, err := aoi.Quadkey(feature)
	if err != nil {
		return err
	}
	wkt, err := aoi.WKT(feature)
	if err != nil {
		return err
	}

	src := config.SourceConfig{BaseURL: countryQuadURL}
	if *local {
		src.BaseURL = "*.parquet"
	}
	filter := query.Filter{Quadkey: qk, WKT: wkt, QuadkeyOnly: *onlyQuadkey}
	fmt.Println(query.Preview(src, filter, "buildings.fgb", format.FlatGeobuf))
	return nil
}

func cmdQuad2JSON(args []string) error {
	fs := flag.NewFlagSet("quad2json", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("quad2json requires exactly one quadkey argument")
	}
	feature, err := aoi.QuadkeyGeoJSON(fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(feature, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func cmdGetBuildings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get-buildings", flag.ContinueOnError)
	source := fs.String("source", "overture", "dataset to query (google, overture)")
	formatName := fs.String("format", "", "output format, overrides the destination extension")
	countryISO := fs.String("country-iso", "", "two-letter country code to narrow the query")
	generateSQL := fs.Bool("generate-sql", false, "print the SQL instead of running it")
	overwrite := fs.Bool("overwrite", false, "overwrite the destination file if it exists")
	silent := fs.Bool("silent", false, "suppress log output")
	verbose := fs.Bool("verbose", false, "print detailed logs")
	configPath := fs.String("config", defaultConfigPath, "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*verbose, *silent)

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	var aoiArgs []string
	dst := "buildings.json"
	switch fs.NArg() {
	case 0:
	case 1:
		aoiArgs = fs.Args()[:1]
	case 2:
		aoiArgs = fs.Args()[:1]
		dst = fs.Arg(1)
	default:
		return fmt.Errorf("get-buildings takes at most a GeoJSON file and a destination")
	}

	feature, err := readAOI(aoiArgs)
	if err != nil {
		return err
	}
	return download.Run(ctx, feature, download.Options{
		Source:      *source,
		Dst:         dst,
		FormatName:  *formatName,
		CountryISO:  *countryISO,
		Overwrite:   *overwrite,
		GenerateSQL: *generateSQL,
		Settings:    settings,
	})
}

func cmdConvert(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	formatName := fs.String("format", "fgb", "output format (fgb, parquet, shp, gpkg, geojson)")
	backendName := fs.String("backend", "duckdb", "processing backend (duckdb, native, ogr)")
	skipSplit := fs.Bool("skip-split-multis", false, "keep multipolygons instead of splitting them")
	overwrite := fs.Bool("overwrite", false, "overwrite existing outputs")
	verbose := fs.Bool("verbose", false, "print detailed logs")
	configPath := fs.String("config", defaultConfigPath, "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*verbose, false)

	if fs.NArg() != 2 {
		return fmt.Errorf("convert requires an input path and an output directory")
	}
	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	f, err := format.Parse(*formatName)
	if err != nil {
		return err
	}
	backend, err := format.ParseBackend(*backendName)
	if err != nil {
		return err
	}
	return convert.Run(ctx, fs.Arg(0), convert.Options{
		OutputDir:   fs.Arg(1),
		Format:      f,
		Backend:     backend,
		SplitMultis: !*skipSplit,
		Overwrite:   *overwrite,
		Settings:    settings,
	})
}

func cmdBenchmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	backendsArg := fs.String("backends", "duckdb,native,ogr", "comma-separated backends to time")
	formatsArg := fs.String("formats", "fgb,parquet,shp,gpkg", "comma-separated formats to time")
	outputArg := fs.String("output-format", "ascii", "comma-separated report formats (ascii, csv, json)")
	skipSplit := fs.Bool("skip-split-multis", false, "keep multipolygons instead of splitting them")
	verbose := fs.Bool("verbose", false, "print detailed logs")
	configPath := fs.String("config", defaultConfigPath, "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*verbose, false)

	if fs.NArg() != 2 {
		return fmt.Errorf("benchmark requires an input path and an output directory")
	}
	input, outputDir := fs.Arg(0), fs.Arg(1)

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	var backends []format.Backend
	for _, name := range strings.Split(*backendsArg, ",") {
		b, err := format.ParseBackend(name)
		if err != nil {
			return err
		}
		backends = append(backends, b)
	}
	var formats []format.Format
	for _, name := range strings.Split(*formatsArg, ",") {
		f, err := format.Parse(name)
		if err != nil {
			return err
		}
		formats = append(formats, f)
	}

	results, err := bench.New().Run(ctx, input, bench.Options{
		OutputDir:   outputDir,
		Backends:    backends,
		Formats:     formats,
		SplitMultis: !*skipSplit,
		Settings:    settings,
	})
	if err != nil {
		return err
	}

	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	for _, kind := range strings.Split(*outputArg, ",") {
		switch strings.TrimSpace(kind) {
		case "ascii":
			if err := bench.WriteTable(os.Stdout, base, results); err != nil {
				return err
			}
		case "csv":
			if err := writeReport(filepath.Join(outputDir, stem+"_benchmark.csv"), results, bench.WriteCSV); err != nil {
				return err
			}
		case "json":
			if err := writeReport(filepath.Join(outputDir, stem+"_benchmark.json"), results, bench.WriteJSON); err != nil {
				return err
			}
		default:
			return fmt.Errorf("output format %q is unknown, please choose one of ascii, csv, json", kind)
		}
	}
	return nil
}

func writeReport(path string, results []bench.Result, write func(w io.Writer, results []bench.Result) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return write(f, results)
}

func cmdAddColumns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-columns", flag.ContinueOnError)
	countries := fs.String("countries", "", "parquet file of country boundaries")
	addQuadkey := fs.Bool("quadkey", true, "add a level-12 quadkey column")
	addCountry := fs.Bool("country-iso", false, "add a country_iso column from the boundaries file")
	overwrite := fs.Bool("overwrite", false, "reprocess inputs whose outputs already exist")
	verbose := fs.Bool("verbose", false, "print detailed logs")
	configPath := fs.String("config", defaultConfigPath, "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*verbose, false)

	if fs.NArg() != 2 {
		return fmt.Errorf("add-columns requires an input path and an output directory")
	}
	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	return enrich.Run(ctx, fs.Arg(0), enrich.Options{
		OutputDir:     fs.Arg(1),
		CountriesPath: *countries,
		AddQuadkey:    *addQuadkey,
		AddCountryISO: *addCountry,
		Overwrite:     *overwrite,
		Settings:      settings,
	})
}

func cmdPartition(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("partition", flag.ContinueOnError)
	hive := fs.Bool("hive", false, "write hive-style country_iso=XX folders")
	table := fs.String("table", "buildings", "source table name")
	maxPerFile := fs.Int64("max-per-file", 0, "row threshold before a partition is split further (0 uses the config value)")
	verbose := fs.Bool("verbose", false, "print detailed logs")
	configPath := fs.String("config", defaultConfigPath, "path to the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*verbose, false)

	if fs.NArg() != 2 {
		return fmt.Errorf("partition requires a database path and an output directory")
	}
	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	finalize, err := geoparquet.Parse(settings.Finalizer)
	if err != nil {
		return err
	}
	limit := int64(settings.MaxPerFile)
	if *maxPerFile > 0 {
		limit = *maxPerFile
	}

	db, err := duck.Open(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	defer db.Close()

	return partition.New(db, partition.Options{
		OutputDir:    fs.Arg(1),
		MaxPerFile:   limit,
		RowGroupSize: settings.RowGroupSize,
		Hive:         *hive,
		TableName:    *table,
		Finalize:     finalize,
	}).Run(ctx)
}

func cmdInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to write the config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.GenerateDefault(*configPath); err != nil {
		return err
	}
	fmt.Printf("Config file generated: %s\n", *configPath)
	return nil
}
