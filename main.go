/*
Purpose:
- terrain derivative service

Description:
- Acquires elevation, imagery, and point-cloud data from multiple providers
  and derives terrain analysis products (hillshade, slope, aspect, TPI, LRM,
  color relief, CHM, NDVI) per region.

Releases:
- v1.0.0 - 2026-08-26: initial release

Remarks:
- Usage: terrain-derivative-service <command> [options], see printUsage().
- The region slug ties acquisition and processing together; see metadata.txt
  in each region's output directory.

Links:
- https://pkg.go.dev/github.com/airbusgeo/godal
- https://pkg.go.dev/github.com/tkrajina/gpxgo/gpx
- https://pkg.go.dev/gopkg.in/yaml.v3
- https://pkg.go.dev/gopkg.in/natefinch/lumberjack.v2
*/

// main package
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"gopkg.in/natefinch/lumberjack.v2"
)

// general program info
var (
	progName    = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(filepath.Base(os.Args[0])))
	progVersion = "v1.0.0"
	progDate    = "2026-08-26"
	progPurpose = "terrain derivative service"
	progInfo    = "Acquires elevation data from multiple providers and derives terrain analysis products per region."
)

/*
main starts this program.
*/
func main() {
	// load program configuration (defaults apply when the file is absent)
	progConfigFile := progName + ".yaml"
	config, err := loadProgConfig(progConfigFile)
	if err != nil {
		if !os.IsNotExist(err) && !strings.Contains(err.Error(), "no such file") {
			fmt.Fprintf(os.Stderr, "configuration file invalid, file = [%s]\n", progConfigFile)
			fmt.Fprintf(os.Stderr, "error [%v] at loadProgConfig()\n", err)
			os.Exit(1)
		}
		applyConfigDefaults(&config)
	}
	progConfig = config

	// logging: replacer for logging objects
	replacer := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)   // get source object
			source.File = filepath.Base(source.File) // basepath only
		}
		if a.Key == slog.TimeKey {
			return slog.String("time", a.Value.Time().Format(time.RFC3339Nano)) // local time -> RFC3339Nano
		}
		return a
	}

	// logging: log file output and rotate (with lumberjack package)
	logfile := filepath.Join(progConfig.LogDirectory, progName+".log")
	lumberjackLogger := &lumberjack.Logger{
		Filename: logfile,
		MaxSize:  128,  // megabytes
		MaxAge:   28,   // days
		Compress: true, // gzip rotated log
	}

	// log level
	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLogLevel(progConfig.LogLevel))

	// define logger
	logger := slog.New(slog.NewJSONHandler(lumberjackLogger, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: true, ReplaceAttr: replacer}).WithAttrs([]slog.Attr{slog.String("prog", progName)}))
	slog.SetDefault(logger)

	// log program start
	slog.Info(progPurpose+" started", "name", progName, "version", progVersion, "date", progDate,
		"info", progInfo, "command line", os.Args)

	// initialize GDAL, register all known GDAL drivers
	godal.RegisterAll()

	// wire the service components
	credentials := loadCredentials()
	cache := NewDownloadCache(progConfig.CacheDirectory, progConfig.CacheTTL())
	store := NewRegionStore(progConfig.OutputDirectory, progConfig.InputDirectory)
	registry := NewDownloadRegistry()
	router := NewGeographicRouter(
		NewOpenTopographyAdapter(credentials, progConfig.DownloadTimeout()),
		NewBrazilianElevationAdapter(credentials, progConfig.DownloadTimeout()),
		NewUSGS3DEPAdapter(),
		NewCopernicusSentinel2Adapter(credentials, progConfig.DownloadTimeout()),
		NewORNLDAACAdapter(credentials, progConfig.DownloadTimeout()),
	)
	pipeline := NewPipeline(store)
	orchestrator := NewOrchestrator(router, cache, store, registry)
	orchestrator.SetProcessor(pipeline.Run)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	exitCode := 0
	switch os.Args[1] {
	case "acquire":
		exitCode = runAcquire(orchestrator, store, os.Args[2:])
	case "process":
		exitCode = runProcess(pipeline, os.Args[2:])
	case "list":
		exitCode = runList(store, os.Args[2:])
	case "delete":
		exitCode = runDelete(store, os.Args[2:])
	case "cleanup":
		removed := cache.Cleanup(progConfig.CacheEvictionDays)
		fmt.Printf("removed %d expired cache entries\n", removed)
	case "version":
		fmt.Printf("%s %s (%s)\n", progName, progVersion, progDate)
	default:
		fmt.Fprintf(os.Stderr, "unknown command [%s]\n\n", os.Args[1])
		printUsage()
		exitCode = 1
	}

	// log program end
	logStatistics()
	slog.Info("program finished", "exit code", exitCode)
	os.Exit(exitCode)
}

/*
printUsage writes the command overview.
*/
func printUsage() {
	fmt.Fprintf(os.Stderr, "%s - %s\n\n", progName, progPurpose)
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  %s acquire <lat> <lng> <buffer-km> [region] [sources] [data-type]\n", progName)
	fmt.Fprintf(os.Stderr, "  %s process <region> [all|lrm|chm|svf|tri|roughness]\n", progName)
	fmt.Fprintf(os.Stderr, "  %s list [source-filter] [processed]\n", progName)
	fmt.Fprintf(os.Stderr, "  %s delete <region>\n", progName)
	fmt.Fprintf(os.Stderr, "  %s cleanup\n", progName)
	fmt.Fprintf(os.Stderr, "  %s version\n", progName)
}

/*
stdoutSink streams progress events as JSON lines to stdout and mirrors them
into the structured log.
*/
func stdoutSink() ProgressSink {
	encoder := json.NewEncoder(os.Stdout)
	log := logSink{}
	return sinkFunc(func(event ProgressEvent) {
		_ = encoder.Encode(event)
		log.Emit(event)
	})
}

/*
runAcquire handles the acquire command. SIGINT/SIGTERM cancels the
download; the partial file is removed and the terminal event is cancelled.
*/
func runAcquire(orchestrator *Orchestrator, store *RegionStore, args []string) int {
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "acquire requires <lat> <lng> <buffer-km>")
		return 1
	}
	lat, err1 := strconv.ParseFloat(args[0], 64)
	lng, err2 := strconv.ParseFloat(args[1], 64)
	buffer, err3 := strconv.ParseFloat(args[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Fprintln(os.Stderr, "lat, lng and buffer-km must be decimal numbers")
		return 1
	}

	opts := AcquireOptions{}
	if len(args) > 3 {
		opts.RegionName = args[3]
	}
	if len(args) > 4 && args[4] != "" {
		opts.Sources = strings.Split(args[4], ",")
	}
	if len(args) > 5 {
		opts.DataType = DataType(args[5])
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := orchestrator.Acquire(ctx, lat, lng, buffer, opts, stdoutSink())

	switch {
	case result.Cancelled:
		fmt.Println("acquisition cancelled")
		return 1
	case !result.Success:
		fmt.Fprintln(os.Stderr, "acquisition failed:")
		for _, serr := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s [%s]: %s\n", serr.Source, serr.Kind, serr.Message)
		}
		return 1
	}

	fmt.Printf("acquired %s from %s (%.2f MB)\n", result.FilePath, result.Source, result.FileSizeMB)

	if opts.DataType == DataTypeImagery {
		if err := processSentinel2(store, result.RegionName, result.FilePath); err != nil {
			fmt.Fprintf(os.Stderr, "sentinel-2 processing failed: %v\n", err)
			return 1
		}
	}
	return 0
}

/*
runProcess handles the process command for an already acquired region.
*/
func runProcess(pipeline *Pipeline, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "process requires <region>")
		return 1
	}
	region := args[0]
	product := "all"
	if len(args) > 1 {
		product = args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch product {
	case "all":
		err = pipeline.Run(ctx, region, stdoutSink())
	case "lrm":
		err = pipeline.RunLRM(region, 0, lrmFilterGaussian, true)
	case "chm":
		err = pipeline.RunCHM(region)
	case "svf":
		err = pipeline.RunSVF(region)
	case "tri":
		err = pipeline.RunGridProduct(region, "tri", "TRI", computeTRI)
	case "roughness":
		err = pipeline.RunGridProduct(region, "roughness", "Roughness", computeRoughness)
	default:
		fmt.Fprintf(os.Stderr, "unknown product [%s]\n", product)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "processing failed: %v\n", err)
		return 1
	}
	fmt.Printf("processing complete for region %s\n", region)
	return 0
}

/*
runList handles the list command.
*/
func runList(store *RegionStore, args []string) int {
	sourceFilter := ""
	processedOnly := false
	if len(args) > 0 {
		sourceFilter = args[0]
	}
	if len(args) > 1 && args[1] == "processed" {
		processedOnly = true
	}

	regions, err := store.ListRegions(sourceFilter, processedOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing failed: %v\n", err)
		return 1
	}
	for _, region := range regions {
		center := "deferred"
		if region.CenterLat != nil && region.CenterLng != nil {
			center = fmt.Sprintf("%.4f, %.4f", *region.CenterLat, *region.CenterLng)
		}
		fmt.Printf("%-30s %-16s %s\n", region.Name, region.SourceType, center)
	}
	fmt.Printf("%d regions\n", len(regions))
	return 0
}

/*
runDelete handles the delete command.
*/
func runDelete(store *RegionStore, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "delete requires <region>")
		return 1
	}
	if err := store.DeleteRegion(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "deletion failed: %v\n", err)
		return 1
	}
	fmt.Printf("region %s deleted\n", args[0])
	return 0
}

/*
parseLogLevel parses log level setting from configuration.
*/
func parseLogLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
