package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// pipelineTask is one derivative in the fixed task list.
type pipelineTask struct {
	Name   string
	Subdir string
}

// pipelineTasks is the fixed task list for a successful elevation
// acquisition. Order is stable; the pipeline runs them sequentially.
var pipelineTasks = []pipelineTask{
	{Name: "hillshade_315", Subdir: "Hillshade"},
	{Name: "hillshade_225", Subdir: "Hillshade"},
	{Name: "hillshade_multi_rgb", Subdir: "HillshadeRgb"},
	{Name: "slope", Subdir: "Slope"},
	{Name: "aspect", Subdir: "Aspect"},
	{Name: "tpi", Subdir: "TPI"},
	{Name: "color_relief", Subdir: "ColorRelief"},
}

// Pipeline runs the derivative task list for a region.
type Pipeline struct {
	store            *RegionStore
	overlayThreshold int64
}

/*
NewPipeline creates the processing pipeline.
*/
func NewPipeline(store *RegionStore) *Pipeline {
	return &Pipeline{
		store:            store,
		overlayThreshold: progConfig.OverlayPixelThreshold,
	}
}

/*
cleanPNGPath returns the clean PNG location of a product. Clean PNGs and
their world-file sidecars live under lidar/png_outputs/, the GeoTIFFs stay
in their product subdirectories.
*/
func (p *Pipeline) cleanPNGPath(slug, baseName string) string {
	return filepath.Join(p.store.LidarDir(slug), "png_outputs", baseName+".png")
}

/*
decoratedPNGPath returns the decorated (legend-bearing) PNG location under
lidar/png_outputs/matplotlib/.
*/
func (p *Pipeline) decoratedPNGPath(slug, baseName string) string {
	return filepath.Join(p.store.LidarDir(slug), "png_outputs", "matplotlib", baseName+".png")
}

/*
ensurePNGOutputDirs creates the PNG output directories of a region.
*/
func (p *Pipeline) ensurePNGOutputDirs(slug string) error {
	dir := filepath.Join(p.store.LidarDir(slug), "png_outputs", "matplotlib")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error [%w] at os.MkdirAll(), dir %s", err, dir)
	}
	return nil
}

/*
elevationInput locates the region's DTM raster under lidar/DTM/.
*/
func (p *Pipeline) elevationInput(slug string) (string, error) {
	pattern := filepath.Join(p.store.LidarDir(slug), "DTM", "*.tif")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no DTM raster found for region [%s]", slug)
	}
	return matches[0], nil
}

/*
qualityInput substitutes the cropped point cloud for the raw DTM when an
earlier cleaning stage produced one. The returned suffix ("_clean" or "")
is appended to all derivative filenames.
*/
func (p *Pipeline) qualityInput(slug, rawDTM string) (string, string) {
	cropped, ok := p.store.CroppedLAZPath(slug)
	if !ok {
		return rawDTM, ""
	}

	cleanDTM := filepath.Join(p.store.LidarDir(slug), "cropped", slug+"_DTM_clean.tif")
	if !fileExists(cleanDTM) || newerThan(cropped, cleanDTM) {
		if err := dtmFromLAZ(cropped, cleanDTM, 0.5); err != nil {
			slog.Warn("clean DTM generation failed, using raw DTM",
				"region", slug, "cropped", cropped, "error", err)
			return rawDTM, ""
		}
	}
	slog.Info("quality mode active", "region", slug, "clean dtm", cleanDTM)
	return cleanDTM, "_clean"
}

/*
Run executes the task list for a region. A failed task is recorded and the
pipeline continues; the terminal event reports successful/total. Context
cancellation stops between tasks.
*/
func (p *Pipeline) Run(ctx context.Context, slug string, sink ProgressSink) error {
	if sink == nil {
		sink = nopSink{}
	}

	input, err := p.elevationInput(slug)
	if err != nil {
		sink.Emit(ProgressEvent{Type: EventProcessingError, Error: err.Error()})
		return err
	}
	input, suffix := p.qualityInput(slug, input)

	grid, info, err := readElevationGrid(input)
	if err != nil {
		sink.Emit(ProgressEvent{Type: EventProcessingError, Error: err.Error()})
		return err
	}
	if err := p.ensurePNGOutputDirs(slug); err != nil {
		sink.Emit(ProgressEvent{Type: EventProcessingError, Error: err.Error()})
		return err
	}

	total := len(pipelineTasks)
	successful := 0
	var failures []string

	for i, task := range pipelineTasks {
		if ctx.Err() != nil {
			message := fmt.Sprintf("processing cancelled after %d/%d tasks", successful, total)
			sink.Emit(ProgressEvent{Type: EventProcessingError, Error: message})
			return ctx.Err()
		}

		sink.Emit(ProgressEvent{
			Type:     EventProcessingProgress,
			Message:  task.Name,
			Progress: i * 100 / total,
		})

		outputDir := filepath.Join(p.store.LidarDir(slug), task.Subdir)
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", task.Name, err))
			continue
		}
		baseName := fmt.Sprintf("%s_%s%s", slug, task.Name, suffix)
		tiffFile := filepath.Join(outputDir, baseName+".tif")

		if fileExists(tiffFile) && newerThan(tiffFile, input) {
			slog.Debug("derivative up to date, skipping", "region", slug, "task", task.Name)
			successful++
			continue
		}

		if err := p.runTask(task, grid, info, tiffFile, p.cleanPNGPath(slug, baseName)); err != nil {
			statistics.ProductsFailed.Add(1)
			failures = append(failures, fmt.Sprintf("%s: %v", task.Name, err))
			slog.Warn("derivative failed, continuing", "region", slug, "task", task.Name, "error", err)
			continue
		}

		if _, err := generateOverlayPNG(tiffFile, p.overlayThreshold); err != nil {
			slog.Warn("overlay generation failed", "file", tiffFile, "error", err)
		}

		statistics.ProductsGenerated.Add(1)
		successful++
	}

	message := fmt.Sprintf("%d/%d derivatives generated", successful, total)
	if len(failures) > 0 {
		sink.Emit(ProgressEvent{
			Type:  EventProcessingError,
			Error: fmt.Sprintf("%s; failed: %s", message, strings.Join(failures, "; ")),
		})
		return fmt.Errorf("pipeline for region [%s] finished with failures: %s", slug, strings.Join(failures, "; "))
	}

	sink.Emit(ProgressEvent{Type: EventProcessingCompleted, Message: message, Progress: 100})
	slog.Info("processing complete", "region", slug, "successful", successful, "total", total)
	return nil
}

/*
runTask computes one derivative and writes its GeoTIFF into the product
subdirectory plus the clean PNG visualization with a world file sidecar
under png_outputs/.
*/
func (p *Pipeline) runTask(task pipelineTask, grid *Grid, info rasterInfo, tiffFile, pngFile string) error {
	switch task.Name {
	case "hillshade_315", "hillshade_225":
		azimuth := 315.0
		if task.Name == "hillshade_225" {
			azimuth = 225.0
		}
		shade := computeHillshade(grid, azimuth, defaultHillshadeAltitude, defaultHillshadeZFactor)
		if err := writeByteGeoTIFF(tiffFile, shade, grid.Width, grid.Height, info); err != nil {
			return err
		}
		if err := writeGrayPNG(pngFile, shade, grid.Width, grid.Height); err != nil {
			return err
		}

	case "hillshade_multi_rgb":
		r, g, b := computeMultiHillshade(grid, defaultHillshadeAltitude, defaultHillshadeZFactor)
		if err := writeRGBGeoTIFF(tiffFile, r, g, b, grid.Width, grid.Height, info); err != nil {
			return err
		}
		if err := writeRGBPNG(pngFile, r, g, b, grid.Width, grid.Height); err != nil {
			return err
		}

	case "slope":
		slope := computeSlope(grid, defaultHillshadeZFactor)
		if err := writeGridGeoTIFF(tiffFile, slope, info); err != nil {
			return err
		}
		lo, hi, _ := percentileClip(slope.Values, 2, 98)
		if err := writeGridPNG(pngFile, slope, viridisColormap, lo, hi); err != nil {
			return err
		}

	case "aspect":
		aspect := computeAspect(grid)
		if err := writeGridGeoTIFF(tiffFile, aspect, info); err != nil {
			return err
		}
		if err := writeGridPNG(pngFile, aspect, viridisColormap, 0, 360); err != nil {
			return err
		}

	case "tpi":
		tpi := computeTPI(grid, defaultTPIRadius)
		if err := writeGridGeoTIFF(tiffFile, tpi, info); err != nil {
			return err
		}
		lo, hi, _ := percentileClip(tpi.Values, 2, 98)
		if err := writeGridPNG(pngFile, tpi, cividisColormap, lo, hi); err != nil {
			return err
		}

	case "color_relief":
		r, g, b := computeColorRelief(grid)
		if err := writeRGBGeoTIFF(tiffFile, r, g, b, grid.Width, grid.Height, info); err != nil {
			return err
		}
		if err := writeRGBPNG(pngFile, r, g, b, grid.Width, grid.Height); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown pipeline task [%s]", task.Name)
	}

	return writeWorldFile(pngFile, info.GeoTransform, false)
}

/*
RunLRM computes the local relief model for a region with the adaptive
window and writes GeoTIFF plus normalized PNG.
*/
func (p *Pipeline) RunLRM(slug string, window int, filter lrmFilter, normalize bool) error {
	input, err := p.elevationInput(slug)
	if err != nil {
		return err
	}
	input, suffix := p.qualityInput(slug, input)

	grid, info, err := readElevationGrid(input)
	if err != nil {
		return err
	}

	lrm := computeLRM(grid, window, filter, normalize)

	outputDir := filepath.Join(p.store.LidarDir(slug), "LRM")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("error [%w] at os.MkdirAll(), dir %s", err, outputDir)
	}
	if err := p.ensurePNGOutputDirs(slug); err != nil {
		return err
	}
	baseName := fmt.Sprintf("%s_lrm%s", slug, suffix)
	tiffFile := filepath.Join(outputDir, baseName+".tif")
	pngFile := p.cleanPNGPath(slug, baseName)

	if err := writeGridGeoTIFF(tiffFile, lrm, info); err != nil {
		return err
	}
	lo, hi := -1.0, 1.0
	if !normalize {
		lo, hi, _ = percentileClip(lrm.Values, 2, 98)
	}
	if err := writeGridPNG(pngFile, lrm, cividisColormap, lo, hi); err != nil {
		return err
	}
	statistics.ProductsGenerated.Add(1)
	return writeWorldFile(pngFile, info.GeoTransform, false)
}

/*
RunGridProduct computes a simple single-grid derivative (TRI, roughness)
into its own lidar subdirectory.
*/
func (p *Pipeline) RunGridProduct(slug, name, subdir string, compute func(*Grid) *Grid) error {
	input, err := p.elevationInput(slug)
	if err != nil {
		return err
	}
	input, suffix := p.qualityInput(slug, input)

	grid, info, err := readElevationGrid(input)
	if err != nil {
		return err
	}
	product := compute(grid)

	outputDir := filepath.Join(p.store.LidarDir(slug), subdir)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("error [%w] at os.MkdirAll(), dir %s", err, outputDir)
	}
	if err := p.ensurePNGOutputDirs(slug); err != nil {
		return err
	}
	baseName := fmt.Sprintf("%s_%s%s", slug, name, suffix)
	tiffFile := filepath.Join(outputDir, baseName+".tif")
	pngFile := p.cleanPNGPath(slug, baseName)

	if err := writeGridGeoTIFF(tiffFile, product, info); err != nil {
		return err
	}
	lo, hi, _ := percentileClip(product.Values, 2, 98)
	if err := writeGridPNG(pngFile, product, viridisColormap, lo, hi); err != nil {
		return err
	}
	statistics.ProductsGenerated.Add(1)
	return writeWorldFile(pngFile, info.GeoTransform, false)
}

/*
RunCHM derives the canopy height model for a region from its DTM and the
externally provided DSM under lidar/DSM/.
*/
func (p *Pipeline) RunCHM(slug string) error {
	dtmFile, err := p.elevationInput(slug)
	if err != nil {
		return err
	}

	var dsmFile string
	matches, _ := filepath.Glob(filepath.Join(p.store.LidarDir(slug), "DSM", "*.tif"))
	if len(matches) > 0 {
		dsmFile = matches[0]
	}

	outputDir := filepath.Join(p.store.LidarDir(slug), "CHM")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("error [%w] at os.MkdirAll(), dir %s", err, outputDir)
	}
	if err := p.ensurePNGOutputDirs(slug); err != nil {
		return err
	}
	chmTIFF := filepath.Join(outputDir, slug+"_chm.tif")
	decoratedPNG := p.decoratedPNGPath(slug, "CHM_matplot")
	cleanPNG := p.cleanPNGPath(slug, "CHM")

	if err := generateCHM(dtmFile, dsmFile, chmTIFF, decoratedPNG, cleanPNG); err != nil {
		statistics.ProductsFailed.Add(1)
		return err
	}
	statistics.ProductsGenerated.Add(1)
	return nil
}

/*
RunSVF visualizes an externally computed sky view factor raster found
under lidar/SVF/.
*/
func (p *Pipeline) RunSVF(slug string) error {
	svfDir := filepath.Join(p.store.LidarDir(slug), "SVF")
	matches, _ := filepath.Glob(filepath.Join(svfDir, "*.tif"))
	if len(matches) == 0 {
		return fmt.Errorf("no SVF raster found for region [%s]", slug)
	}
	if err := p.ensurePNGOutputDirs(slug); err != nil {
		return err
	}
	decoratedPNG := p.decoratedPNGPath(slug, slug+"_svf_matplot")
	cleanPNG := p.cleanPNGPath(slug, slug+"_svf")

	if err := visualizeSVF(matches[0], decoratedPNG, cleanPNG); err != nil {
		statistics.ProductsFailed.Add(1)
		return err
	}
	statistics.ProductsGenerated.Add(1)
	return nil
}

/*
newerThan reports whether file a was modified after file b.
*/
func newerThan(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return true
	}
	return infoA.ModTime().After(infoB.ModTime())
}
