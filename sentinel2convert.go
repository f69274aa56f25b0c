package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
)

// sentinel2BandNames maps the band order of the downloaded composite to
// the derivative filenames.
var sentinel2BandNames = []string{"Blue", "Green", "Red", "NIR"}

/*
extractSentinel2Bands splits the four-band Sentinel-2 composite into
single-band GeoTIFFs (Blue/Green/Red/NIR.tif) under the region's
sentinel2 input directory. Returns the written file paths by band name.
*/
func extractSentinel2Bands(compositeFile, sentinel2Dir string) (map[string]string, error) {
	dataset, err := godal.Open(compositeFile)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at godal.Open(), file %s", err, compositeFile)
	}
	defer dataset.Close()

	structure := dataset.Structure()
	width := structure.SizeX
	height := structure.SizeY

	gt, err := dataset.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("error [%w] at dataset.GeoTransform()", err)
	}
	info := rasterInfo{GeoTransform: gt, Width: width, Height: height}
	if srs := dataset.SpatialRef(); srs != nil {
		if wkt, werr := srs.WKT(); werr == nil {
			info.ProjectionWKT = wkt
		}
		srs.Close()
	}

	bands := dataset.Bands()
	if len(bands) < len(sentinel2BandNames) {
		return nil, fmt.Errorf("composite [%s] has %d bands, expected %d",
			compositeFile, len(bands), len(sentinel2BandNames))
	}

	if err := os.MkdirAll(sentinel2Dir, 0o755); err != nil {
		return nil, fmt.Errorf("error [%w] at os.MkdirAll(), dir %s", err, sentinel2Dir)
	}

	pixelSizeX, pixelSizeY := pixelSizeMeters(gt, height)
	written := make(map[string]string, len(sentinel2BandNames))
	for i, name := range sentinel2BandNames {
		buffer := make([]int16, width*height)
		if err := bands[i].Read(0, 0, buffer, width, height); err != nil {
			return nil, fmt.Errorf("error [%w] at band.Read(), band %d", err, i+1)
		}

		grid := NewGrid(width, height, pixelSizeX, pixelSizeY)
		for j, v := range buffer {
			grid.Values[j] = float64(v)
		}

		bandFile := filepath.Join(sentinel2Dir, name+".tif")
		if err := writeGridGeoTIFF(bandFile, grid, info); err != nil {
			return nil, err
		}
		written[name] = bandFile
	}

	return written, nil
}

/*
computeNDVI derives (NIR - Red) / (NIR + Red). Zero-sum pixels and nodata
propagate as nodata.
*/
func computeNDVI(nir, red *Grid) (*Grid, error) {
	if nir.Width != red.Width || nir.Height != red.Height {
		return nil, fmt.Errorf("NIR size %dx%d does not match Red size %dx%d",
			nir.Width, nir.Height, red.Width, red.Height)
	}

	out := NewGrid(nir.Width, nir.Height, nir.PixelSizeX, nir.PixelSizeY)
	for i := range nir.Values {
		n := nir.Values[i]
		r := red.Values[i]
		sum := n + r
		if math.IsNaN(n) || math.IsNaN(r) || sum == 0 {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = (n - r) / sum
	}
	return out, nil
}

/*
processSentinel2 extracts the band derivatives and, when the region has
NDVI enabled in its metadata, computes the NDVI raster and PNG. The NDVI
gate is hard: a disabled region never gets an NDVI product.
*/
func processSentinel2(store *RegionStore, slug, compositeFile string) error {
	sentinel2Dir := store.Sentinel2Dir(slug)
	written, err := extractSentinel2Bands(compositeFile, sentinel2Dir)
	if err != nil {
		return err
	}
	slog.Info("sentinel-2 bands extracted", "region", slug, "bands", len(written))

	meta, err := store.ReadMetadata(slug)
	if err != nil || !meta.NDVIEnabled {
		slog.Info("NDVI disabled for region, skipping", "region", slug)
		return nil
	}

	nir, info, err := readElevationGrid(written["NIR"])
	if err != nil {
		return fmt.Errorf("error [%w] reading NIR band", err)
	}
	red, _, err := readElevationGrid(written["Red"])
	if err != nil {
		return fmt.Errorf("error [%w] reading Red band", err)
	}

	ndvi, err := computeNDVI(nir, red)
	if err != nil {
		return err
	}

	ndviTIFF := filepath.Join(sentinel2Dir, "NDVI.tif")
	if err := writeGridGeoTIFF(ndviTIFF, ndvi, info); err != nil {
		return err
	}
	ndviPNG := filepath.Join(sentinel2Dir, "NDVI.png")
	if err := writeGridPNG(ndviPNG, ndvi, viridisColormap, -1, 1); err != nil {
		return err
	}
	if err := writeWorldFile(ndviPNG, info.GeoTransform, false); err != nil {
		return err
	}

	slog.Info("NDVI generated", "region", slug, "file", ndviTIFF)
	return nil
}
