package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

/*
worldFileContent renders the six-line ESRI world file for a geotransform.
North-up rasters only (rotation terms zero).
*/
func worldFileContent(gt [6]float64) string {
	// pixel size x, rotation, rotation, pixel size y, center of upper-left pixel
	return fmt.Sprintf("%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n",
		gt[1], gt[2], gt[4], gt[5],
		gt[0]+gt[1]/2, gt[3]+gt[5]/2)
}

/*
writeWorldFile writes the world file sidecar for a raster output. PNG
outputs take the .pgw extension, anything else .wld. When wgs84 is set the
sidecar is named <base>_wgs84.wld to mark the reprojected georeference.
*/
func writeWorldFile(rasterFile string, gt [6]float64, wgs84 bool) error {
	ext := filepath.Ext(rasterFile)
	base := strings.TrimSuffix(rasterFile, ext)

	var sidecar string
	switch {
	case wgs84:
		sidecar = base + "_wgs84.wld"
	case strings.EqualFold(ext, ".png"):
		sidecar = base + ".pgw"
	default:
		sidecar = base + ".wld"
	}

	if err := os.WriteFile(sidecar, []byte(worldFileContent(gt)), 0o644); err != nil {
		return fmt.Errorf("error [%w] at os.WriteFile(), file %s", err, sidecar)
	}
	return nil
}

/*
scaledGeoTransform rescales a geotransform for a resampled raster.
*/
func scaledGeoTransform(gt [6]float64, srcWidth, srcHeight, dstWidth, dstHeight int) [6]float64 {
	scaled := gt
	scaled[1] = gt[1] * float64(srcWidth) / float64(dstWidth)
	scaled[5] = gt[5] * float64(srcHeight) / float64(dstHeight)
	return scaled
}
