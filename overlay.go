package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
)

// Overlay optimization tiers. Sources above the pixel threshold get a
// downsampled PNG companion; larger sources get smaller targets.
const (
	overlayTargetStandard   = 4096
	overlayTargetAggressive = 2048
	overlayTargetExtreme    = 1024

	overlayAggressivePixels = 75_000_000
	overlayExtremePixels    = 100_000_000
)

/*
overlayTargetSize selects the longest-side target for a source pixel count.
Returns 0 when the source is below the optimization threshold.
*/
func overlayTargetSize(pixels, threshold int64) int {
	if pixels < threshold {
		return 0
	}
	switch {
	case pixels >= overlayExtremePixels:
		return overlayTargetExtreme
	case pixels >= overlayAggressivePixels:
		return overlayTargetAggressive
	default:
		return overlayTargetStandard
	}
}

/*
overlayDimensions scales (width, height) so the longest side equals target,
preserving aspect ratio.
*/
func overlayDimensions(width, height, target int) (int, int) {
	if width >= height {
		scaled := height * target / width
		if scaled < 1 {
			scaled = 1
		}
		return target, scaled
	}
	scaled := width * target / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, target
}

/*
generateOverlayPNG produces the _overlays.png companion for a large TIFF:
cubic-resampled to the tier target plus a world file with the same
basename. Returns the overlay path, or "" when the source is below the
threshold.
*/
func generateOverlayPNG(tiffFile string, threshold int64) (string, error) {
	dataset, err := godal.Open(tiffFile)
	if err != nil {
		return "", fmt.Errorf("error [%w] at godal.Open(), file %s", err, tiffFile)
	}
	defer dataset.Close()

	structure := dataset.Structure()
	pixels := int64(structure.SizeX) * int64(structure.SizeY)
	target := overlayTargetSize(pixels, threshold)
	if target == 0 {
		return "", nil
	}

	width, height := overlayDimensions(structure.SizeX, structure.SizeY, target)
	overlayFile := strings.TrimSuffix(tiffFile, filepath.Ext(tiffFile)) + "_overlays.png"

	slog.Info("overlay optimization", "file", filepath.Base(tiffFile),
		"source pixels", pixels, "target", fmt.Sprintf("%dx%d", width, height))

	translated, err := dataset.Translate(overlayFile, []string{
		"-of", "PNG",
		"-outsize", fmt.Sprintf("%d", width), fmt.Sprintf("%d", height),
		"-r", "cubic",
	})
	if err != nil {
		return "", fmt.Errorf("error [%w] at dataset.Translate(), file %s", err, overlayFile)
	}
	translated.Close()

	gt, err := dataset.GeoTransform()
	if err != nil {
		return "", fmt.Errorf("error [%w] at dataset.GeoTransform()", err)
	}
	scaled := scaledGeoTransform(gt, structure.SizeX, structure.SizeY, width, height)
	if err := writeWorldFile(overlayFile, scaled, false); err != nil {
		return "", err
	}

	return overlayFile, nil
}
