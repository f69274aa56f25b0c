package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayTargetSize(t *testing.T) {
	threshold := int64(25_000_000)
	tests := []struct {
		name   string
		pixels int64
		want   int
	}{
		{"below threshold", 24_999_999, 0},
		{"at threshold", 25_000_000, overlayTargetStandard},
		{"standard tier", 50_000_000, overlayTargetStandard},
		{"just below aggressive", 74_999_999, overlayTargetStandard},
		{"aggressive tier", 75_000_000, overlayTargetAggressive},
		{"just below extreme", 99_999_999, overlayTargetAggressive},
		{"extreme tier", 100_000_000, overlayTargetExtreme},
		{"far above extreme", 400_000_000, overlayTargetExtreme},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlayTargetSize(tt.pixels, threshold))
		})
	}
}

func TestOverlayTargetSizeCustomThreshold(t *testing.T) {
	assert.Equal(t, 0, overlayTargetSize(9_999_999, 10_000_000))
	assert.Equal(t, overlayTargetStandard, overlayTargetSize(10_000_000, 10_000_000))
}

func TestOverlayDimensions(t *testing.T) {
	w, h := overlayDimensions(10000, 5000, 4096)
	assert.Equal(t, 4096, w)
	assert.Equal(t, 2048, h)

	w, h = overlayDimensions(5000, 10000, 4096)
	assert.Equal(t, 2048, w)
	assert.Equal(t, 4096, h)

	// square sources scale both sides to the target
	w, h = overlayDimensions(12000, 12000, 1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1024, h)

	// degenerate strips never collapse to zero
	w, h = overlayDimensions(100000, 10, 1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1, h)
}

func TestWorldFileContent(t *testing.T) {
	gt := [6]float64{500000.0, 30.0, 0.0, 7400000.0, 0.0, -30.0}
	content := worldFileContent(gt)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "30.0000000000", lines[0])
	assert.Equal(t, "0.0000000000", lines[1])
	assert.Equal(t, "0.0000000000", lines[2])
	assert.Equal(t, "-30.0000000000", lines[3])
	// world files anchor at the center of the upper-left pixel
	assert.Equal(t, "500015.0000000000", lines[4])
	assert.Equal(t, "7399985.0000000000", lines[5])
}

func TestWriteWorldFileExtensions(t *testing.T) {
	dir := t.TempDir()
	gt := [6]float64{0, 1, 0, 0, 0, -1}

	require.NoError(t, writeWorldFile(filepath.Join(dir, "shade.png"), gt, false))
	assert.FileExists(t, filepath.Join(dir, "shade.pgw"))

	require.NoError(t, writeWorldFile(filepath.Join(dir, "shade.tif"), gt, false))
	assert.FileExists(t, filepath.Join(dir, "shade.wld"))

	require.NoError(t, writeWorldFile(filepath.Join(dir, "shade.png"), gt, true))
	assert.FileExists(t, filepath.Join(dir, "shade_wgs84.wld"))

	content, err := os.ReadFile(filepath.Join(dir, "shade.pgw"))
	require.NoError(t, err)
	assert.Equal(t, worldFileContent(gt), string(content))
}

func TestScaledGeoTransform(t *testing.T) {
	gt := [6]float64{100.0, 1.0, 0.0, 200.0, 0.0, -1.0}
	scaled := scaledGeoTransform(gt, 8000, 4000, 4096, 2048)

	assert.InDelta(t, 8000.0/4096.0, scaled[1], 1e-12)
	assert.InDelta(t, -4000.0/2048.0, scaled[5], 1e-12)
	// origin and rotation terms are untouched
	assert.Equal(t, gt[0], scaled[0])
	assert.Equal(t, gt[3], scaled[3])
	assert.Equal(t, gt[2], scaled[2])
	assert.Equal(t, gt[4], scaled[4])
}
