package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveLRMWindow(t *testing.T) {
	tests := []struct {
		pixelSizeM float64
		want       int
	}{
		{0.25, 61},
		{0.5, 61},
		{0.75, 31},
		{1.0, 31},
		{1.5, 21},
		{2.0, 21},
		{5.0, 11},
		{30.0, 11},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, adaptiveLRMWindow(tt.pixelSizeM), "pixel size %.2f m", tt.pixelSizeM)
	}
}

func TestComputeLRMFlatPlane(t *testing.T) {
	// a tilted plane carries no local relief once the trend is removed;
	// the residual stays small against the elevation range
	grid := planeGrid(41, 41, 1.0, 0.0)
	lrm := computeLRM(grid, 11, lrmFilterUniform, false)
	assert.InDelta(t, 0.0, lrm.At(20, 20), 1e-9, "interior of a plane smooths to itself")
}

func TestComputeLRMBump(t *testing.T) {
	grid := planeGrid(41, 41, 0.0, 0.0)
	grid.Set(20, 20, 5.0)

	lrm := computeLRM(grid, 11, lrmFilterUniform, false)
	assert.Greater(t, lrm.At(20, 20), 0.0, "a bump stands above the smoothed surface")
	assert.Less(t, lrm.At(20, 19), 0.0, "adjacent cells sit below their lifted mean")
	assert.InDelta(t, 0.0, lrm.At(5, 5), 1e-9, "cells outside the window are untouched")
}

func TestComputeLRMGaussian(t *testing.T) {
	grid := planeGrid(41, 41, 0.0, 0.0)
	grid.Set(20, 20, 5.0)

	lrm := computeLRM(grid, 11, lrmFilterGaussian, false)
	assert.Greater(t, lrm.At(20, 20), 0.0)
}

func TestComputeLRMAdaptiveWindowSelection(t *testing.T) {
	// window 0 selects the adaptive window without error
	grid := planeGrid(15, 15, 0.0, 0.0)
	grid.PixelSizeX = 30.0
	grid.PixelSizeY = 30.0
	lrm := computeLRM(grid, 0, lrmFilterUniform, false)
	require.NotNil(t, lrm)
	assert.Equal(t, grid.Width, lrm.Width)
}

func TestComputeLRMEvenWindowRoundsUp(t *testing.T) {
	grid := planeGrid(21, 21, 0.0, 0.0)
	lrm := computeLRM(grid, 10, lrmFilterUniform, false)
	require.NotNil(t, lrm)
	assert.InDelta(t, 0.0, lrm.At(10, 10), 1e-9)
}

func TestComputeLRMNormalized(t *testing.T) {
	grid := NewGrid(21, 21, 1.0, 1.0)
	for row := 0; row < 21; row++ {
		for col := 0; col < 21; col++ {
			grid.Set(col, row, 3.0*math.Sin(float64(col))*math.Cos(float64(row)))
		}
	}
	grid.Set(7, 7, math.NaN())

	lrm := computeLRM(grid, 5, lrmFilterGaussian, true)
	sawNonZero := false
	for i, v := range lrm.Values {
		if math.IsNaN(v) {
			continue
		}
		assert.GreaterOrEqual(t, v, -1.0, "index %d", i)
		assert.LessOrEqual(t, v, 1.0, "index %d", i)
		if v != 0 {
			sawNonZero = true
		}
	}
	assert.True(t, sawNonZero)
	assert.True(t, math.IsNaN(lrm.At(7, 7)), "nodata survives normalization")
}

func TestNormalizeLRMSymmetry(t *testing.T) {
	grid := NewGrid(3, 1, 1.0, 1.0)
	grid.Values = []float64{-2.0, 0.0, 4.0}
	normalizeLRM(grid)

	// the bound is max(|P2|, |P98|), so the larger side reaches 1
	assert.InDelta(t, -0.5, grid.Values[0], 1e-9)
	assert.InDelta(t, 0.0, grid.Values[1], 1e-9)
	assert.InDelta(t, 1.0, grid.Values[2], 1e-9)
}

func TestUniformSmoothNoData(t *testing.T) {
	grid := planeGrid(9, 9, 0.0, 0.0)
	grid.Set(4, 4, math.NaN())

	smoothed := uniformSmooth(grid, 3)
	assert.True(t, math.IsNaN(smoothed.At(4, 4)), "nodata stays nodata")
	assert.False(t, math.IsNaN(smoothed.At(4, 3)), "neighbors skip the masked cell")
	assert.InDelta(t, 0.0, smoothed.At(4, 3), 1e-9)
}
