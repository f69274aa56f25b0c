package main

import (
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodePNG(t *testing.T, filename string) (width, height int, at func(col, row int) (r, g, b, a uint8)) {
	t.Helper()
	file, err := os.Open(filename)
	require.NoError(t, err)
	defer file.Close()

	img, err := png.Decode(file)
	require.NoError(t, err)

	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), func(col, row int) (uint8, uint8, uint8, uint8) {
		r, g, b, a := img.At(col, row).RGBA()
		return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)
	}
}

func TestWriteGrayPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gray.png")
	require.NoError(t, writeGrayPNG(path, []byte{0, 128, 255, 64}, 2, 2))

	width, height, at := decodePNG(t, path)
	assert.Equal(t, 2, width)
	assert.Equal(t, 2, height)
	r, g, b, _ := at(1, 0)
	assert.Equal(t, uint8(128), r)
	assert.Equal(t, r, g)
	assert.Equal(t, r, b)
}

func TestWriteGridPNG(t *testing.T) {
	grid := NewGrid(3, 1, 1.0, 1.0)
	grid.Values = []float64{0.0, math.NaN(), 10.0}

	path := filepath.Join(t.TempDir(), "grid.png")
	require.NoError(t, writeGridPNG(path, grid, terrainColormap, 0, 10))

	_, _, at := decodePNG(t, path)

	// grid minimum hits the first ramp stop, maximum the last
	r, g, b, a := at(0, 0)
	assert.Equal(t, [4]uint8{51, 51, 153, 255}, [4]uint8{r, g, b, a})
	r, g, b, a = at(2, 0)
	assert.Equal(t, [4]uint8{255, 255, 255, 255}, [4]uint8{r, g, b, a})

	// nodata stays transparent
	_, _, _, a = at(1, 0)
	assert.Equal(t, uint8(0), a)
}

func TestWriteGridPNGDegenerateRange(t *testing.T) {
	grid := NewGrid(2, 1, 1.0, 1.0)
	grid.Values = []float64{5.0, 5.0}

	path := filepath.Join(t.TempDir(), "flat.png")
	require.NoError(t, writeGridPNG(path, grid, cividisColormap, 5, 5))

	_, _, at := decodePNG(t, path)
	_, _, _, a := at(0, 0)
	assert.Equal(t, uint8(255), a, "a flat grid still renders opaque pixels")
}

func TestWriteDecoratedGridPNG(t *testing.T) {
	grid := NewGrid(16, 4, 1.0, 1.0)
	for i := range grid.Values {
		grid.Values[i] = float64(i)
	}

	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.png")
	decorated := filepath.Join(dir, "decorated.png")
	require.NoError(t, writeGridPNG(clean, grid, cividisColormap, 0, 63))
	require.NoError(t, writeDecoratedGridPNG(decorated, grid, cividisColormap, 0, 63))

	cleanWidth, cleanHeight, _ := decodePNG(t, clean)
	decoratedWidth, decoratedHeight, at := decodePNG(t, decorated)

	assert.Equal(t, cleanWidth, decoratedWidth)
	assert.Equal(t, cleanHeight+legendHeight, decoratedHeight, "legend strip extends the canvas")

	// separator row is white, colorbar below runs the full ramp
	r, g, b, _ := at(0, grid.Height)
	assert.Equal(t, [3]uint8{255, 255, 255}, [3]uint8{r, g, b})

	left, _, _, _ := at(0, grid.Height+2)
	right, _, _, _ := at(grid.Width-1, grid.Height+2)
	assert.NotEqual(t, left, right, "colorbar spans the colormap")
}
