package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
)

/*
writeGrayPNG writes a single-channel 8-bit PNG.
*/
func writeGrayPNG(filename string, data []byte, width, height int) error {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, data)
	return encodePNG(filename, img)
}

/*
writeRGBPNG writes an 8-bit RGB PNG from three channel slices.
*/
func writeRGBPNG(filename string, r, g, b []byte, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = r[i]
		img.Pix[i*4+1] = g[i]
		img.Pix[i*4+2] = b[i]
		img.Pix[i*4+3] = 255
	}
	return encodePNG(filename, img)
}

/*
writeGridPNG maps a grid through a colormap over the value range [lo, hi]
and writes a clean RGB PNG. Nodata renders transparent.
*/
func writeGridPNG(filename string, grid *Grid, ramp colormap, lo, hi float64) error {
	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	span := hi - lo
	if span == 0 {
		span = 1
	}
	for i, v := range grid.Values {
		if math.IsNaN(v) {
			continue
		}
		r, g, b := ramp.Lookup((v - lo) / span)
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 255
	}
	return encodePNG(filename, img)
}

// legendHeight is the pixel height of the colorbar strip on decorated PNGs.
const legendHeight = 32

/*
writeDecoratedGridPNG writes the grid like writeGridPNG but appends a
colorbar legend strip below the image. Decorated and clean outputs of the
same grid therefore always differ.
*/
func writeDecoratedGridPNG(filename string, grid *Grid, ramp colormap, lo, hi float64) error {
	img := image.NewRGBA(image.Rect(0, 0, grid.Width, grid.Height+legendHeight))
	span := hi - lo
	if span == 0 {
		span = 1
	}
	for i, v := range grid.Values {
		if math.IsNaN(v) {
			continue
		}
		r, g, b := ramp.Lookup((v - lo) / span)
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 255
	}

	// colorbar: full-width gradient with a white separator row
	for col := 0; col < grid.Width; col++ {
		img.Set(col, grid.Height, color.White)
	}
	for row := grid.Height + 1; row < grid.Height+legendHeight; row++ {
		for col := 0; col < grid.Width; col++ {
			r, g, b := ramp.Lookup(float64(col) / float64(grid.Width-1))
			img.Set(col, row, color.RGBA{r, g, b, 255})
		}
	}
	return encodePNG(filename, img)
}

/*
encodePNG writes an image to disk as PNG.
*/
func encodePNG(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error [%w] at os.Create(), file %s", err, filename)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("error [%w] at png.Encode(), file %s", err, filename)
	}
	return nil
}
