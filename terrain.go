package main

import "math"

// degToRad converts degrees to radians.
func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// radToDeg converts radians to degrees.
func radToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

/*
gradientAt computes the central-difference gradients at (col, row), scaled
by the z-factor. Edge pixels replicate the border. Returns ok=false when
the cell or any sampled neighbor is nodata; masked cells never enter the
arithmetic.
*/
func gradientAt(grid *Grid, col, row int, zFactor float64) (dx, dy float64, ok bool) {
	if grid.IsNoData(col, row) {
		return 0, 0, false
	}

	clampCol := func(c int) int {
		if c < 0 {
			return 0
		}
		if c >= grid.Width {
			return grid.Width - 1
		}
		return c
	}
	clampRow := func(r int) int {
		if r < 0 {
			return 0
		}
		if r >= grid.Height {
			return grid.Height - 1
		}
		return r
	}

	left := grid.At(clampCol(col-1), row)
	right := grid.At(clampCol(col+1), row)
	up := grid.At(col, clampRow(row-1))
	down := grid.At(col, clampRow(row+1))
	if math.IsNaN(left) || math.IsNaN(right) || math.IsNaN(up) || math.IsNaN(down) {
		return 0, 0, false
	}

	dx = (right - left) / (2.0 * grid.PixelSizeX) * zFactor
	dy = (down - up) / (2.0 * grid.PixelSizeY) * zFactor
	return dx, dy, true
}

/*
clamp limits v to [lo, hi].
*/
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
