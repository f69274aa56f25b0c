package main

import "math"

/*
computeSlope derives the slope in degrees from an elevation grid:
deg(atan(sqrt(dx^2 + dy^2))). Nodata propagates.
*/
func computeSlope(grid *Grid, zFactor float64) *Grid {
	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			dx, dy, ok := gradientAt(grid, col, row, zFactor)
			if !ok {
				out.Set(col, row, math.NaN())
				continue
			}
			out.Set(col, row, radToDeg(math.Atan(math.Hypot(dx, dy))))
		}
	}
	return out
}
