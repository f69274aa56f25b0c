package main

import "math"

/*
computeAspect derives the downslope direction in compass degrees:
(deg(atan2(-dx, dy)) + 360) mod 360. Flat cells report 0. Nodata
propagates.
*/
func computeAspect(grid *Grid) *Grid {
	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			dx, dy, ok := gradientAt(grid, col, row, 1.0)
			if !ok {
				out.Set(col, row, math.NaN())
				continue
			}
			aspect := math.Mod(radToDeg(math.Atan2(-dx, dy))+360.0, 360.0)
			out.Set(col, row, aspect)
		}
	}
	return out
}
