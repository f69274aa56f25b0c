package main

import "math"

/*
computeTRI derives the Terrain Ruggedness Index: mean absolute elevation
difference between a cell and its eight neighbors. Nodata neighbors are
skipped.
*/
func computeTRI(grid *Grid) *Grid {
	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			center := grid.At(col, row)
			if math.IsNaN(center) {
				out.Set(col, row, math.NaN())
				continue
			}
			sum := 0.0
			count := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					r := row + dr
					c := col + dc
					if r < 0 || r >= grid.Height || c < 0 || c >= grid.Width {
						continue
					}
					v := grid.At(c, r)
					if math.IsNaN(v) {
						continue
					}
					sum += math.Abs(v - center)
					count++
				}
			}
			if count == 0 {
				out.Set(col, row, math.NaN())
				continue
			}
			out.Set(col, row, sum/float64(count))
		}
	}
	return out
}
