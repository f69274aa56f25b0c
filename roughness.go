package main

import "math"

/*
computeRoughness derives surface roughness: the elevation range (max - min)
within the 3x3 neighborhood including the cell itself.
*/
func computeRoughness(grid *Grid) *Grid {
	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.IsNoData(col, row) {
				out.Set(col, row, math.NaN())
				continue
			}
			minV := math.Inf(1)
			maxV := math.Inf(-1)
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					r := row + dr
					c := col + dc
					if r < 0 || r >= grid.Height || c < 0 || c >= grid.Width {
						continue
					}
					v := grid.At(c, r)
					if math.IsNaN(v) {
						continue
					}
					minV = math.Min(minV, v)
					maxV = math.Max(maxV, v)
				}
			}
			out.Set(col, row, maxV-minV)
		}
	}
	return out
}
