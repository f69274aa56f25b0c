package main

import "math"

// defaultTPIRadius is the circular kernel radius in pixels.
const defaultTPIRadius = 3

/*
computeTPI derives the Topographic Position Index: elevation minus the mean
of a circular kernel of the given radius. The center cell is excluded from
the mean. Nodata neighbors are skipped, not contaminated.
*/
func computeTPI(grid *Grid, radius int) *Grid {
	if radius <= 0 {
		radius = defaultTPIRadius
	}
	radiusSq := float64(radius * radius)

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
			for dr := -radius; dr <= radius; dr++ {
				for dc := -radius; dc <= radius; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					if float64(dr*dr+dc*dc) > radiusSq {
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
					sum += v
					count++
				}
			}
			if count == 0 {
				out.Set(col, row, math.NaN())
				continue
			}
			out.Set(col, row, center-sum/float64(count))
		}
	}
	return out
}
