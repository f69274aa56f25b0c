package main

import "math"

// lrmFilter selects the smoothing filter for the local relief model.
type lrmFilter string

const (
	lrmFilterUniform  lrmFilter = "uniform"
	lrmFilterGaussian lrmFilter = "gaussian"
)

/*
adaptiveLRMWindow derives the smoothing window in pixels from the raster
resolution. Finer rasters need larger windows to capture the same ground
distance.
*/
func adaptiveLRMWindow(pixelSizeM float64) int {
	switch {
	case pixelSizeM <= 0.5:
		return 61
	case pixelSizeM <= 1.0:
		return 31
	case pixelSizeM <= 2.0:
		return 21
	default:
		return 11
	}
}

/*
computeLRM derives the local relief model: elevation minus a smoothed copy.
A window of 0 selects the adaptive window from the pixel size. With
normalize set, the result is clipped to the P2-P98 range and scaled
symmetrically around zero to [-1, 1]. Nodata propagates.
*/
func computeLRM(grid *Grid, window int, filter lrmFilter, normalize bool) *Grid {
	if window <= 0 {
		window = adaptiveLRMWindow(grid.PixelSizeX)
	}
	if window%2 == 0 {
		window++
	}

	var smoothed *Grid
	switch filter {
	case lrmFilterGaussian:
		smoothed = gaussianSmooth(grid, window)
	default:
		smoothed = uniformSmooth(grid, window)
	}

	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for i, v := range grid.Values {
		s := smoothed.Values[i]
		if math.IsNaN(v) || math.IsNaN(s) {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = v - s
	}

	if normalize {
		normalizeLRM(out)
	}
	return out
}

/*
uniformSmooth applies a box filter of the given odd window. Nodata
neighbors are skipped; a cell with no valid neighborhood stays nodata.
*/
func uniformSmooth(grid *Grid, window int) *Grid {
	half := window / 2
	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.IsNoData(col, row) {
				out.Set(col, row, math.NaN())
				continue
			}
			sum := 0.0
			count := 0
			for dr := -half; dr <= half; dr++ {
				r := row + dr
				if r < 0 || r >= grid.Height {
					continue
				}
				for dc := -half; dc <= half; dc++ {
					c := col + dc
					if c < 0 || c >= grid.Width {
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
			out.Set(col, row, sum/float64(count))
		}
	}
	return out
}

/*
gaussianSmooth applies a separable Gaussian with sigma = window/6.
*/
func gaussianSmooth(grid *Grid, window int) *Grid {
	half := window / 2
	sigma := float64(window) / 6.0
	kernel := make([]float64, window)
	for i := range kernel {
		d := float64(i - half)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	// horizontal pass
	horizontal := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.IsNoData(col, row) {
				horizontal.Set(col, row, math.NaN())
				continue
			}
			sum := 0.0
			weight := 0.0
			for k := -half; k <= half; k++ {
				c := col + k
				if c < 0 || c >= grid.Width {
					continue
				}
				v := grid.At(c, row)
				if math.IsNaN(v) {
					continue
				}
				w := kernel[k+half]
				sum += v * w
				weight += w
			}
			if weight == 0 {
				horizontal.Set(col, row, math.NaN())
				continue
			}
			horizontal.Set(col, row, sum/weight)
		}
	}

	// vertical pass
	out := NewGrid(grid.Width, grid.Height, grid.PixelSizeX, grid.PixelSizeY)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			if grid.IsNoData(col, row) {
				out.Set(col, row, math.NaN())
				continue
			}
			sum := 0.0
			weight := 0.0
			for k := -half; k <= half; k++ {
				r := row + k
				if r < 0 || r >= grid.Height {
					continue
				}
				v := horizontal.At(col, r)
				if math.IsNaN(v) {
					continue
				}
				w := kernel[k+half]
				sum += v * w
				weight += w
			}
			if weight == 0 {
				out.Set(col, row, math.NaN())
				continue
			}
			out.Set(col, row, sum/weight)
		}
	}
	return out
}

/*
normalizeLRM clips to P2-P98 and scales symmetrically around zero to
[-1, 1] in place.
*/
func normalizeLRM(grid *Grid) {
	lo, hi, ok := percentileClip(grid.Values, 2, 98)
	if !ok {
		return
	}
	bound := math.Max(math.Abs(lo), math.Abs(hi))
	if bound == 0 {
		return
	}
	for i, v := range grid.Values {
		if math.IsNaN(v) {
			continue
		}
		grid.Values[i] = clamp(v, -bound, bound) / bound
	}
}
