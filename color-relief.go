package main

import "math"

/*
computeColorRelief maps elevation through the 6-stop terrain colormap into
three 8-bit channels. Elevation is normalized over the grid's valid
min/max. Nodata renders black.
*/
func computeColorRelief(grid *Grid) (r, g, b []byte) {
	minV := math.Inf(1)
	maxV := math.Inf(-1)
	for _, v := range grid.Values {
		if math.IsNaN(v) {
			continue
		}
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}

	size := grid.Width * grid.Height
	r = make([]byte, size)
	g = make([]byte, size)
	b = make([]byte, size)
	if minV > maxV {
		return r, g, b
	}
	span := maxV - minV
	if span == 0 {
		span = 1
	}

	for i, v := range grid.Values {
		if math.IsNaN(v) {
			continue
		}
		cr, cg, cb := terrainColormap.Lookup((v - minV) / span)
		r[i] = cr
		g[i] = cg
		b[i] = cb
	}
	return r, g, b
}
