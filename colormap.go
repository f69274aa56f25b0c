package main

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// colorStop anchors a colormap at a position in [0,1].
type colorStop struct {
	Pos     float64
	R, G, B byte
}

// colormap interpolates linearly between its stops.
type colormap struct {
	stops []colorStop
}

/*
Lookup maps t in [0,1] to an interpolated RGB triple. Out-of-range values
clamp to the end stops.
*/
func (c colormap) Lookup(t float64) (r, g, b byte) {
	if math.IsNaN(t) {
		return 0, 0, 0
	}
	t = clamp(t, 0.0, 1.0)
	for i := 1; i < len(c.stops); i++ {
		if t <= c.stops[i].Pos {
			lo := c.stops[i-1]
			hi := c.stops[i]
			span := hi.Pos - lo.Pos
			f := 0.0
			if span > 0 {
				f = (t - lo.Pos) / span
			}
			r = byte(float64(lo.R) + f*(float64(hi.R)-float64(lo.R)))
			g = byte(float64(lo.G) + f*(float64(hi.G)-float64(lo.G)))
			b = byte(float64(lo.B) + f*(float64(hi.B)-float64(lo.B)))
			return r, g, b
		}
	}
	last := c.stops[len(c.stops)-1]
	return last.R, last.G, last.B
}

// terrainColormap is the 6-stop elevation ramp used for color relief.
var terrainColormap = colormap{stops: []colorStop{
	{0.00, 51, 51, 153},
	{0.15, 0, 153, 255},
	{0.25, 0, 204, 102},
	{0.50, 255, 255, 153},
	{0.75, 128, 92, 84},
	{1.00, 255, 255, 255},
}}

// viridisColormap is a 5-stop approximation of the viridis ramp.
var viridisColormap = colormap{stops: []colorStop{
	{0.00, 68, 1, 84},
	{0.25, 59, 82, 139},
	{0.50, 33, 145, 140},
	{0.75, 94, 201, 98},
	{1.00, 253, 231, 37},
}}

// cividisColormap is a 5-stop approximation of the cividis ramp.
var cividisColormap = colormap{stops: []colorStop{
	{0.00, 0, 32, 76},
	{0.25, 64, 78, 107},
	{0.50, 124, 123, 120},
	{0.75, 191, 175, 123},
	{1.00, 255, 234, 70},
}}

/*
percentileClip returns the [lo, hi] percentile bounds over the valid
values. Percentiles are in percent (e.g. 2, 98). NaN values are excluded
before the quantile computation.
*/
func percentileClip(values []float64, loPct, hiPct float64) (lo, hi float64, ok bool) {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	sort.Float64s(valid)
	lo = stat.Quantile(loPct/100.0, stat.Empirical, valid, nil)
	hi = stat.Quantile(hiPct/100.0, stat.Empirical, valid, nil)
	return lo, hi, true
}
