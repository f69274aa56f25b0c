package main

import "math"

// Default illumination geometry.
const (
	defaultHillshadeAltitude = 45.0
	defaultHillshadeZFactor  = 1.0
)

// multiHillshadeAzimuths are packed into the R/G/B channels of the
// multidirectional composite.
var multiHillshadeAzimuths = [3]float64{315.0, 45.0, 180.0}

/*
computeHillshade renders an 8-bit shaded relief for one light direction.
Illumination follows 255 * clamp(cos(alt)*cos(slope) +
sin(alt)*sin(slope)*cos(az - aspect), 0, 1). Nodata cells render as 0.
*/
func computeHillshade(grid *Grid, azimuthDeg, altitudeDeg, zFactor float64) []byte {
	azimuth := degToRad(azimuthDeg)
	altitude := degToRad(altitudeDeg)
	cosAlt := math.Cos(altitude)
	sinAlt := math.Sin(altitude)

	shade := make([]byte, grid.Width*grid.Height)
	for row := 0; row < grid.Height; row++ {
		for col := 0; col < grid.Width; col++ {
			dx, dy, ok := gradientAt(grid, col, row, zFactor)
			if !ok {
				continue
			}
			slope := math.Atan(math.Hypot(dx, dy))
			aspect := math.Atan2(-dx, dy)
			illumination := cosAlt*math.Cos(slope) + sinAlt*math.Sin(slope)*math.Cos(azimuth-aspect)
			shade[row*grid.Width+col] = byte(255.0 * clamp(illumination, 0.0, 1.0))
		}
	}
	return shade
}

/*
computeMultiHillshade renders three azimuths into R/G/B channels.
*/
func computeMultiHillshade(grid *Grid, altitudeDeg, zFactor float64) (r, g, b []byte) {
	r = computeHillshade(grid, multiHillshadeAzimuths[0], altitudeDeg, zFactor)
	g = computeHillshade(grid, multiHillshadeAzimuths[1], altitudeDeg, zFactor)
	b = computeHillshade(grid, multiHillshadeAzimuths[2], altitudeDeg, zFactor)
	return r, g, b
}
