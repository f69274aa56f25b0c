package main

import "fmt"

/*
visualizeSVF renders a sky view factor raster, computed externally, as two
PNGs: a decorated one with a cividis colorbar legend and a clean one for
overlay use. Both are percentile-clipped to P5-P95.
*/
func visualizeSVF(svfFile, decoratedPNG, cleanPNG string) error {
	grid, _, err := readElevationGrid(svfFile)
	if err != nil {
		return fmt.Errorf("error [%w] reading SVF raster %s", err, svfFile)
	}

	lo, hi, ok := percentileClip(grid.Values, 5, 95)
	if !ok {
		return fmt.Errorf("SVF raster %s contains no valid values", svfFile)
	}

	if err := writeDecoratedGridPNG(decoratedPNG, grid, cividisColormap, lo, hi); err != nil {
		return err
	}
	return writeGridPNG(cleanPNG, grid, cividisColormap, lo, hi)
}
