package main

import (
	"fmt"
	"math"
)

/*
computeCHM derives the canopy height model max(DSM - DTM, 0). The grids
must share dimensions. Nodata in either input propagates.
*/
func computeCHM(dsm, dtm *Grid) (*Grid, error) {
	if dsm.Width != dtm.Width || dsm.Height != dtm.Height {
		return nil, fmt.Errorf("DSM size %dx%d does not match DTM size %dx%d",
			dsm.Width, dsm.Height, dtm.Width, dtm.Height)
	}

	out := NewGrid(dtm.Width, dtm.Height, dtm.PixelSizeX, dtm.PixelSizeY)
	for i := range dtm.Values {
		surface := dsm.Values[i]
		ground := dtm.Values[i]
		if math.IsNaN(surface) || math.IsNaN(ground) {
			out.Values[i] = math.NaN()
			continue
		}
		out.Values[i] = math.Max(surface-ground, 0)
	}
	return out, nil
}

/*
generateCHM reads the DTM and external DSM, computes the canopy height
model, and writes the GeoTIFF plus the decorated and clean PNG pair. A
missing DSM fails with MISSING_DSM.
*/
func generateCHM(dtmFile, dsmFile, chmTIFF, decoratedPNG, cleanPNG string) error {
	if !fileExists(dsmFile) {
		return newDownloadError(KindMissingDSM, "DSM file [%s] does not exist, cannot derive canopy height", dsmFile)
	}

	dtm, info, err := readElevationGrid(dtmFile)
	if err != nil {
		return fmt.Errorf("error [%w] reading DTM %s", err, dtmFile)
	}
	dsm, _, err := readElevationGrid(dsmFile)
	if err != nil {
		return fmt.Errorf("error [%w] reading DSM %s", err, dsmFile)
	}

	chm, err := computeCHM(dsm, dtm)
	if err != nil {
		return err
	}

	if err := writeGridGeoTIFF(chmTIFF, chm, info); err != nil {
		return err
	}

	maxV := 0.0
	for _, v := range chm.Values {
		if !math.IsNaN(v) && v > maxV {
			maxV = v
		}
	}
	if maxV == 0 {
		maxV = 1
	}

	if err := writeDecoratedGridPNG(decoratedPNG, chm, viridisColormap, 0, maxV); err != nil {
		return err
	}
	return writeGridPNG(cleanPNG, chm, viridisColormap, 0, maxV)
}
