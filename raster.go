package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/godal"
)

// noDataValue marks missing elevation in all written rasters. In-memory
// grids carry NaN instead so arithmetic propagates missingness.
const noDataValue = -9999.0

// metersPerDegree approximates one degree of latitude at the equator.
const metersPerDegree = 111_320.0

// Grid is a single-band raster in memory, row-major, NaN for nodata.
type Grid struct {
	Width  int
	Height int
	// PixelSizeX and PixelSizeY are in meters regardless of the source CRS.
	PixelSizeX float64
	PixelSizeY float64
	Values     []float64
}

/*
NewGrid allocates a grid of the given size, all values zero.
*/
func NewGrid(width, height int, pixelSizeX, pixelSizeY float64) *Grid {
	return &Grid{
		Width:      width,
		Height:     height,
		PixelSizeX: pixelSizeX,
		PixelSizeY: pixelSizeY,
		Values:     make([]float64, width*height),
	}
}

/*
At returns the value at (col, row). NaN means nodata.
*/
func (g *Grid) At(col, row int) float64 {
	return g.Values[row*g.Width+col]
}

/*
Set stores a value at (col, row).
*/
func (g *Grid) Set(col, row int, value float64) {
	g.Values[row*g.Width+col] = value
}

/*
IsNoData reports whether (col, row) holds nodata.
*/
func (g *Grid) IsNoData(col, row int) bool {
	return math.IsNaN(g.At(col, row))
}

/*
Clone returns an independent copy with the same georeference.
*/
func (g *Grid) Clone() *Grid {
	clone := NewGrid(g.Width, g.Height, g.PixelSizeX, g.PixelSizeY)
	copy(clone.Values, g.Values)
	return clone
}

// rasterInfo carries the georeference needed to write derivatives aligned
// with their source raster.
type rasterInfo struct {
	GeoTransform  [6]float64
	ProjectionWKT string
	Width         int
	Height        int
}

/*
readElevationGrid reads band 1 of a GeoTIFF into a Grid. Source nodata
values (declared or the -9999 convention) become NaN. Pixel sizes are
converted to meters when the raster is in a geographic CRS.
*/
func readElevationGrid(filename string) (*Grid, rasterInfo, error) {
	var info rasterInfo

	dataset, err := godal.Open(filename)
	if err != nil {
		return nil, info, fmt.Errorf("error [%w] at godal.Open(), file %s", err, filename)
	}
	defer dataset.Close()

	structure := dataset.Structure()
	width := structure.SizeX
	height := structure.SizeY

	gt, err := dataset.GeoTransform()
	if err != nil {
		return nil, info, fmt.Errorf("error [%w] at dataset.GeoTransform()", err)
	}
	info.GeoTransform = gt
	info.Width = width
	info.Height = height

	if srs := dataset.SpatialRef(); srs != nil {
		wkt, werr := srs.WKT()
		if werr == nil {
			info.ProjectionWKT = wkt
		}
		srs.Close()
	}

	bands := dataset.Bands()
	if len(bands) == 0 {
		return nil, info, fmt.Errorf("no raster bands found in file [%s]", filename)
	}
	band := bands[0]

	buffer := make([]float32, width*height)
	if err := band.Read(0, 0, buffer, width, height); err != nil {
		return nil, info, fmt.Errorf("error [%w] at band.Read(), file %s", err, filename)
	}

	nodata, hasNoData := band.NoData()

	pixelSizeX, pixelSizeY := pixelSizeMeters(gt, height)
	grid := NewGrid(width, height, pixelSizeX, pixelSizeY)
	for i, v := range buffer {
		value := float64(v)
		if (hasNoData && value == nodata) || value == noDataValue {
			grid.Values[i] = math.NaN()
		} else {
			grid.Values[i] = value
		}
	}

	return grid, info, nil
}

/*
pixelSizeMeters derives pixel sizes in meters from a geotransform. Degree
sized pixels (geographic CRS) are scaled by the latitude of the raster
center.
*/
func pixelSizeMeters(gt [6]float64, height int) (x, y float64) {
	x = math.Abs(gt[1])
	y = math.Abs(gt[5])
	if x < 0.1 && y < 0.1 {
		// degrees; scale longitude by cos(center latitude)
		centerLat := gt[3] + float64(height)/2*gt[5]
		x = x * metersPerDegree * math.Cos(centerLat*math.Pi/180)
		y = y * metersPerDegree
	}
	return x, y
}

/*
writeGridGeoTIFF writes a Grid as a single-band Float32 GeoTIFF with the
source georeference, LZW compressed and tiled. NaN is written as -9999.
*/
func writeGridGeoTIFF(filename string, grid *Grid, info rasterInfo) error {
	dataset, err := godal.Create(godal.GTiff, filename, 1, godal.Float32, grid.Width, grid.Height,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("error [%w] at godal.Create(), file %s", err, filename)
	}
	defer dataset.Close()

	if err := applyGeoreference(dataset, info); err != nil {
		return err
	}

	band := dataset.Bands()[0]
	if err := band.SetNoData(noDataValue); err != nil {
		return fmt.Errorf("error [%w] at band.SetNoData()", err)
	}

	buffer := make([]float32, len(grid.Values))
	for i, v := range grid.Values {
		if math.IsNaN(v) {
			buffer[i] = noDataValue
		} else {
			buffer[i] = float32(v)
		}
	}
	if err := band.Write(0, 0, buffer, grid.Width, grid.Height); err != nil {
		return fmt.Errorf("error [%w] at band.Write(), file %s", err, filename)
	}

	return nil
}

/*
writeByteGeoTIFF writes a single-band Byte GeoTIFF (e.g. hillshade).
*/
func writeByteGeoTIFF(filename string, data []byte, width, height int, info rasterInfo) error {
	dataset, err := godal.Create(godal.GTiff, filename, 1, godal.Byte, width, height,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("error [%w] at godal.Create(), file %s", err, filename)
	}
	defer dataset.Close()

	if err := applyGeoreference(dataset, info); err != nil {
		return err
	}

	band := dataset.Bands()[0]
	if err := band.Write(0, 0, data, width, height); err != nil {
		return fmt.Errorf("error [%w] at band.Write(), file %s", err, filename)
	}
	return nil
}

/*
writeRGBGeoTIFF writes a three-band Byte GeoTIFF (e.g. color relief,
multidirectional hillshade composite).
*/
func writeRGBGeoTIFF(filename string, r, g, b []byte, width, height int, info rasterInfo) error {
	dataset, err := godal.Create(godal.GTiff, filename, 3, godal.Byte, width, height,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return fmt.Errorf("error [%w] at godal.Create(), file %s", err, filename)
	}
	defer dataset.Close()

	if err := applyGeoreference(dataset, info); err != nil {
		return err
	}

	bands := dataset.Bands()
	channels := [][]byte{r, g, b}
	for i, channel := range channels {
		if err := bands[i].Write(0, 0, channel, width, height); err != nil {
			return fmt.Errorf("error [%w] at band.Write(), band %d, file %s", err, i+1, filename)
		}
	}
	return nil
}

/*
applyGeoreference stamps geotransform and projection onto a new dataset.
*/
func applyGeoreference(dataset *godal.Dataset, info rasterInfo) error {
	if err := dataset.SetGeoTransform(info.GeoTransform); err != nil {
		return fmt.Errorf("error [%w] at dataset.SetGeoTransform()", err)
	}
	if info.ProjectionWKT != "" {
		srs, err := godal.NewSpatialRefFromWKT(info.ProjectionWKT)
		if err != nil {
			return fmt.Errorf("error [%w] at godal.NewSpatialRefFromWKT()", err)
		}
		defer srs.Close()
		if err := dataset.SetSpatialRef(srs); err != nil {
			return fmt.Errorf("error [%w] at dataset.SetSpatialRef()", err)
		}
	}
	return nil
}

/*
crsNameFromWKT extracts the human-readable CRS name from a WKT definition,
the first quoted string after the root keyword, e.g.
`PROJCS["WGS 84 / UTM zone 21S",...` -> "WGS 84 / UTM zone 21S".
*/
func crsNameFromWKT(wkt string) string {
	start := strings.Index(wkt, `["`)
	if start < 0 {
		return ""
	}
	rest := wkt[start+2:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}

/*
nativeBoundsString formats the outer corner bounds of a north-up raster as
"minx,miny,maxx,maxy" in native CRS units.
*/
func nativeBoundsString(gt [6]float64, width, height int) string {
	x1 := gt[0]
	x2 := gt[0] + float64(width)*gt[1]
	y1 := gt[3]
	y2 := gt[3] + float64(height)*gt[5]
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
		math.Min(x1, x2), math.Min(y1, y2), math.Max(x1, x2), math.Max(y1, y2))
}

/*
rasterCRSInfo reads the CRS name and the native corner bounds of a raster
for metadata stamping. Best effort; callers skip both fields on error.
*/
func rasterCRSInfo(filename string) (crs, nativeBounds string, err error) {
	dataset, err := godal.Open(filename)
	if err != nil {
		return "", "", fmt.Errorf("error [%w] at godal.Open(), file %s", err, filename)
	}
	defer dataset.Close()

	if srs := dataset.SpatialRef(); srs != nil {
		if wkt, werr := srs.WKT(); werr == nil {
			crs = crsNameFromWKT(wkt)
		}
		srs.Close()
	}

	structure := dataset.Structure()
	gt, err := dataset.GeoTransform()
	if err != nil {
		return crs, "", fmt.Errorf("error [%w] at dataset.GeoTransform()", err)
	}
	return crs, nativeBoundsString(gt, structure.SizeX, structure.SizeY), nil
}

/*
wgs84BoundsOf calculates the WGS84 bounding box of a raster by transforming
its corner coordinates from the source CRS.
*/
func wgs84BoundsOf(filename string) (BoundingBox, error) {
	var bbox BoundingBox

	dataset, err := godal.Open(filename)
	if err != nil {
		return bbox, fmt.Errorf("error [%w] at godal.Open(), file %s", err, filename)
	}
	defer dataset.Close()

	structure := dataset.Structure()
	sizeX := float64(structure.SizeX)
	sizeY := float64(structure.SizeY)

	gt, err := dataset.GeoTransform()
	if err != nil {
		return bbox, fmt.Errorf("error [%w] at dataset.GeoTransform()", err)
	}

	// outer edges of the corner pixels
	xCoords := []float64{
		gt[0],
		gt[0] + sizeX*gt[1],
		gt[0] + sizeY*gt[2],
		gt[0] + sizeX*gt[1] + sizeY*gt[2],
	}
	yCoords := []float64{
		gt[3],
		gt[3] + sizeX*gt[4],
		gt[3] + sizeY*gt[5],
		gt[3] + sizeX*gt[4] + sizeY*gt[5],
	}

	srcSRS := dataset.SpatialRef()
	if srcSRS == nil {
		return bbox, fmt.Errorf("source Spatial Reference System (SRS) not found, transformation not possible")
	}
	defer srcSRS.Close()

	tgtSRS, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return bbox, fmt.Errorf("error [%w] at godal.NewSpatialRefFromEPSG(4326)", err)
	}
	defer tgtSRS.Close()

	transformer, err := godal.NewTransform(srcSRS, tgtSRS)
	if err != nil {
		return bbox, fmt.Errorf("error [%w] at godal.NewTransform()", err)
	}
	defer transformer.Close()

	successful := make([]bool, 4)
	if err := transformer.TransformEx(xCoords, yCoords, nil, successful); err != nil {
		return bbox, fmt.Errorf("error [%w] at transformer.TransformEx()", err)
	}

	bbox.West = math.Inf(1)
	bbox.East = math.Inf(-1)
	bbox.South = math.Inf(1)
	bbox.North = math.Inf(-1)
	for i := 0; i < 4; i++ {
		if !successful[i] {
			return bbox, fmt.Errorf("corner %d could not be transformed to WGS84", i)
		}
		bbox.West = math.Min(bbox.West, xCoords[i])
		bbox.East = math.Max(bbox.East, xCoords[i])
		bbox.South = math.Min(bbox.South, yCoords[i])
		bbox.North = math.Max(bbox.North, yCoords[i])
	}

	return bbox, nil
}
