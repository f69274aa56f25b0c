package main

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// mean earth radius in kilometers (spherical approximation)
const earthRadiusKm = 6371.0088

// kilometers per degree of latitude
const kmPerDegree = 111.0

// BoundingBox represents a WGS84 bounding box (lon/lat degrees).
// Invariants: West < East, South < North, all values inside [-180,180] x [-90,90].
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

/*
Validate checks the bounding box invariants.
*/
func (b BoundingBox) Validate() error {
	if b.West >= b.East {
		return fmt.Errorf("west (%f) must be less than east (%f)", b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("south (%f) must be less than north (%f)", b.South, b.North)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range [-90, 90]: south=%f, north=%f", b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("longitude out of range [-180, 180]: west=%f, east=%f", b.West, b.East)
	}
	return nil
}

/*
Center returns the center of the bounding box as lat/lng.
*/
func (b BoundingBox) Center() (lat, lng float64) {
	return (b.South + b.North) / 2.0, (b.West + b.East) / 2.0
}

/*
AreaKm2 calculates the area of the bounding box in square kilometers
using a spherical earth approximation.
*/
func (b BoundingBox) AreaKm2() float64 {
	latRad1 := b.South * math.Pi / 180.0
	latRad2 := b.North * math.Pi / 180.0
	lngRad := (b.East - b.West) * math.Pi / 180.0
	return math.Abs(earthRadiusKm * earthRadiusKm * lngRad * (math.Sin(latRad2) - math.Sin(latRad1)))
}

/*
Expand grows the bounding box by the given buffer in kilometers on every side.
The longitude delta is scaled by the cosine of the center latitude.
*/
func (b BoundingBox) Expand(bufferKm float64) BoundingBox {
	lat, _ := b.Center()
	latDelta := bufferKm / kmPerDegree
	lngDelta := longitudeDelta(lat, bufferKm)
	return BoundingBox{
		West:  math.Max(b.West-lngDelta, -180.0),
		South: math.Max(b.South-latDelta, -90.0),
		East:  math.Min(b.East+lngDelta, 180.0),
		North: math.Min(b.North+latDelta, 90.0),
	}
}

/*
Contains reports whether the given point lies inside the bounding box.
*/
func (b BoundingBox) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

/*
String formats the bounding box as "west,south,east,north".
*/
func (b BoundingBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

/*
longitudeDelta converts a buffer in kilometers to a longitude delta at the
given latitude. Near the poles (|lat| > 89.9) the cosine term degenerates,
the latitude delta is used instead.
*/
func longitudeDelta(lat, bufferKm float64) float64 {
	if math.Abs(lat) > 89.9 {
		return bufferKm / kmPerDegree
	}
	return bufferKm / (kmPerDegree * math.Cos(lat*math.Pi/180.0))
}

/*
boundingBoxFromPoint builds a bounding box around a center point with the
given buffer in kilometers.
*/
func boundingBoxFromPoint(lat, lng, bufferKm float64) (BoundingBox, error) {
	if lat < -90.0 || lat > 90.0 || lng < -180.0 || lng > 180.0 {
		return BoundingBox{}, newDownloadError(KindInvalidCoordinates,
			"coordinates out of range, lat: %.6f, lng: %.6f", lat, lng)
	}
	if bufferKm <= 0 {
		return BoundingBox{}, newDownloadError(KindInvalidCoordinates,
			"buffer must be positive, buffer: %.6f km", bufferKm)
	}

	latDelta := bufferKm / kmPerDegree
	lngDelta := longitudeDelta(lat, bufferKm)

	bbox := BoundingBox{
		West:  math.Max(lng-lngDelta, -180.0),
		South: math.Max(lat-latDelta, -90.0),
		East:  math.Min(lng+lngDelta, 180.0),
		North: math.Min(lat+latDelta, 90.0),
	}
	if err := bbox.Validate(); err != nil {
		return BoundingBox{}, newDownloadError(KindInvalidCoordinates, "invalid bounding box: %v", err)
	}
	return bbox, nil
}

// coordinateFolderPattern matches coordinate-based region folders, e.g. "12.53S_53.02W".
var coordinateFolderPattern = regexp.MustCompile(`(?i)(\d+\.\d+)([ns])_(\d+\.\d+)([ew])`)

// pathUnsafeCharacters are rejected in free-form region names.
var pathUnsafeCharacters = regexp.MustCompile(`[\\/:*?"<>|]|\.\.`)

/*
coordinateSlug builds a filesystem-safe region slug from a center point,
e.g. lat=-12.53, lng=-53.02 -> "12.53S_53.02W". Two decimal places.
*/
func coordinateSlug(lat, lng float64) string {
	latHemisphere := "N"
	if lat < 0 {
		latHemisphere = "S"
	}
	lngHemisphere := "E"
	if lng < 0 {
		lngHemisphere = "W"
	}
	return fmt.Sprintf("%.2f%s_%.2f%s", math.Abs(lat), latHemisphere, math.Abs(lng), lngHemisphere)
}

/*
parseCoordinateSlug extracts a center point from a coordinate-based region
slug. Returns ok=false if the name does not match the coordinate pattern.
*/
func parseCoordinateSlug(name string) (lat, lng float64, ok bool) {
	match := coordinateFolderPattern.FindStringSubmatch(name)
	if match == nil {
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, 0, false
	}
	if strings.EqualFold(match[2], "s") {
		lat = -lat
	}

	lng, err = strconv.ParseFloat(match[3], 64)
	if err != nil {
		return 0, 0, false
	}
	if strings.EqualFold(match[4], "w") {
		lng = -lng
	}

	return lat, lng, true
}

/*
validateRegionName checks a free-form region name against path traversal
characters. Coordinate slugs always pass.
*/
func validateRegionName(name string) error {
	if name == "" {
		return fmt.Errorf("region name must not be empty")
	}
	if pathUnsafeCharacters.MatchString(name) {
		return fmt.Errorf("region name [%s] contains path-unsafe characters", name)
	}
	return nil
}
