package main

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// RegionMetadata mirrors the line-oriented metadata.txt file of a region.
// Optional floats are nil when the file records "N/A".
type RegionMetadata struct {
	Name         string
	Source       string
	FilePath     string
	NDVIEnabled  bool
	CenterLat    *float64
	CenterLng    *float64
	NorthBound   *float64
	SouthBound   *float64
	EastBound    *float64
	WestBound    *float64
	SourceCRS    string
	NativeBounds string
}

// preservationMarkers identify a metadata.txt written by a richer source
// (elevation API acquisition). A rewrite of such a file is a no-op.
var preservationMarkers = []string{
	"# Source: Elevation API",
	"Buffer Distance (km):",
	"# REQUESTED BOUNDS (WGS84 - EPSG:4326)",
	"Download ID:",
}

/*
hasPreservationMarker reports whether existing metadata content carries one
of the markers of the elevation API metadata preservation rule.
*/
func hasPreservationMarker(content []byte) bool {
	text := string(content)
	for _, marker := range preservationMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

/*
formatOptionalFloat formats a float pointer, "N/A" when nil.
*/
func formatOptionalFloat(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

/*
formatOptionalString formats a string, "N/A" when empty.
*/
func formatOptionalString(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

/*
Encode serializes region metadata in the fixed metadata.txt line order.
*/
func (m RegionMetadata) Encode() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Region Name: %s\n", m.Name)
	fmt.Fprintf(&b, "Source: %s\n", m.Source)
	fmt.Fprintf(&b, "File Path: %s\n", m.FilePath)
	fmt.Fprintf(&b, "NDVI Enabled: %t\n", m.NDVIEnabled)
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "Center Latitude: %s\n", formatOptionalFloat(m.CenterLat))
	fmt.Fprintf(&b, "Center Longitude: %s\n", formatOptionalFloat(m.CenterLng))
	fmt.Fprintf(&b, "North Bound: %s\n", formatOptionalFloat(m.NorthBound))
	fmt.Fprintf(&b, "South Bound: %s\n", formatOptionalFloat(m.SouthBound))
	fmt.Fprintf(&b, "East Bound: %s\n", formatOptionalFloat(m.EastBound))
	fmt.Fprintf(&b, "West Bound: %s\n", formatOptionalFloat(m.WestBound))
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "Source CRS: %s\n", formatOptionalString(m.SourceCRS))
	fmt.Fprintf(&b, "Native Bounds: %s\n", formatOptionalString(m.NativeBounds))
	return b.Bytes()
}

/*
parseRegionMetadata parses a metadata.txt file. Blank lines are allowed,
lines starting with '#' are comments, unknown keys are ignored so richer
files (elevation API metadata) still parse.
*/
func parseRegionMetadata(content []byte) (RegionMetadata, error) {
	var m RegionMetadata

	parseFloat := func(value string) *float64 {
		if value == "N/A" || value == "" {
			return nil
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		return &f
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Region Name":
			m.Name = value
		case "Source":
			m.Source = value
		case "File Path":
			m.FilePath = value
		case "NDVI Enabled":
			m.NDVIEnabled = strings.EqualFold(value, "true")
		case "Center Latitude":
			m.CenterLat = parseFloat(value)
		case "Center Longitude":
			m.CenterLng = parseFloat(value)
		case "North Bound":
			m.NorthBound = parseFloat(value)
		case "South Bound":
			m.SouthBound = parseFloat(value)
		case "East Bound":
			m.EastBound = parseFloat(value)
		case "West Bound":
			m.WestBound = parseFloat(value)
		case "Source CRS":
			if value != "N/A" {
				m.SourceCRS = value
			}
		case "Native Bounds":
			if value != "N/A" {
				m.NativeBounds = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return m, fmt.Errorf("error [%w] scanning metadata content", err)
	}
	return m, nil
}

/*
Bounds returns the bounding box when all four bounds are recorded.
*/
func (m RegionMetadata) Bounds() (BoundingBox, bool) {
	if m.NorthBound == nil || m.SouthBound == nil || m.EastBound == nil || m.WestBound == nil {
		return BoundingBox{}, false
	}
	return BoundingBox{
		West:  *m.WestBound,
		South: *m.SouthBound,
		East:  *m.EastBound,
		North: *m.NorthBound,
	}, true
}

/*
mergeRegionMetadata merges new metadata over existing metadata without
destroying richer information: bounds, center and CRS already recorded are
kept unless the update supplies values of its own.
*/
func mergeRegionMetadata(existing, update RegionMetadata) RegionMetadata {
	merged := update
	if merged.CenterLat == nil {
		merged.CenterLat = existing.CenterLat
	}
	if merged.CenterLng == nil {
		merged.CenterLng = existing.CenterLng
	}
	if merged.NorthBound == nil {
		merged.NorthBound = existing.NorthBound
	}
	if merged.SouthBound == nil {
		merged.SouthBound = existing.SouthBound
	}
	if merged.EastBound == nil {
		merged.EastBound = existing.EastBound
	}
	if merged.WestBound == nil {
		merged.WestBound = existing.WestBound
	}
	if merged.SourceCRS == "" {
		merged.SourceCRS = existing.SourceCRS
	}
	if merged.NativeBounds == "" {
		merged.NativeBounds = existing.NativeBounds
	}
	if merged.FilePath == "" {
		merged.FilePath = existing.FilePath
	}
	return merged
}
