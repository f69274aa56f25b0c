package main

import (
	"slices"
	"time"
)

// DataType enumerates the acquirable data families.
type DataType string

const (
	DataTypeElevation DataType = "elevation"
	DataTypeImagery   DataType = "imagery"
	DataTypeLAZ       DataType = "laz"
	DataTypeRadar     DataType = "radar"
)

// Resolution enumerates coarse resolution classes.
type Resolution string

const (
	ResolutionHigh   Resolution = "high"   // < 1 m
	ResolutionMedium Resolution = "medium" // 1 - 10 m
	ResolutionLow    Resolution = "low"    // > 10 m
)

// DownloadRequest describes one acquisition request. Coordinates are always
// WGS84, there is no coordinate system field by contract.
type DownloadRequest struct {
	BBox          BoundingBox
	DataType      DataType
	Resolution    Resolution
	OutputFormat  string
	MaxFileSizeMB float64
	RegionName    string // optional, must be a filesystem-safe slug when set

	// cancellation bookkeeping, set by the orchestrator; adapters thread
	// both into saveResponseBody so Cancel can remove the in-flight file
	Registry   *DownloadRegistry
	DownloadID string
}

// DownloadResult is the uniform outcome of an adapter download. On success
// Metadata includes at least source, provider, bbox and resolution.
type DownloadResult struct {
	Success      bool
	FilePath     string
	FileSizeMB   float64
	ResolutionM  float64
	ErrorKind    ErrorKind
	ErrorMessage string
	Metadata     map[string]string
}

// SourceCapability describes the static capability set of one adapter.
type SourceCapability struct {
	DataTypes       []DataType
	Resolutions     []Resolution
	CoverageRegions []string
	MaxAreaKm2      float64
	RequiresAPIKey  bool
}

/*
SupportsDataType reports whether the capability covers the given data type.
*/
func (c SourceCapability) SupportsDataType(dataType DataType) bool {
	return slices.Contains(c.DataTypes, dataType)
}

// region source types
const (
	SourceTypeInputLAZ     = "input"
	SourceTypeCoordinate   = "coordinate-based"
	SourceTypeSavedPlace   = "saved-place"
	SourceTypeElevationAPI = "elevation-api"
)

// Region is the primary identity of processed data. The Region Store
// exclusively owns its lifecycle.
type Region struct {
	Name        string
	CenterLat   *float64 // nil for deferred LAZ analysis
	CenterLng   *float64
	Bounds      *BoundingBox
	SourceType  string
	NDVIEnabled bool
	CreatedAt   time.Time
}

// SourceError records one failed source during a routed acquisition.
type SourceError struct {
	Source  string
	Kind    ErrorKind
	Message string
}

// AcquisitionResult is the outcome of one orchestrated acquisition.
type AcquisitionResult struct {
	Success    bool
	Cancelled  bool
	RegionName string
	DownloadID string
	FilePath   string
	Source     string
	FileSizeMB float64
	Metadata   map[string]string
	Errors     []SourceError
}
