package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// conusBox bounds the continental US coverage test (plus Alaska handled
// separately below).
var conusBox = BoundingBox{West: -125.0, South: 24.0, East: -66.0, North: 50.0}

// alaskaBox covers the Alaskan 3DEP collections.
var alaskaBox = BoundingBox{West: -170.0, South: 51.0, East: -129.0, North: 72.0}

// USGS3DEPAdapter serves US-only lidar point clouds from the USGS 3DEP
// program. Direct LAZ download is not generally available through a stable
// bulk API; when it is unavailable the adapter succeeds with an
// instructions file pointing at The National Map download client.
type USGS3DEPAdapter struct{}

/*
NewUSGS3DEPAdapter creates the USGS 3DEP adapter.
*/
func NewUSGS3DEPAdapter() *USGS3DEPAdapter {
	return &USGS3DEPAdapter{}
}

/*
Name implements SourceAdapter.
*/
func (a *USGS3DEPAdapter) Name() string {
	return "usgs_3dep"
}

/*
Capabilities implements SourceAdapter.
*/
func (a *USGS3DEPAdapter) Capabilities() SourceCapability {
	return SourceCapability{
		DataTypes:       []DataType{DataTypeLAZ, DataTypeElevation},
		Resolutions:     []Resolution{ResolutionHigh},
		CoverageRegions: []string{"us"},
		MaxAreaKm2:      10_000,
		RequiresAPIKey:  false,
	}
}

/*
CheckAvailability implements SourceAdapter. US-only coverage test.
*/
func (a *USGS3DEPAdapter) CheckAvailability(_ context.Context, req DownloadRequest) (bool, error) {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return false, nil
	}
	lat, lng := req.BBox.Center()
	return conusBox.Contains(lat, lng) || alaskaBox.Contains(lat, lng), nil
}

/*
EstimateSize implements SourceAdapter. Point cloud sizes are not known in
advance; the request limit is the documented upper bound.
*/
func (a *USGS3DEPAdapter) EstimateSize(_ context.Context, req DownloadRequest) (float64, error) {
	return req.MaxFileSizeMB, nil
}

/*
Download implements SourceAdapter. Writes the instructions file for manual
retrieval through The National Map; the result metadata marks the artifact
as instructions so downstream consumers do not treat it as raster data.
*/
func (a *USGS3DEPAdapter) Download(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return failureFrom(derr)
	}
	available, _ := a.CheckAvailability(ctx, req)
	if !available {
		return failure(KindDataNotAvailable, "bounding box outside USGS 3DEP coverage")
	}
	if ctx.Err() != nil {
		return failure(KindCancelled, "download cancelled")
	}

	sink.Emit(ProgressEvent{Type: EventDownloadStarted, Provider: "USGS 3DEP"})

	destDir, baseName, err := downloadDestination(req, "USGS3DEP_instructions", "txt")
	if err != nil {
		return failure(KindCache, "error preparing download destination: %v", err)
	}
	content := fmt.Sprintf(
		"USGS 3DEP lidar download instructions\n"+
			"=====================================\n\n"+
			"Direct bulk LAZ download is not available for this request.\n\n"+
			"Bounds (WGS84): %s\n\n"+
			"1. Open The National Map download client:\n"+
			"   https://apps.nationalmap.gov/downloader/\n"+
			"2. Zoom to the bounds above and select 'Elevation Source Data (3DEP) - Lidar, IfSAR'.\n"+
			"3. Choose LAZ products intersecting the area and download.\n"+
			"4. Place the files under ./input/LAZ/ and re-run processing.\n",
		req.BBox.String())
	path := filepath.Join(destDir, baseName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return failure(KindCache, "error [%v] at os.WriteFile()", err)
	}

	info, _ := os.Stat(path)
	var sizeMB float64
	if info != nil {
		sizeMB = float64(info.Size()) / (1024 * 1024)
	}
	sink.Emit(ProgressEvent{Type: EventDownloadComplete, Provider: "USGS 3DEP", FileSizeMB: sizeMB})

	return DownloadResult{
		Success:    true,
		FilePath:   path,
		FileSizeMB: sizeMB,
		Metadata: map[string]string{
			"source":       "USGS_3DEP",
			"provider":     "USGS",
			"bbox":         req.BBox.String(),
			"resolution":   string(req.Resolution),
			"instructions": "true",
		},
	}
}
