package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

// opentopographyBaseURL is the OpenTopography global DEM endpoint.
const opentopographyBaseURL = "https://portal.opentopography.org/API/globaldem"

// OpenTopographyAdapter serves global elevation GeoTIFFs via the
// OpenTopography globaldem API (SRTMGL1, COP30, NASADEM, AW3D30).
// Only the GeoTIFF path is implemented; point clouds are out of scope.
type OpenTopographyAdapter struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

/*
NewOpenTopographyAdapter creates the OpenTopography adapter. A missing API
key degrades to best effort; the download then fails with API_KEY_MISSING.
*/
func NewOpenTopographyAdapter(credentials Credentials, timeout time.Duration) *OpenTopographyAdapter {
	return &OpenTopographyAdapter{
		apiKey:  credentials.OpenTopographyAPIKey,
		client:  newHTTPClient(timeout),
		baseURL: opentopographyBaseURL,
	}
}

/*
Name implements SourceAdapter.
*/
func (a *OpenTopographyAdapter) Name() string {
	return "opentopography"
}

/*
Capabilities implements SourceAdapter.
*/
func (a *OpenTopographyAdapter) Capabilities() SourceCapability {
	return SourceCapability{
		DataTypes:       []DataType{DataTypeElevation},
		Resolutions:     []Resolution{ResolutionMedium, ResolutionLow},
		CoverageRegions: []string{"global"},
		MaxAreaKm2:      125_000,
		RequiresAPIKey:  true,
	}
}

/*
demTypeFor maps the requested resolution class to a global DEM dataset.
*/
func (a *OpenTopographyAdapter) demTypeFor(resolution Resolution) string {
	switch resolution {
	case ResolutionHigh, ResolutionMedium:
		return "COP30"
	default:
		return "SRTMGL1"
	}
}

/*
CheckAvailability implements SourceAdapter. Coverage is global (between the
SRTM latitude limits), so the check is a pure request test without network
traffic.
*/
func (a *OpenTopographyAdapter) CheckAvailability(_ context.Context, req DownloadRequest) (bool, error) {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return false, nil
	}
	lat, _ := req.BBox.Center()
	// SRTM/COP30 coverage ends at the polar caps
	if lat < -85.0 || lat > 85.0 {
		return false, nil
	}
	return true, nil
}

/*
EstimateSize implements SourceAdapter. The globaldem API reports no size in
advance; approximate from area at the dataset posting, capped at the
request limit.
*/
func (a *OpenTopographyAdapter) EstimateSize(_ context.Context, req DownloadRequest) (float64, error) {
	// ~30 m posting, 4 bytes per pixel, LZW roughly halves it
	pixels := req.BBox.AreaKm2() * 1_000_000 / (30.0 * 30.0)
	estimate := pixels * 4 / 2 / (1024 * 1024)
	if req.MaxFileSizeMB > 0 && estimate > req.MaxFileSizeMB {
		return req.MaxFileSizeMB, nil
	}
	if estimate <= 0 {
		return req.MaxFileSizeMB, nil
	}
	return estimate, nil
}

/*
requestURL builds the globaldem request for a dataset.
*/
func (a *OpenTopographyAdapter) requestURL(demType string, bbox BoundingBox) string {
	values := url.Values{}
	values.Set("demtype", demType)
	values.Set("south", fmt.Sprintf("%.6f", bbox.South))
	values.Set("north", fmt.Sprintf("%.6f", bbox.North))
	values.Set("west", fmt.Sprintf("%.6f", bbox.West))
	values.Set("east", fmt.Sprintf("%.6f", bbox.East))
	values.Set("outputFormat", "GTiff")
	if a.apiKey != "" {
		values.Set("API_Key", a.apiKey)
	}
	return a.baseURL + "?" + values.Encode()
}

/*
Download implements SourceAdapter.
*/
func (a *OpenTopographyAdapter) Download(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return failureFrom(derr)
	}
	if a.apiKey == "" {
		return failure(KindAPIKeyMissing, "OpenTopography API key not configured")
	}

	demType := a.demTypeFor(req.Resolution)
	result := a.downloadDEM(ctx, demType, req, sink)
	if result.Success {
		slog.Info("opentopography download complete", "dataset", demType, "file", result.FilePath, "size mb", result.FileSizeMB)
	}
	return result
}

/*
downloadDEM fetches one global DEM dataset for the request bounding box.
Shared with the Brazilian elevation cascade.
*/
func (a *OpenTopographyAdapter) downloadDEM(ctx context.Context, demType string, req DownloadRequest, sink ProgressSink) DownloadResult {
	requestURL := a.requestURL(demType, req.BBox)

	response, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, requestURL, nil)
	})
	if err != nil {
		return failure(classifyError(err), "error requesting %s: %v", demType, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return failure(classifyHTTPStatus(response.StatusCode),
			"%s request failed with status %d", demType, response.StatusCode)
	}

	head, body, err := peekResponseHead(response)
	if err != nil {
		return failure(KindNetwork, "error reading %s response: %v", demType, err)
	}
	if !isValidRasterResponse(response.StatusCode, response.Header.Get("Content-Type"), head) {
		return failure(KindDataNotAvailable, "%s response is not a raster (content-type %s)",
			demType, response.Header.Get("Content-Type"))
	}

	destDir, baseName, err := downloadDestination(req, demType, "tif")
	if err != nil {
		return failure(KindCache, "error preparing download destination: %v", err)
	}
	path, sizeMB, derr := saveResponseBody(ctx, body, response.ContentLength, sink, saveOptions{
		destDir:   destDir,
		baseName:  baseName,
		provider:  "OpenTopography",
		maxSizeMB: req.MaxFileSizeMB,
		registry:  req.Registry,
		download:  req.DownloadID,
	})
	if derr != nil {
		return failureFrom(derr)
	}

	return DownloadResult{
		Success:     true,
		FilePath:    path,
		FileSizeMB:  sizeMB,
		ResolutionM: 30.0,
		Metadata: map[string]string{
			"source":     demType,
			"provider":   "OpenTopography",
			"bbox":       req.BBox.String(),
			"resolution": string(req.Resolution),
		},
	}
}

/*
downloadDestination derives a per-request temp destination for an adapter
download before cache registration.
*/
func downloadDestination(req DownloadRequest, dataset, extension string) (string, string, error) {
	slug := req.RegionName
	if slug == "" {
		lat, lng := req.BBox.Center()
		slug = coordinateSlug(lat, lng)
	}
	dir, err := os.MkdirTemp("", "terrain-download-")
	if err != nil {
		return "", "", fmt.Errorf("error [%w] at os.MkdirTemp()", err)
	}
	return dir, fmt.Sprintf("%s_%s.%s", slug, dataset, extension), nil
}
