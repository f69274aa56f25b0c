package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// openElevationURL is the last-resort single-point elevation endpoint.
const openElevationURL = "https://api.open-elevation.com/api/v1/lookup"

// brazilianTerrainRegion classifies a Brazilian biome for dataset selection.
type brazilianTerrainRegion string

const (
	terrainAmazon   brazilianTerrainRegion = "AMAZON"
	terrainCerrado  brazilianTerrainRegion = "CERRADO"
	terrainCaatinga brazilianTerrainRegion = "CAATINGA"
	terrainCoastal  brazilianTerrainRegion = "COASTAL"
	terrainDefault  brazilianTerrainRegion = "DEFAULT"
)

// BrazilianElevationAdapter cascades through global DEM datasets tuned for
// Brazilian biomes, with a degraded fallback chain as the last resort.
type BrazilianElevationAdapter struct {
	opentopo *OpenTopographyAdapter
	client   *http.Client
}

/*
NewBrazilianElevationAdapter creates the Brazilian elevation router adapter.
*/
func NewBrazilianElevationAdapter(credentials Credentials, timeout time.Duration) *BrazilianElevationAdapter {
	return &BrazilianElevationAdapter{
		opentopo: NewOpenTopographyAdapter(credentials, timeout),
		client:   newHTTPClient(timeout),
	}
}

/*
Name implements SourceAdapter.
*/
func (a *BrazilianElevationAdapter) Name() string {
	return "brazilian_elevation"
}

/*
Capabilities implements SourceAdapter.
*/
func (a *BrazilianElevationAdapter) Capabilities() SourceCapability {
	return SourceCapability{
		DataTypes:       []DataType{DataTypeElevation},
		Resolutions:     []Resolution{ResolutionMedium, ResolutionLow},
		CoverageRegions: []string{"brazil", "south_america"},
		MaxAreaKm2:      125_000,
		RequiresAPIKey:  false,
	}
}

/*
classifyTerrainRegion assigns the biome heuristic for a center point.
The boxes are deliberately coarse; dataset quality differences between the
biomes drive the ordering, not biome cartography.
*/
func classifyTerrainRegion(lat, lng float64) brazilianTerrainRegion {
	switch {
	case lat >= -5.0 && lng >= -75.0 && lng <= -45.0:
		return terrainAmazon
	case lng > -41.0:
		return terrainCoastal
	case lat >= -16.0 && lat <= -3.0 && lng >= -44.0 && lng <= -35.0:
		return terrainCaatinga
	case lat >= -20.0 && lat < -5.0 && lng >= -60.0 && lng <= -41.0:
		return terrainCerrado
	default:
		return terrainDefault
	}
}

/*
datasetCascade returns primary dataset plus ordered fallbacks for a biome.
*/
func datasetCascade(region brazilianTerrainRegion) []string {
	switch region {
	case terrainAmazon:
		return []string{"NASADEM", "COP30", "SRTMGL1"}
	case terrainCerrado, terrainCaatinga, terrainCoastal:
		return []string{"COP30", "NASADEM", "SRTMGL1"}
	default:
		return []string{"COP30", "NASADEM", "SRTMGL1", "AW3D30"}
	}
}

// southAmericaBox bounds the adapter's coverage test.
var southAmericaBox = BoundingBox{West: -82.0, South: -56.0, East: -34.0, North: 13.0}

/*
CheckAvailability implements SourceAdapter. Pure coverage test over the
South America box.
*/
func (a *BrazilianElevationAdapter) CheckAvailability(_ context.Context, req DownloadRequest) (bool, error) {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return false, nil
	}
	lat, lng := req.BBox.Center()
	return southAmericaBox.Contains(lat, lng), nil
}

/*
EstimateSize implements SourceAdapter.
*/
func (a *BrazilianElevationAdapter) EstimateSize(ctx context.Context, req DownloadRequest) (float64, error) {
	return a.opentopo.EstimateSize(ctx, req)
}

/*
Download implements SourceAdapter. The dataset cascade is tried in biome
order; every failed dataset is recorded. When the whole cascade fails the
degraded fallback chain takes over and the resulting artifact names its
degraded source in metadata so downstream consumers can warn.
*/
func (a *BrazilianElevationAdapter) Download(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return failureFrom(derr)
	}

	lat, lng := req.BBox.Center()
	terrain := classifyTerrainRegion(lat, lng)
	cascade := datasetCascade(terrain)
	slog.Info("brazilian elevation dataset cascade", "terrain", terrain, "datasets", cascade)

	var tried []string
	var failures []string
	for _, dataset := range cascade {
		if ctx.Err() != nil {
			return failure(KindCancelled, "download cancelled")
		}
		tried = append(tried, dataset)
		result := a.opentopo.downloadDEM(ctx, dataset, req, sink)
		if result.Success {
			result.Metadata["terrain_region"] = string(terrain)
			result.Metadata["tried_datasets"] = strings.Join(tried, ",")
			result.Metadata["provider"] = "BrazilianElevation"
			return result
		}
		if result.ErrorKind == KindCancelled {
			return result
		}
		failures = append(failures, fmt.Sprintf("%s: %s", dataset, result.ErrorMessage))
		slog.Warn("brazilian elevation dataset failed, trying fallback",
			"dataset", dataset, "kind", result.ErrorKind, "error", result.ErrorMessage)
	}

	// degraded fallback chain: TOPODATA -> Open-Elevation point -> placeholder
	result := a.degradedFallback(ctx, req, sink, lat, lng)
	if result.Success {
		result.Metadata["terrain_region"] = string(terrain)
		result.Metadata["tried_datasets"] = strings.Join(tried, ",")
		return result
	}
	failures = append(failures, result.ErrorMessage)

	return failure(KindDataNotAvailable,
		"all brazilian elevation datasets failed: %s", strings.Join(failures, "; "))
}

/*
degradedFallback tries the degraded source chain. Each stage names itself in
the result metadata under degraded_source. The Copernicus stage is folded
into the primary cascade (every biome's dataset list contains COP30), so the
chain continues from TOPODATA straight to the point lookup.
*/
func (a *BrazilianElevationAdapter) degradedFallback(ctx context.Context, req DownloadRequest, sink ProgressSink, lat, lng float64) DownloadResult {
	// 1. TOPODATA (INPE) tile
	if result := a.downloadTopodata(ctx, req, sink); result.Success {
		result.Metadata["degraded_source"] = "TOPODATA"
		return result
	}

	// 2. Open-Elevation point query -> SRTM placeholder text file
	elevation, err := a.openElevationLookup(ctx, lat, lng)
	if err != nil {
		return failure(KindDataNotAvailable, "degraded fallback chain exhausted: %v", err)
	}
	path, werr := a.writePlaceholder(req, lat, lng, elevation)
	if werr != nil {
		return failure(KindCache, "error writing placeholder: %v", werr)
	}
	info, _ := os.Stat(path)
	var sizeMB float64
	if info != nil {
		sizeMB = float64(info.Size()) / (1024 * 1024)
	}
	return DownloadResult{
		Success:    true,
		FilePath:   path,
		FileSizeMB: sizeMB,
		Metadata: map[string]string{
			"source":          "SRTM_placeholder",
			"provider":        "BrazilianElevation",
			"bbox":            req.BBox.String(),
			"resolution":      string(req.Resolution),
			"degraded_source": "open_elevation_point",
		},
	}
}

// topodataBaseURL serves INPE TOPODATA tiles for Brazil.
const topodataBaseURL = "http://www.dsr.inpe.br/topodata/data/geotiff"

/*
topodataTileName derives the TOPODATA tile identifier from a center point,
e.g. lat=-3.1, lng=-60.0 -> "03S60ZN".
*/
func topodataTileName(lat, lng float64) string {
	hemisphere := "N"
	if lat < 0 {
		hemisphere = "S"
	}
	latBand := int(math.Abs(lat))
	lngBand := int(math.Abs(lng))
	return fmt.Sprintf("%02d%s%02dZN", latBand, hemisphere, lngBand)
}

/*
downloadTopodata fetches the TOPODATA tile covering the request center.
*/
func (a *BrazilianElevationAdapter) downloadTopodata(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult {
	lat, lng := req.BBox.Center()
	tile := topodataTileName(lat, lng)
	requestURL := fmt.Sprintf("%s/%s.tif", topodataBaseURL, tile)

	response, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, requestURL, nil)
	})
	if err != nil {
		return failure(classifyError(err), "error requesting TOPODATA tile %s: %v", tile, err)
	}
	defer response.Body.Close()

	head, body, err := peekResponseHead(response)
	if err != nil {
		return failure(KindNetwork, "error reading TOPODATA response: %v", err)
	}
	if !isValidRasterResponse(response.StatusCode, response.Header.Get("Content-Type"), head) {
		return failure(KindDataNotAvailable, "TOPODATA tile %s not available (status %d)", tile, response.StatusCode)
	}

	destDir, baseName, err := downloadDestination(req, "TOPODATA", "tif")
	if err != nil {
		return failure(KindCache, "error preparing download destination: %v", err)
	}
	path, sizeMB, derr := saveResponseBody(ctx, body, response.ContentLength, sink, saveOptions{
		destDir:   destDir,
		baseName:  baseName,
		provider:  "TOPODATA",
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
			"source":     "TOPODATA",
			"provider":   "INPE",
			"bbox":       req.BBox.String(),
			"resolution": string(req.Resolution),
		},
	}
}

/*
openElevationLookup queries the Open Elevation point API for a single
center elevation.
*/
func (a *BrazilianElevationAdapter) openElevationLookup(ctx context.Context, lat, lng float64) (float64, error) {
	values := url.Values{}
	values.Set("locations", fmt.Sprintf("%.6f,%.6f", lat, lng))
	requestURL := openElevationURL + "?" + values.Encode()

	response, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, requestURL, nil)
	})
	if err != nil {
		return 0, fmt.Errorf("error [%w] querying open elevation", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("open elevation status %d", response.StatusCode)
	}

	var payload struct {
		Results []struct {
			Elevation float64 `json:"elevation"`
		} `json:"results"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("error [%w] decoding open elevation response", err)
	}
	if len(payload.Results) == 0 {
		return 0, fmt.Errorf("open elevation returned no results")
	}
	return payload.Results[0].Elevation, nil
}

/*
writePlaceholder writes the SRTM placeholder text file naming the degraded
source and the point elevation.
*/
func (a *BrazilianElevationAdapter) writePlaceholder(req DownloadRequest, lat, lng, elevation float64) (string, error) {
	destDir, baseName, err := downloadDestination(req, "SRTM_placeholder", "txt")
	if err != nil {
		return "", err
	}
	content := fmt.Sprintf(
		"SRTM placeholder (degraded acquisition)\n"+
			"Center: %.6f, %.6f\n"+
			"Bounds: %s\n"+
			"Point elevation (open-elevation): %.2f m\n"+
			"Requested resolution: %s\n",
		lat, lng, req.BBox.String(), elevation, req.Resolution)
	path := filepath.Join(destDir, baseName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("error [%w] at os.WriteFile()", err)
	}
	return path, nil
}
