package main

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ornlDatasets maps a coarse routing region and data type to the served
// ORNL DAAC dataset.
type ornlDataset struct {
	Name        string
	Path        string
	ResolutionM float64
}

// ornlDAACBaseURL serves subset requests against the ORNL DAAC web service.
const ornlDAACBaseURL = "https://webmap.ornl.gov/ogcbroker/wcs"

// ORNLDAACAdapter serves regional elevation and radar datasets curated by
// the ORNL Distributed Active Archive Center. Dataset selection is by
// routing region and data type.
type ORNLDAACAdapter struct {
	client            *http.Client
	earthdataUsername string
}

/*
NewORNLDAACAdapter creates the ORNL DAAC adapter.
*/
func NewORNLDAACAdapter(credentials Credentials, timeout time.Duration) *ORNLDAACAdapter {
	return &ORNLDAACAdapter{
		client:            newHTTPClient(timeout),
		earthdataUsername: credentials.EarthdataUsername,
	}
}

/*
Name implements SourceAdapter.
*/
func (a *ORNLDAACAdapter) Name() string {
	return "ornl_daac"
}

/*
Capabilities implements SourceAdapter.
*/
func (a *ORNLDAACAdapter) Capabilities() SourceCapability {
	return SourceCapability{
		DataTypes:       []DataType{DataTypeElevation, DataTypeRadar},
		Resolutions:     []Resolution{ResolutionMedium, ResolutionLow},
		CoverageRegions: []string{"south_america", "us", "global"},
		MaxAreaKm2:      50_000,
		RequiresAPIKey:  false,
	}
}

/*
selectDataset picks the dataset for a request by region and data type.
*/
func (a *ORNLDAACAdapter) selectDataset(req DownloadRequest) (ornlDataset, bool) {
	lat, lng := req.BBox.Center()
	inSouthAmerica := southAmericaBox.Contains(lat, lng)

	switch req.DataType {
	case DataTypeRadar:
		if inSouthAmerica {
			return ornlDataset{Name: "LBA_SAR_MOSAIC", Path: "10008_1", ResolutionM: 100.0}, true
		}
		return ornlDataset{}, false
	case DataTypeElevation:
		if inSouthAmerica {
			return ornlDataset{Name: "AMAZON_DEM", Path: "10003_1", ResolutionM: 90.0}, true
		}
		return ornlDataset{Name: "SRTM_RAMP2", Path: "10008_2", ResolutionM: 90.0}, true
	default:
		return ornlDataset{}, false
	}
}

/*
CheckAvailability implements SourceAdapter.
*/
func (a *ORNLDAACAdapter) CheckAvailability(_ context.Context, req DownloadRequest) (bool, error) {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return false, nil
	}
	_, ok := a.selectDataset(req)
	return ok, nil
}

/*
EstimateSize implements SourceAdapter.
*/
func (a *ORNLDAACAdapter) EstimateSize(_ context.Context, req DownloadRequest) (float64, error) {
	dataset, ok := a.selectDataset(req)
	if !ok {
		return req.MaxFileSizeMB, nil
	}
	pixels := req.BBox.AreaKm2() * 1_000_000 / (dataset.ResolutionM * dataset.ResolutionM)
	estimate := pixels * 4 / (1024 * 1024)
	if req.MaxFileSizeMB > 0 && estimate > req.MaxFileSizeMB {
		return req.MaxFileSizeMB, nil
	}
	return estimate, nil
}

/*
Download implements SourceAdapter. WCS GetCoverage subset request.
*/
func (a *ORNLDAACAdapter) Download(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return failureFrom(derr)
	}
	dataset, ok := a.selectDataset(req)
	if !ok {
		return failure(KindDataNotAvailable, "no ORNL DAAC dataset for data type [%s] at %s",
			req.DataType, req.BBox.String())
	}

	requestURL := fmt.Sprintf(
		"%s?originator=SDAT&service=WCS&version=1.0.0&request=GetCoverage&coverage=%s&crs=EPSG:4326&bbox=%s&format=geotiff_byte",
		ornlDAACBaseURL, dataset.Path, req.BBox.String())

	response, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, requestURL, nil)
	})
	if err != nil {
		return failure(classifyError(err), "error requesting ORNL DAAC coverage: %v", err)
	}
	defer response.Body.Close()

	head, body, err := peekResponseHead(response)
	if err != nil {
		return failure(KindNetwork, "error reading ORNL DAAC response: %v", err)
	}
	if !isValidRasterResponse(response.StatusCode, response.Header.Get("Content-Type"), head) {
		return failure(KindDataNotAvailable, "ORNL DAAC coverage %s not available (status %d)",
			dataset.Name, response.StatusCode)
	}

	destDir, baseName, err := downloadDestination(req, dataset.Name, "tif")
	if err != nil {
		return failure(KindCache, "error preparing download destination: %v", err)
	}
	path, sizeMB, derr := saveResponseBody(ctx, body, response.ContentLength, sink, saveOptions{
		destDir:   destDir,
		baseName:  baseName,
		provider:  "ORNL DAAC",
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
		ResolutionM: dataset.ResolutionM,
		Metadata: map[string]string{
			"source":     dataset.Name,
			"provider":   "ORNL DAAC",
			"bbox":       req.BBox.String(),
			"resolution": string(req.Resolution),
		},
	}
}
