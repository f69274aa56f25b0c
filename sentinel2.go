package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Copernicus Data Space Ecosystem endpoints
const (
	cdseSTACSearchURL = "https://catalogue.dataspace.copernicus.eu/stac/search"
	cdseProcessURL    = "https://sh.dataspace.copernicus.eu/api/v1/process"
	cdseTokenURL      = "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"
)

// sentinel2Bands are requested from the Process API in this order.
var sentinel2Bands = []string{"B02", "B03", "B04", "B08"}

// sentinel2Evalscript requests the four 10 m bands as INT16 digital numbers.
const sentinel2Evalscript = `//VERSION=3
function setup() {
  return {
    input: ["B02", "B03", "B04", "B08"],
    output: { bands: 4, sampleType: "INT16" }
  };
}
function evaluatePixel(sample) {
  return [sample.B02 * 10000, sample.B03 * 10000, sample.B04 * 10000, sample.B08 * 10000];
}
`

// tokenRefreshMargin refreshes the OAuth token this long before expiry.
const tokenRefreshMargin = 60 * time.Second

// CopernicusSentinel2Adapter serves Sentinel-2 imagery via the CDSE STAC
// catalogue (discovery) and Process API (download). Authentication is
// OAuth2 client-credentials with single-flight refresh, or an optional
// pre-signed static token.
type CopernicusSentinel2Adapter struct {
	clientID     string
	clientSecret string
	staticToken  string
	client       *http.Client

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
	refresh     singleflight.Group

	searchURL  string
	processURL string
	tokenURL   string
}

/*
NewCopernicusSentinel2Adapter creates the Sentinel-2 adapter.
*/
func NewCopernicusSentinel2Adapter(credentials Credentials, timeout time.Duration) *CopernicusSentinel2Adapter {
	return &CopernicusSentinel2Adapter{
		clientID:     credentials.CDSEClientID,
		clientSecret: credentials.CDSEClientSecret,
		staticToken:  credentials.CDSEToken,
		client:       newHTTPClient(timeout),
		searchURL:    cdseSTACSearchURL,
		processURL:   cdseProcessURL,
		tokenURL:     cdseTokenURL,
	}
}

/*
Name implements SourceAdapter.
*/
func (a *CopernicusSentinel2Adapter) Name() string {
	return "copernicus_sentinel2"
}

/*
Capabilities implements SourceAdapter.
*/
func (a *CopernicusSentinel2Adapter) Capabilities() SourceCapability {
	return SourceCapability{
		DataTypes:       []DataType{DataTypeImagery},
		Resolutions:     []Resolution{ResolutionMedium},
		CoverageRegions: []string{"global"},
		MaxAreaKm2:      2_500,
		RequiresAPIKey:  true,
	}
}

/*
accessToken returns a valid bearer token. A static pre-signed token wins;
otherwise the client-credentials token is refreshed 60 s before expiry with
concurrent callers awaiting the single in-flight request.
*/
func (a *CopernicusSentinel2Adapter) accessToken(ctx context.Context) (string, error) {
	if a.staticToken != "" {
		return a.staticToken, nil
	}
	if a.clientID == "" || a.clientSecret == "" {
		return "", newDownloadError(KindAPIKeyMissing, "CDSE credentials not configured")
	}

	a.tokenMu.Lock()
	if a.token != "" && time.Until(a.tokenExpiry) > tokenRefreshMargin {
		token := a.token
		a.tokenMu.Unlock()
		return token, nil
	}
	a.tokenMu.Unlock()

	value, err, _ := a.refresh.Do("token", func() (any, error) {
		return a.requestToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

/*
requestToken performs the client-credentials grant.
*/
func (a *CopernicusSentinel2Adapter) requestToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error [%w] at http.NewRequestWithContext()", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := a.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("error [%w] requesting CDSE token", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", newDownloadError(KindAuth, "CDSE token request failed with status %d", response.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("error [%w] decoding CDSE token response", err)
	}
	if payload.AccessToken == "" {
		return "", newDownloadError(KindAuth, "CDSE token response contains no access token")
	}

	a.tokenMu.Lock()
	a.token = payload.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	a.tokenMu.Unlock()

	slog.Debug("CDSE token refreshed", "expires in s", payload.ExpiresIn)
	return payload.AccessToken, nil
}

// stacItem is the subset of a STAC feature used here.
type stacItem struct {
	ID         string `json:"id"`
	Properties struct {
		Datetime   string  `json:"datetime"`
		CloudCover float64 `json:"eo:cloud_cover"`
	} `json:"properties"`
}

/*
searchSTAC queries the CDSE STAC catalogue for recent Sentinel-2 items over
the bounding box. Authentication is optional for discovery.
*/
func (a *CopernicusSentinel2Adapter) searchSTAC(ctx context.Context, bbox BoundingBox, limit int) ([]stacItem, error) {
	now := time.Now().UTC()
	values := url.Values{}
	values.Set("collections", "SENTINEL-2")
	values.Set("bbox", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", bbox.West, bbox.South, bbox.East, bbox.North))
	values.Set("datetime", fmt.Sprintf("%s/%s",
		now.AddDate(0, -3, 0).Format(time.RFC3339), now.Format(time.RFC3339)))
	values.Set("limit", fmt.Sprintf("%d", limit))
	values.Set("sortby", "-datetime")

	response, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, a.searchURL+"?"+values.Encode(), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("error [%w] at STAC search", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("STAC search failed with status %d", response.StatusCode)
	}

	var payload struct {
		Features []stacItem `json:"features"`
	}
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("error [%w] decoding STAC response", err)
	}
	return payload.Features, nil
}

/*
CheckAvailability implements SourceAdapter. A single STAC query with
limit 1 decides coverage.
*/
func (a *CopernicusSentinel2Adapter) CheckAvailability(ctx context.Context, req DownloadRequest) (bool, error) {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return false, nil
	}
	items, err := a.searchSTAC(ctx, req.BBox, 1)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

/*
EstimateSize implements SourceAdapter. The Process API output is fixed at
512x512x4 INT16 samples before compression.
*/
func (a *CopernicusSentinel2Adapter) EstimateSize(_ context.Context, req DownloadRequest) (float64, error) {
	estimate := float64(512*512*4*2) / (1024 * 1024)
	if req.MaxFileSizeMB > 0 && estimate > req.MaxFileSizeMB {
		return req.MaxFileSizeMB, nil
	}
	return estimate, nil
}

/*
processRequestBody builds the Process API JSON body for the bounding box.
*/
func processRequestBody(bbox BoundingBox) ([]byte, error) {
	body := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"bbox": []float64{bbox.West, bbox.South, bbox.East, bbox.North},
				"properties": map[string]any{
					"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84",
				},
			},
			"data": []map[string]any{
				{
					"type": "sentinel-2-l2a",
					"dataFilter": map[string]any{
						"mosaickingOrder": "leastCC",
					},
				},
			},
		},
		"output": map[string]any{
			"width":  512,
			"height": 512,
			"responses": []map[string]any{
				{
					"identifier": "default",
					"format":     map[string]any{"type": "image/tiff"},
				},
			},
		},
		"evalscript": sentinel2Evalscript,
	}
	return json.Marshal(body)
}

/*
Download implements SourceAdapter. STAC discovery first, then the Process
API renders the four-band INT16 GeoTIFF.
*/
func (a *CopernicusSentinel2Adapter) Download(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult {
	if derr := validateDownloadRequest(a.Capabilities(), req); derr != nil {
		return failureFrom(derr)
	}

	items, err := a.searchSTAC(ctx, req.BBox, 5)
	if err != nil {
		return failure(classifyError(err), "STAC discovery failed: %v", err)
	}
	if len(items) == 0 {
		return failure(KindDataNotAvailable, "no Sentinel-2 scenes for bounding box %s", req.BBox.String())
	}

	token, err := a.accessToken(ctx)
	if err != nil {
		return failure(classifyError(err), "%v", err)
	}

	payload, err := processRequestBody(req.BBox)
	if err != nil {
		return failure(KindUnknown, "error building process request: %v", err)
	}

	response, err := doWithRetry(ctx, a.client, func() (*http.Request, error) {
		request, err := http.NewRequest(http.MethodPost, a.processURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("Accept", "image/tiff")
		request.Header.Set("Authorization", "Bearer "+token)
		return request, nil
	})
	if err != nil {
		return failure(classifyError(err), "process API request failed: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return failure(classifyHTTPStatus(response.StatusCode),
			"process API failed with status %d", response.StatusCode)
	}

	head, body, err := peekResponseHead(response)
	if err != nil {
		return failure(KindNetwork, "error reading process response: %v", err)
	}
	if !isValidRasterResponse(response.StatusCode, response.Header.Get("Content-Type"), head) {
		return failure(KindDataNotAvailable, "process API response is not a raster")
	}

	destDir, baseName, err := downloadDestination(req, "sentinel2", "tif")
	if err != nil {
		return failure(KindCache, "error preparing download destination: %v", err)
	}
	path, sizeMB, derr := saveResponseBody(ctx, body, response.ContentLength, sink, saveOptions{
		destDir:   destDir,
		baseName:  baseName,
		provider:  "Copernicus",
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
		ResolutionM: 10.0,
		Metadata: map[string]string{
			"source":     "SENTINEL-2",
			"provider":   "Copernicus",
			"bbox":       req.BBox.String(),
			"resolution": string(req.Resolution),
			"scene_id":   items[0].ID,
			"bands":      strings.Join(sentinel2Bands, ","),
		},
	}
}
