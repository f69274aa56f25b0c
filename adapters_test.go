package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemTypeFor(t *testing.T) {
	adapter := NewOpenTopographyAdapter(Credentials{}, 0)
	assert.Equal(t, "COP30", adapter.demTypeFor(ResolutionHigh))
	assert.Equal(t, "COP30", adapter.demTypeFor(ResolutionMedium))
	assert.Equal(t, "SRTMGL1", adapter.demTypeFor(ResolutionLow))
}

func TestOpenTopographyRequestURL(t *testing.T) {
	adapter := NewOpenTopographyAdapter(Credentials{OpenTopographyAPIKey: "k-123"}, 0)
	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}

	requestURL := adapter.requestURL("COP30", bbox)
	parsed, err := url.Parse(requestURL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "COP30", query.Get("demtype"))
	assert.Equal(t, "-3.120000", query.Get("south"))
	assert.Equal(t, "-60.050000", query.Get("west"))
	assert.Equal(t, "GTiff", query.Get("outputFormat"))
	assert.Equal(t, "k-123", query.Get("API_Key"))

	// without a key the parameter is absent entirely
	bare := NewOpenTopographyAdapter(Credentials{}, 0)
	parsed, err = url.Parse(bare.requestURL("COP30", bbox))
	require.NoError(t, err)
	assert.Empty(t, parsed.Query().Get("API_Key"))
}

func TestOpenTopographyDownloadWithoutKey(t *testing.T) {
	adapter := NewOpenTopographyAdapter(Credentials{}, time.Second)
	bbox, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)

	result := adapter.Download(context.Background(), DownloadRequest{
		BBox: bbox, DataType: DataTypeElevation, Resolution: ResolutionMedium,
	}, nopSink{})
	require.False(t, result.Success)
	assert.Equal(t, KindAPIKeyMissing, result.ErrorKind)
}

func TestOpenTopographyCheckAvailability(t *testing.T) {
	adapter := NewOpenTopographyAdapter(Credentials{}, 0)

	temperate, err := boundingBoxFromPoint(51.0, 7.0, 1.0)
	require.NoError(t, err)
	ok, err := adapter.CheckAvailability(context.Background(), DownloadRequest{
		BBox: temperate, DataType: DataTypeElevation, Resolution: ResolutionMedium,
	})
	require.NoError(t, err)
	assert.True(t, ok, "coverage is global between the polar caps")

	polar, err := boundingBoxFromPoint(-88.0, 0.0, 1.0)
	require.NoError(t, err)
	ok, _ = adapter.CheckAvailability(context.Background(), DownloadRequest{
		BBox: polar, DataType: DataTypeElevation, Resolution: ResolutionMedium,
	})
	assert.False(t, ok, "no coverage past the SRTM latitude limits")
}

func TestOpenTopographyDownloadDEM(t *testing.T) {
	payload := append(append([]byte{}, tiffMagicLittleEndian...), []byte("fake raster body")...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "COP30", r.URL.Query().Get("demtype"))
		w.Header().Set("Content-Type", "image/tiff")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	adapter := NewOpenTopographyAdapter(Credentials{OpenTopographyAPIKey: "k"}, 5*time.Second)
	adapter.baseURL = server.URL

	bbox, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)
	req := DownloadRequest{
		BBox: bbox, DataType: DataTypeElevation, Resolution: ResolutionMedium,
		RegionName: "3.11S_60.04W",
	}

	result := adapter.Download(context.Background(), req, nopSink{})
	require.True(t, result.Success, "error: %s", result.ErrorMessage)
	defer os.RemoveAll(filepath.Dir(result.FilePath))

	assert.FileExists(t, result.FilePath)
	assert.Equal(t, "3.11S_60.04W_COP30.tif", filepath.Base(result.FilePath))
	assert.Equal(t, "COP30", result.Metadata["source"])
	assert.Equal(t, "OpenTopography", result.Metadata["provider"])

	content, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	assert.Equal(t, payload, content, "the peeked head is replayed into the file")
}

func TestOpenTopographyDownloadErrorPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>no data here</html>"))
	}))
	defer server.Close()

	adapter := NewOpenTopographyAdapter(Credentials{OpenTopographyAPIKey: "k"}, 5*time.Second)
	adapter.baseURL = server.URL

	bbox, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)
	result := adapter.Download(context.Background(), DownloadRequest{
		BBox: bbox, DataType: DataTypeElevation, Resolution: ResolutionMedium,
	}, nopSink{})
	require.False(t, result.Success)
	assert.Equal(t, KindDataNotAvailable, result.ErrorKind)
}

func TestUSGS3DEPCheckAvailability(t *testing.T) {
	adapter := NewUSGS3DEPAdapter()

	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{"colorado", 38.5, -105.0, true},
		{"alaska", 64.0, -150.0, true},
		{"amazon", -3.11, -60.04, false},
		{"germany", 51.0, 7.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bbox, err := boundingBoxFromPoint(tt.lat, tt.lng, 1.0)
			require.NoError(t, err)
			ok, err := adapter.CheckAvailability(context.Background(), DownloadRequest{
				BBox: bbox, DataType: DataTypeLAZ, Resolution: ResolutionHigh,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestUSGS3DEPDownloadWritesInstructions(t *testing.T) {
	adapter := NewUSGS3DEPAdapter()
	bbox, err := boundingBoxFromPoint(38.5, -105.0, 1.0)
	require.NoError(t, err)

	result := adapter.Download(context.Background(), DownloadRequest{
		BBox: bbox, DataType: DataTypeLAZ, Resolution: ResolutionHigh,
	}, nopSink{})
	require.True(t, result.Success)
	defer os.RemoveAll(filepath.Dir(result.FilePath))

	assert.Equal(t, "true", result.Metadata["instructions"])
	assert.False(t, isRasterArtifact(result.FilePath), "instructions never reach the raster pipeline")

	content, err := os.ReadFile(result.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "nationalmap.gov")
}

func TestORNLSelectDataset(t *testing.T) {
	adapter := NewORNLDAACAdapter(Credentials{}, 0)

	amazon, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)
	europe, err := boundingBoxFromPoint(51.0, 7.0, 1.0)
	require.NoError(t, err)

	dataset, ok := adapter.selectDataset(DownloadRequest{BBox: amazon, DataType: DataTypeElevation})
	require.True(t, ok)
	assert.Equal(t, "AMAZON_DEM", dataset.Name)

	dataset, ok = adapter.selectDataset(DownloadRequest{BBox: europe, DataType: DataTypeElevation})
	require.True(t, ok)
	assert.Equal(t, "SRTM_RAMP2", dataset.Name)

	dataset, ok = adapter.selectDataset(DownloadRequest{BBox: amazon, DataType: DataTypeRadar})
	require.True(t, ok)
	assert.Equal(t, "LBA_SAR_MOSAIC", dataset.Name)

	_, ok = adapter.selectDataset(DownloadRequest{BBox: europe, DataType: DataTypeRadar})
	assert.False(t, ok, "the SAR mosaic covers South America only")

	_, ok = adapter.selectDataset(DownloadRequest{BBox: amazon, DataType: DataTypeImagery})
	assert.False(t, ok)
}

func TestDownloadDestination(t *testing.T) {
	bbox, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)

	dir, baseName, err := downloadDestination(DownloadRequest{BBox: bbox}, "COP30", "tif")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	assert.Equal(t, "3.11S_60.04W_COP30.tif", baseName, "anonymous requests slug from the center")

	dir2, baseName, err := downloadDestination(DownloadRequest{BBox: bbox, RegionName: "named"}, "COP30", "tif")
	require.NoError(t, err)
	defer os.RemoveAll(dir2)
	assert.Equal(t, "named_COP30.tif", baseName)
	assert.True(t, strings.HasPrefix(filepath.Base(dir2), "terrain-download-"))
}
