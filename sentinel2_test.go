package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSentinel2Adapter(credentials Credentials) *CopernicusSentinel2Adapter {
	return NewCopernicusSentinel2Adapter(credentials, 5*time.Second)
}

func TestAccessTokenStaticWins(t *testing.T) {
	adapter := newSentinel2Adapter(Credentials{CDSEToken: "pre-signed"})
	adapter.tokenURL = "http://invalid.invalid/never-called"

	token, err := adapter.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pre-signed", token)
}

func TestAccessTokenMissingCredentials(t *testing.T) {
	adapter := newSentinel2Adapter(Credentials{})
	_, err := adapter.accessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindAPIKeyMissing, classifyError(err))
}

func TestAccessTokenClientCredentials(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "my-client", r.Form.Get("client_id"))
		assert.Equal(t, "my-secret", r.Form.Get("client_secret"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"expires_in":   600,
		})
	}))
	defer server.Close()

	adapter := newSentinel2Adapter(Credentials{CDSEClientID: "my-client", CDSEClientSecret: "my-secret"})
	adapter.tokenURL = server.URL

	token, err := adapter.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)

	// the cached token serves until the refresh margin
	token, err = adapter.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, int32(1), requests.Load(), "second call hits the cache")
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "token", "expires_in": 600})
	}))
	defer server.Close()

	adapter := newSentinel2Adapter(Credentials{CDSEClientID: "id", CDSEClientSecret: "secret"})
	adapter.tokenURL = server.URL

	_, err := adapter.accessToken(context.Background())
	require.NoError(t, err)

	// push the cached token inside the refresh margin
	adapter.tokenMu.Lock()
	adapter.tokenExpiry = time.Now().Add(30 * time.Second)
	adapter.tokenMu.Unlock()

	_, err = adapter.accessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
}

func TestAccessTokenSingleFlight(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "shared", "expires_in": 600})
	}))
	defer server.Close()

	adapter := newSentinel2Adapter(Credentials{CDSEClientID: "id", CDSEClientSecret: "secret"})
	adapter.tokenURL = server.URL

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := adapter.accessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "shared", token)
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), requests.Load(), "concurrent refreshes collapse into one request")
}

func TestAccessTokenAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := newSentinel2Adapter(Credentials{CDSEClientID: "id", CDSEClientSecret: "bad"})
	adapter.tokenURL = server.URL

	_, err := adapter.accessToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindAuth, classifyError(err))
}

func TestSearchSTAC(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "SENTINEL-2", query.Get("collections"))
		assert.NotEmpty(t, query.Get("bbox"))
		assert.Equal(t, "1", query.Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"features": []map[string]any{
				{
					"id": "S2A_MSIL2A_20260801",
					"properties": map[string]any{
						"datetime":       "2026-08-01T14:00:00Z",
						"eo:cloud_cover": 12.5,
					},
				},
			},
		})
	}))
	defer server.Close()

	adapter := newSentinel2Adapter(Credentials{})
	adapter.searchURL = server.URL

	bbox, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)
	items, err := adapter.searchSTAC(context.Background(), bbox, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "S2A_MSIL2A_20260801", items[0].ID)
	assert.Equal(t, 12.5, items[0].Properties.CloudCover)
}

func TestSentinel2CheckAvailability(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"features": []any{}})
	}))
	defer empty.Close()

	adapter := newSentinel2Adapter(Credentials{})
	adapter.searchURL = empty.URL

	bbox, err := boundingBoxFromPoint(-3.11, -60.04, 1.0)
	require.NoError(t, err)

	ok, err := adapter.CheckAvailability(context.Background(), DownloadRequest{
		BBox: bbox, DataType: DataTypeImagery, Resolution: ResolutionMedium,
	})
	require.NoError(t, err)
	assert.False(t, ok, "no scenes means no coverage")

	ok, _ = adapter.CheckAvailability(context.Background(), DownloadRequest{
		BBox: bbox, DataType: DataTypeElevation, Resolution: ResolutionMedium,
	})
	assert.False(t, ok, "elevation is not an imagery capability")
}

func TestProcessRequestBody(t *testing.T) {
	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}
	payload, err := processRequestBody(bbox)
	require.NoError(t, err)

	var body struct {
		Input struct {
			Bounds struct {
				BBox []float64 `json:"bbox"`
			} `json:"bounds"`
		} `json:"input"`
		Output struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"output"`
		Evalscript string `json:"evalscript"`
	}
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, []float64{-60.05, -3.12, -60.03, -3.10}, body.Input.Bounds.BBox)
	assert.Equal(t, 512, body.Output.Width)
	assert.Equal(t, 512, body.Output.Height)
	assert.Contains(t, body.Evalscript, "B08")
}
