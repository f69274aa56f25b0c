package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SourceAdapter is the uniform capability interface of every external data
// provider. Implementations convert all failures to typed DownloadResults,
// never panics or raw errors across this boundary.
type SourceAdapter interface {
	// Name returns the stable adapter identifier used by the router.
	Name() string

	// Capabilities returns the static capability set.
	Capabilities() SourceCapability

	// CheckAvailability reports whether the adapter can serve the request.
	// Side-effect free; at most a single HEAD/STAC query; bounded by the
	// availability timeout.
	CheckAvailability(ctx context.Context, req DownloadRequest) (bool, error)

	// EstimateSize returns an upper bound of the download size in MB.
	// If unknown, the request's MaxFileSizeMB is returned.
	EstimateSize(ctx context.Context, req DownloadRequest) (float64, error)

	// Download retrieves the data honoring the context for cancellation,
	// emitting progress events through the sink, writing to a temporary
	// path and atomically moving into place.
	Download(ctx context.Context, req DownloadRequest, sink ProgressSink) DownloadResult
}

/*
validateDownloadRequest performs the shared request checks common to all
adapters: bounding box invariants, data type support and area limit.
*/
func validateDownloadRequest(capability SourceCapability, req DownloadRequest) *DownloadError {
	if err := req.BBox.Validate(); err != nil {
		return newDownloadError(KindInvalidCoordinates, "invalid bounding box: %v", err)
	}
	if !capability.SupportsDataType(req.DataType) {
		return newDownloadError(KindDataNotAvailable, "data type [%s] not supported", req.DataType)
	}
	if capability.MaxAreaKm2 > 0 {
		area := req.BBox.AreaKm2()
		if area > capability.MaxAreaKm2 {
			return newDownloadError(KindFileSizeExceeded,
				"requested area %.1f km2 exceeds limit of %.1f km2", area, capability.MaxAreaKm2)
		}
	}
	if req.RegionName != "" {
		if err := validateRegionName(req.RegionName); err != nil {
			return newDownloadError(KindInvalidCoordinates, "%v", err)
		}
	}
	return nil
}

/*
newHTTPClient builds the shared HTTP client for adapter traffic.
*/
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

/*
doWithRetry executes an HTTP request with bounded exponential backoff.
Only transient upstream failures (5xx, transport errors) are retried;
4xx responses are permanent.
*/
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		request, err := build()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		response, err := client.Do(request.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if response.StatusCode >= 500 {
			_ = response.Body.Close()
			return nil, fmt.Errorf("upstream status %d", response.StatusCode)
		}
		return response, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.RetryWithData(operation, policy)
}

// TIFF magic numbers (little and big endian)
var (
	tiffMagicLittleEndian = []byte{0x49, 0x49, 0x2A, 0x00} // II*\0
	tiffMagicBigEndian    = []byte{0x4D, 0x4D, 0x00, 0x2A} // MM\0*
)

/*
isValidRasterResponse determines response validity: HTTP 200 together with
any of content-type image/* or application/*, a TIFF magic number in the
first 4 bytes, or the GDAL_STRUCTURAL_METADATA marker in the first 1 KB.
*/
func isValidRasterResponse(status int, contentType string, head []byte) bool {
	if status != http.StatusOK {
		return false
	}
	lowered := strings.ToLower(contentType)
	if strings.HasPrefix(lowered, "image/") || strings.HasPrefix(lowered, "application/") {
		return true
	}
	if len(head) >= 4 {
		if bytes.Equal(head[:4], tiffMagicLittleEndian) || bytes.Equal(head[:4], tiffMagicBigEndian) {
			return true
		}
	}
	limit := len(head)
	if limit > 1024 {
		limit = 1024
	}
	return bytes.Contains(head[:limit], []byte("GDAL_STRUCTURAL_METADATA"))
}

// progress emission thresholds
const (
	progressStepPercent = 5
	progressStepBytes   = 5 * 1024 * 1024
)

// saveOptions controls saveResponseBody behavior.
type saveOptions struct {
	destDir   string
	baseName  string
	provider  string
	maxSizeMB float64
	registry  *DownloadRegistry
	download  string // download id for partial path registration
}

/*
saveResponseBody streams a response body to disk. The body is written to a
temporary path and atomically renamed so the target is never partially
populated. Progress events are emitted on start, on every >=5% of known
size (or every >=5 MB when the size is unknown) and on completion. The
context interrupts the stream within one read.
*/
func saveResponseBody(ctx context.Context, body io.Reader, contentLength int64, sink ProgressSink, opts saveOptions) (string, float64, *DownloadError) {
	if err := os.MkdirAll(opts.destDir, 0o755); err != nil {
		return "", 0, newDownloadError(KindCache, "error [%v] at os.MkdirAll()", err)
	}

	destPath := filepath.Join(opts.destDir, opts.baseName)
	tempPath := destPath + ".partial"
	if opts.registry != nil && opts.download != "" {
		opts.registry.SetPartialPath(opts.download, tempPath)
	}

	out, err := os.Create(tempPath)
	if err != nil {
		return "", 0, newDownloadError(KindCache, "error [%v] at os.Create()", err)
	}

	cleanup := func() {
		_ = out.Close()
		_ = os.Remove(tempPath)
	}

	sink.Emit(ProgressEvent{Type: EventDownloadStarted, Provider: opts.provider})

	totalBytes := contentLength
	maxBytes := int64(opts.maxSizeMB * 1024 * 1024)
	var written int64
	var lastPercent int
	var lastEmitted int64

	buffer := make([]byte, 256*1024)
	for {
		if ctx.Err() != nil {
			cleanup()
			return "", 0, newDownloadError(KindCancelled, "download cancelled")
		}
		n, readErr := body.Read(buffer)
		if n > 0 {
			if _, writeErr := out.Write(buffer[:n]); writeErr != nil {
				cleanup()
				return "", 0, newDownloadError(KindCache, "error [%v] at out.Write()", writeErr)
			}
			written += int64(n)

			if maxBytes > 0 && written > maxBytes {
				cleanup()
				return "", 0, newDownloadError(KindFileSizeExceeded,
					"download exceeds limit of %.1f MB", opts.maxSizeMB)
			}

			if totalBytes > 0 {
				percent := int(written * 100 / totalBytes)
				if percent >= lastPercent+progressStepPercent {
					lastPercent = percent
					sink.Emit(ProgressEvent{Type: EventDownloadProgress, Provider: opts.provider, Progress: percent})
				}
			} else if written >= lastEmitted+progressStepBytes {
				lastEmitted = written
				sink.Emit(ProgressEvent{Type: EventDownloadProgress, Provider: opts.provider,
					DownloadedMB: float64(written) / (1024 * 1024)})
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			cleanup()
			if ctx.Err() != nil {
				return "", 0, newDownloadError(KindCancelled, "download cancelled")
			}
			if errors.Is(readErr, context.DeadlineExceeded) || os.IsTimeout(readErr) {
				return "", 0, newDownloadError(KindTimeout, "timeout reading response body")
			}
			return "", 0, newDownloadError(KindNetwork, "error [%v] reading response body", readErr)
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, newDownloadError(KindCache, "error [%v] at out.Close()", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, newDownloadError(KindCache, "error [%v] at os.Rename()", err)
	}

	sizeMB := float64(written) / (1024 * 1024)
	sink.Emit(ProgressEvent{Type: EventDownloadComplete, Provider: opts.provider, FileSizeMB: sizeMB})
	return destPath, sizeMB, nil
}

/*
peekResponseHead reads up to 1 KB of the response body for raster validity
checks and returns a body that replays the consumed bytes.
*/
func peekResponseHead(response *http.Response) ([]byte, io.Reader, error) {
	head := make([]byte, 1024)
	n, err := io.ReadFull(response.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("error [%w] reading response head", err)
	}
	head = head[:n]
	return head, io.MultiReader(bytes.NewReader(head), response.Body), nil
}
