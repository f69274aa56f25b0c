package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures across adapters, router, orchestrator and pipeline.
type ErrorKind string

// error taxonomy
const (
	KindUnknown              ErrorKind = "UNKNOWN"
	KindNetwork              ErrorKind = "NETWORK"
	KindAPIKeyMissing        ErrorKind = "API_KEY_MISSING"
	KindRateLimit            ErrorKind = "RATE_LIMIT"
	KindInvalidCoordinates   ErrorKind = "INVALID_COORDINATES"
	KindDataNotAvailable     ErrorKind = "DATA_NOT_AVAILABLE"
	KindFileSizeExceeded     ErrorKind = "FILE_SIZE_EXCEEDED"
	KindCache                ErrorKind = "CACHE"
	KindProcessing           ErrorKind = "PROCESSING"
	KindCoordinateConversion ErrorKind = "COORDINATE_CONVERSION"
	KindAuth                 ErrorKind = "AUTH"
	KindTimeout              ErrorKind = "TIMEOUT"
	KindCancelled            ErrorKind = "CANCELLED"
	KindMissingDSM           ErrorKind = "MISSING_DSM"
)

// DownloadError represents a typed failure. Adapters convert every internal
// error into a DownloadError and return it inside DownloadResult; errors never
// bubble past the adapter boundary.
type DownloadError struct {
	Kind    ErrorKind
	Message string
}

/*
Error implements the error interface.
*/
func (e *DownloadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

/*
newDownloadError builds a typed failure with formatted message.
*/
func newDownloadError(kind ErrorKind, format string, args ...any) *DownloadError {
	return &DownloadError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

/*
classifyError maps an arbitrary error to its ErrorKind. Context cancellation
and deadline expiry are distinguished so cancelled operations never surface
as generic errors.
*/
func classifyError(err error) ErrorKind {
	var derr *DownloadError
	if errors.As(err, &derr) {
		return derr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

/*
classifyHTTPStatus maps an upstream HTTP status code to an ErrorKind.
*/
func classifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestEntityTooLarge:
		return KindFileSizeExceeded
	case status == http.StatusNotFound:
		return KindDataNotAvailable
	case status >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}

/*
failure builds a failed DownloadResult carrying the typed error.
*/
func failure(kind ErrorKind, format string, args ...any) DownloadResult {
	return DownloadResult{
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: fmt.Sprintf(format, args...),
		Metadata:     map[string]string{},
	}
}

/*
failureFrom builds a failed DownloadResult from a DownloadError.
*/
func failureFrom(derr *DownloadError) DownloadResult {
	return DownloadResult{
		Success:      false,
		ErrorKind:    derr.Kind,
		ErrorMessage: derr.Message,
		Metadata:     map[string]string{},
	}
}
