package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{429, KindRateLimit},
		{413, KindFileSizeExceeded},
		{404, KindDataNotAvailable},
		{500, KindNetwork},
		{502, KindNetwork},
		{503, KindNetwork},
		{200, KindUnknown},
		{418, KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyHTTPStatus(tt.status), "status %d", tt.status)
	}
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, KindCancelled, classifyError(context.Canceled))
	assert.Equal(t, KindTimeout, classifyError(context.DeadlineExceeded))
	assert.Equal(t, KindNetwork, classifyError(errors.New("connection reset")))

	derr := newDownloadError(KindRateLimit, "slow down")
	assert.Equal(t, KindRateLimit, classifyError(derr))

	// wrapped typed errors still classify through errors.As / errors.Is
	assert.Equal(t, KindRateLimit, classifyError(fmt.Errorf("error [%w] at request()", derr)))
	assert.Equal(t, KindCancelled, classifyError(fmt.Errorf("error [%w] at download()", context.Canceled)))
}

func TestDownloadErrorMessage(t *testing.T) {
	derr := newDownloadError(KindAuth, "token rejected for %s", "client-1")
	assert.Equal(t, "AUTH: token rejected for client-1", derr.Error())
}

func TestFailureCarriesKindAndMessage(t *testing.T) {
	result := failure(KindDataNotAvailable, "no coverage at %s", "3.11S_60.04W")
	assert.False(t, result.Success)
	assert.Equal(t, KindDataNotAvailable, result.ErrorKind)
	assert.Equal(t, "no coverage at 3.11S_60.04W", result.ErrorMessage)
	require.NotNil(t, result.Metadata, "callers annotate metadata without a nil check")
}

func TestFailureFrom(t *testing.T) {
	result := failureFrom(newDownloadError(KindTimeout, "deadline hit"))
	assert.False(t, result.Success)
	assert.Equal(t, KindTimeout, result.ErrorKind)
	assert.Equal(t, "deadline hit", result.ErrorMessage)
}
