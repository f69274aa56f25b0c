package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineTasks(t *testing.T) {
	names := make([]string, 0, len(pipelineTasks))
	for _, task := range pipelineTasks {
		names = append(names, task.Name)
		assert.NotEmpty(t, task.Subdir)
	}
	assert.Equal(t, []string{
		"hillshade_315", "hillshade_225", "hillshade_multi_rgb",
		"slope", "aspect", "tpi", "color_relief",
	}, names)
}

func TestElevationInput(t *testing.T) {
	store, _ := newTestStore(t)
	progConfig = ProgConfig{}
	applyConfigDefaults(&progConfig)
	pipeline := NewPipeline(store)

	_, err := pipeline.elevationInput("missing-region")
	assert.Error(t, err)

	require.NoError(t, store.EnsureLayout("3.11S_60.04W"))
	dtm := filepath.Join(store.LidarDir("3.11S_60.04W"), "DTM", "3.11S_60.04W_elevation.tif")
	require.NoError(t, os.WriteFile(dtm, []byte("tif"), 0o644))

	input, err := pipeline.elevationInput("3.11S_60.04W")
	require.NoError(t, err)
	assert.Equal(t, dtm, input)
}

func TestProductPNGPaths(t *testing.T) {
	store, _ := newTestStore(t)
	progConfig = ProgConfig{}
	applyConfigDefaults(&progConfig)
	pipeline := NewPipeline(store)

	pngOutputs := filepath.Join(store.LidarDir("3.11S_60.04W"), "png_outputs")
	assert.Equal(t,
		filepath.Join(pngOutputs, "3.11S_60.04W_slope.png"),
		pipeline.cleanPNGPath("3.11S_60.04W", "3.11S_60.04W_slope"))
	assert.Equal(t,
		filepath.Join(pngOutputs, "matplotlib", "CHM_matplot.png"),
		pipeline.decoratedPNGPath("3.11S_60.04W", "CHM_matplot"))

	// the PNG directories are part of the region layout and are recreated
	// on demand before a pipeline run
	require.NoError(t, pipeline.ensurePNGOutputDirs("3.11S_60.04W"))
	assert.DirExists(t, filepath.Join(pngOutputs, "matplotlib"))
}

func TestQualityInputWithoutCroppedLAZ(t *testing.T) {
	store, _ := newTestStore(t)
	progConfig = ProgConfig{}
	applyConfigDefaults(&progConfig)
	pipeline := NewPipeline(store)

	require.NoError(t, store.EnsureLayout("raw-only"))
	input, suffix := pipeline.qualityInput("raw-only", "/data/raw.tif")
	assert.Equal(t, "/data/raw.tif", input, "no cropped point cloud keeps the raw DTM")
	assert.Empty(t, suffix)
}

func TestQualityInputFallsBackWhenBuilderFails(t *testing.T) {
	store, _ := newTestStore(t)
	progConfig = ProgConfig{}
	applyConfigDefaults(&progConfig)
	pipeline := NewPipeline(store)

	slug := "quality-region"
	require.NoError(t, store.EnsureLayout(slug))
	cropped := filepath.Join(store.LidarDir(slug), "cropped", slug+"_cropped.las")
	require.NoError(t, os.WriteFile(cropped, []byte("laz"), 0o644))

	// the dtm-builder binary is absent in the test environment, so the
	// quality path degrades to the raw DTM without a suffix
	input, suffix := pipeline.qualityInput(slug, "/data/raw.tif")
	assert.Equal(t, "/data/raw.tif", input)
	assert.Empty(t, suffix)
}

func TestPipelineRunMissingDTM(t *testing.T) {
	store, _ := newTestStore(t)
	progConfig = ProgConfig{}
	applyConfigDefaults(&progConfig)
	pipeline := NewPipeline(store)

	sink := &collectSink{}
	err := pipeline.Run(context.Background(), "no-such-region", sink)
	require.Error(t, err)
	require.Len(t, sink.ofType(EventProcessingError), 1)
}

func TestNewerThan(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older")
	newer := filepath.Join(dir, "newer")

	require.NoError(t, os.WriteFile(older, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("b"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	assert.True(t, newerThan(newer, older))
	assert.False(t, newerThan(older, newer))
	assert.False(t, newerThan(filepath.Join(dir, "missing"), older))
	assert.True(t, newerThan(newer, filepath.Join(dir, "missing")))
}

func TestComputeNDVI(t *testing.T) {
	nir := NewGrid(3, 1, 1.0, 1.0)
	nir.Values = []float64{0.8, 0.5, 0.0}
	red := NewGrid(3, 1, 1.0, 1.0)
	red.Values = []float64{0.2, 0.5, 0.0}

	ndvi, err := computeNDVI(nir, red)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, ndvi.Values[0], 1e-9)
	assert.InDelta(t, 0.0, ndvi.Values[1], 1e-9)
	assert.True(t, math.IsNaN(ndvi.Values[2]), "zero denominator is nodata")
}

func TestComputeNDVINoData(t *testing.T) {
	nir := NewGrid(2, 1, 1.0, 1.0)
	nir.Values = []float64{math.NaN(), 0.7}
	red := NewGrid(2, 1, 1.0, 1.0)
	red.Values = []float64{0.3, math.NaN()}

	ndvi, err := computeNDVI(nir, red)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(ndvi.Values[0]))
	assert.True(t, math.IsNaN(ndvi.Values[1]))
}

func TestComputeNDVISizeMismatch(t *testing.T) {
	nir := NewGrid(3, 1, 1.0, 1.0)
	red := NewGrid(2, 1, 1.0, 1.0)
	_, err := computeNDVI(nir, red)
	assert.Error(t, err)
}

func TestComputeNDVIRange(t *testing.T) {
	nir := NewGrid(4, 1, 1.0, 1.0)
	nir.Values = []float64{1.0, 0.0, 0.6, 0.1}
	red := NewGrid(4, 1, 1.0, 1.0)
	red.Values = []float64{0.0, 1.0, 0.4, 0.9}

	ndvi, err := computeNDVI(nir, red)
	require.NoError(t, err)
	for _, v := range ndvi.Values {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}
