package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RegionStore, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRegionStore(filepath.Join(dir, "output"), filepath.Join(dir, "input")), dir
}

func TestEnsureLayout(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.EnsureLayout("3.11S_60.04W"))

	for _, sub := range []string{"DTM", "DSM", "CHM", "Hillshade", "Slope", "LRM", "cropped"} {
		assert.DirExists(t, filepath.Join(store.LidarDir("3.11S_60.04W"), sub))
	}
	assert.DirExists(t, store.InputDir("3.11S_60.04W"))

	// idempotent
	require.NoError(t, store.EnsureLayout("3.11S_60.04W"))
}

func TestEnsureLayoutRejectsBadSlug(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.EnsureLayout("../escape"))
	assert.Error(t, store.EnsureLayout(""))
}

func TestRegisterDownload(t *testing.T) {
	store, dir := newTestStore(t)
	cached := writeTempFile(t, dir, "blob.tif", "raster bytes")

	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}
	meta := metadataFromBounds("3.11S_60.04W", SourceTypeCoordinate, -3.11, -60.04, bbox, false)

	registered, err := store.RegisterDownload("3.11S_60.04W", cached, meta)
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(store.LidarDir("3.11S_60.04W"), "DTM", "3.11S_60.04W_elevation.tif"),
		registered)

	content, err := os.ReadFile(registered)
	require.NoError(t, err)
	assert.Equal(t, "raster bytes", string(content))

	// a copy, not a link: the cache blob survives independent edits
	require.NoError(t, os.Remove(cached))
	assert.FileExists(t, registered)

	read, err := store.ReadMetadata("3.11S_60.04W")
	require.NoError(t, err)
	assert.Equal(t, "3.11S_60.04W", read.Name)
	assert.Equal(t, SourceTypeCoordinate, read.Source)
	require.NotNil(t, read.CenterLat)
	assert.Equal(t, -3.11, *read.CenterLat)
	assert.NotEmpty(t, read.FilePath)

	// center waypoint for GPS navigation
	assert.FileExists(t, filepath.Join(store.RegionDir("3.11S_60.04W"), "region.gpx"))
}

func TestRegisterImagery(t *testing.T) {
	store, dir := newTestStore(t)
	cached := writeTempFile(t, dir, "composite.tif", "band stack")

	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}
	meta := metadataFromBounds("3.11S_60.04W", SourceTypeCoordinate, -3.11, -60.04, bbox, true)

	registered, err := store.RegisterImagery("3.11S_60.04W", cached, meta)
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(store.Sentinel2Dir("3.11S_60.04W"), "3.11S_60.04W_sentinel2_composite.tif"),
		registered)
	assert.FileExists(t, registered)

	// imagery never enters the DTM tree
	dtmFiles, _ := filepath.Glob(filepath.Join(store.LidarDir("3.11S_60.04W"), "DTM", "*"))
	assert.Empty(t, dtmFiles)

	read, err := store.ReadMetadata("3.11S_60.04W")
	require.NoError(t, err)
	assert.True(t, read.NDVIEnabled)
}

func TestRegisterRaw(t *testing.T) {
	store, dir := newTestStore(t)
	cached := writeTempFile(t, dir, "usgs_instructions.txt", "visit the national map downloader")

	bbox := BoundingBox{West: -105.1, South: 38.4, East: -104.9, North: 38.6}
	meta := metadataFromBounds("38.50N_105.00W", SourceTypeCoordinate, 38.5, -105.0, bbox, false)

	registered, err := store.RegisterRaw("38.50N_105.00W", cached, meta)
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(store.InputDir("38.50N_105.00W"), "usgs_instructions.txt"),
		registered, "raw artifacts keep their original name under the input directory")
	assert.FileExists(t, registered)
}

func TestWriteMetadataPreservation(t *testing.T) {
	store, _ := newTestStore(t)
	slug := "preserved"
	require.NoError(t, store.EnsureLayout(slug))

	authoritative := "# Source: Elevation API\nRegion Name: preserved\nDownload ID: 42\n"
	require.NoError(t, os.WriteFile(store.metadataPath(slug), []byte(authoritative), 0o644))

	err := store.WriteMetadata(slug, RegionMetadata{Name: slug, Source: SourceTypeInputLAZ})
	require.NoError(t, err)

	content, err := os.ReadFile(store.metadataPath(slug))
	require.NoError(t, err)
	assert.Equal(t, authoritative, string(content), "marker files are never rewritten")
}

func TestWriteMetadataMergesRicherValues(t *testing.T) {
	store, _ := newTestStore(t)
	slug := "merged"

	rich := RegionMetadata{
		Name:      slug,
		Source:    SourceTypeCoordinate,
		CenterLat: floatPtr(-12.53),
		CenterLng: floatPtr(-53.02),
		SourceCRS: "EPSG:31981",
	}
	require.NoError(t, store.WriteMetadata(slug, rich))

	// a later sparse write must not destroy bounds or CRS
	require.NoError(t, store.WriteMetadata(slug, RegionMetadata{Name: slug, Source: SourceTypeInputLAZ}))

	read, err := store.ReadMetadata(slug)
	require.NoError(t, err)
	assert.Equal(t, SourceTypeInputLAZ, read.Source)
	require.NotNil(t, read.CenterLat)
	assert.Equal(t, -12.53, *read.CenterLat)
	assert.Equal(t, "EPSG:31981", read.SourceCRS)
}

func TestCroppedLAZPath(t *testing.T) {
	store, _ := newTestStore(t)
	slug := "quality"
	require.NoError(t, store.EnsureLayout(slug))

	_, ok := store.CroppedLAZPath(slug)
	assert.False(t, ok)

	cropped := filepath.Join(store.LidarDir(slug), "cropped", slug+"_cropped.las")
	require.NoError(t, os.WriteFile(cropped, []byte("laz"), 0o644))

	path, ok := store.CroppedLAZPath(slug)
	require.True(t, ok)
	assert.Equal(t, cropped, path)
}

func TestListRegions(t *testing.T) {
	store, dir := newTestStore(t)

	// registered coordinate region in the output tree
	cached := writeTempFile(t, dir, "blob.tif", "raster")
	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}
	meta := metadataFromBounds("3.11S_60.04W", SourceTypeCoordinate, -3.11, -60.04, bbox, false)
	_, err := store.RegisterDownload("3.11S_60.04W", cached, meta)
	require.NoError(t, err)

	// raw LAZ drop in the input tree, never opened during listing
	lazDir := filepath.Join(dir, "input", "LAZ")
	require.NoError(t, os.MkdirAll(lazDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lazDir, "survey_flight.laz"), []byte("laz"), 0o644))

	regions, err := store.ListRegions("", false)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	byName := make(map[string]Region)
	for _, r := range regions {
		byName[r.Name] = r
	}

	coord := byName["3.11S_60.04W"]
	assert.Equal(t, SourceTypeCoordinate, coord.SourceType)
	require.NotNil(t, coord.CenterLat)
	assert.Equal(t, -3.11, *coord.CenterLat)
	require.NotNil(t, coord.Bounds)

	laz := byName["survey_flight"]
	assert.Equal(t, SourceTypeInputLAZ, laz.SourceType)
	assert.Nil(t, laz.CenterLat, "LAZ analysis is deferred until selection")
	assert.Nil(t, laz.CenterLng)
}

func TestListRegionsFilters(t *testing.T) {
	store, dir := newTestStore(t)

	cached := writeTempFile(t, dir, "blob.tif", "raster")
	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}
	meta := metadataFromBounds("3.11S_60.04W", SourceTypeCoordinate, -3.11, -60.04, bbox, false)
	_, err := store.RegisterDownload("3.11S_60.04W", cached, meta)
	require.NoError(t, err)

	lazDir := filepath.Join(dir, "input", "LAZ")
	require.NoError(t, os.MkdirAll(lazDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lazDir, "survey_flight.laz"), []byte("laz"), 0o644))

	regions, err := store.ListRegions(SourceTypeInputLAZ, false)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "survey_flight", regions[0].Name)

	// processed filter requires metadata.txt plus a populated lidar tree;
	// the registered region has the elevation file, the LAZ drop has nothing
	regions, err = store.ListRegions("", true)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "3.11S_60.04W", regions[0].Name)
}

func TestDeleteRegion(t *testing.T) {
	store, dir := newTestStore(t)

	cached := writeTempFile(t, dir, "blob.tif", "raster")
	bbox := BoundingBox{West: -60.05, South: -3.12, East: -60.03, North: -3.10}
	meta := metadataFromBounds("3.11S_60.04W", SourceTypeCoordinate, -3.11, -60.04, bbox, false)
	registered, err := store.RegisterDownload("3.11S_60.04W", cached, meta)
	require.NoError(t, err)

	lazDir := filepath.Join(dir, "input", "LAZ")
	require.NoError(t, os.MkdirAll(lazDir, 0o755))
	rawLAZ := filepath.Join(lazDir, "3.11S_60.04W.laz")
	require.NoError(t, os.WriteFile(rawLAZ, []byte("laz"), 0o644))

	require.NoError(t, store.DeleteRegion("3.11S_60.04W"))
	assert.NoFileExists(t, registered)
	assert.NoDirExists(t, store.RegionDir("3.11S_60.04W"))
	assert.NoFileExists(t, rawLAZ)

	// the cache blob outside the region trees is untouched
	assert.FileExists(t, cached)

	assert.Error(t, store.DeleteRegion("../escape"))
}
