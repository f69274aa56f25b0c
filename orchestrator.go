package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AcquireOptions carries the optional parts of an acquisition request.
type AcquireOptions struct {
	DataType    DataType
	Resolution  Resolution
	Sources     []string
	RegionName  string
	NDVIEnabled bool
}

// Orchestrator drives an acquisition end to end: request validation,
// geographic routing, cache lookup, progress decoration, region
// registration, and optional processing trigger.
type Orchestrator struct {
	router   *GeographicRouter
	cache    *DownloadCache
	store    *RegionStore
	registry *DownloadRegistry

	// process runs the derivative pipeline after a successful
	// registration; nil skips processing.
	process func(ctx context.Context, regionName string, sink ProgressSink) error

	maxFileSizeMB float64
}

/*
NewOrchestrator wires the orchestrator from its collaborators.
*/
func NewOrchestrator(router *GeographicRouter, cache *DownloadCache, store *RegionStore, registry *DownloadRegistry) *Orchestrator {
	return &Orchestrator{
		router:        router,
		cache:         cache,
		store:         store,
		registry:      registry,
		maxFileSizeMB: progConfig.MaxFileSizeMB,
	}
}

/*
SetProcessor installs the post-acquisition processing hook.
*/
func (o *Orchestrator) SetProcessor(process func(ctx context.Context, regionName string, sink ProgressSink) error) {
	o.process = process
}

/*
Acquire downloads terrain data for a point with a buffer. Sources are
cache-checked first in routing order; a hit returns synthetically without
network traffic. Otherwise the router cascade runs once. Cancellation via
the registry produces a cancelled result with no file and the cache
untouched.
*/
func (o *Orchestrator) Acquire(ctx context.Context, lat, lng, bufferKm float64, opts AcquireOptions, sink ProgressSink) AcquisitionResult {
	statistics.AcquisitionsTotal.Add(1)
	if sink == nil {
		sink = nopSink{}
	}

	bbox, err := boundingBoxFromPoint(lat, lng, bufferKm)
	if err != nil {
		statistics.AcquisitionsFailed.Add(1)
		return AcquisitionResult{
			Errors: []SourceError{{Kind: classifyError(err), Message: err.Error()}},
		}
	}

	regionName := opts.RegionName
	if regionName == "" {
		regionName = coordinateSlug(lat, lng)
	}
	if err := validateRegionName(regionName); err != nil {
		statistics.AcquisitionsFailed.Add(1)
		return AcquisitionResult{
			Errors: []SourceError{{Kind: KindInvalidCoordinates, Message: err.Error()}},
		}
	}

	dataType := opts.DataType
	if dataType == "" {
		dataType = DataTypeElevation
	}
	resolution := opts.Resolution
	if resolution == "" {
		resolution = ResolutionMedium
	}

	req := DownloadRequest{
		BBox:          bbox,
		DataType:      dataType,
		Resolution:    resolution,
		OutputFormat:  "GTiff",
		MaxFileSizeMB: o.maxFileSizeMB,
		RegionName:    regionName,
	}

	downloadID := uuid.NewString()
	downloadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.registry.Register(downloadID, cancel)
	defer o.registry.Release(downloadID)

	// adapters register their in-flight temp file through these handles so
	// an external Cancel can remove the partial download
	req.Registry = o.registry
	req.DownloadID = downloadID

	decorated := decorateSink(sink, "", regionName, downloadID)
	slog.Info("acquisition started",
		"region", regionName, "download id", downloadID,
		"lat", lat, "lng", lng, "buffer km", bufferKm, "data type", dataType)

	// cache pass in routing order, before any network traffic
	_, sources := o.router.SourcesFor(req, opts.Sources)
	for _, source := range sources {
		key := downloadCacheKey(source, lat, lng, bufferKm, req.Resolution, req.DataType)
		path, entry, ok := o.cache.Get(key)
		if !ok {
			continue
		}
		statistics.CacheHits.Add(1)
		decorated.Emit(ProgressEvent{Type: EventCacheHit, Source: source, Message: filepath.Base(path)})
		slog.Info("cache hit", "region", regionName, "source", source, "file", path)

		result := DownloadResult{
			Success:    true,
			FilePath:   path,
			FileSizeMB: float64(entry.FileSize) / (1024 * 1024),
			Metadata:   cloneMetadata(entry.Metadata),
		}
		return o.finish(downloadCtx, lat, lng, bbox, req, source, downloadID, opts.NDVIEnabled, result, nil, decorated)
	}

	result, sourceErrors := o.router.DownloadWithRouting(downloadCtx, req, opts.Sources, decorated)
	if !result.Success && (result.ErrorKind == KindCancelled || downloadCtx.Err() != nil) {
		statistics.AcquisitionsCancelled.Add(1)
		decorated.Emit(ProgressEvent{Type: EventDownloadCancelled})
		slog.Info("acquisition cancelled", "region", regionName, "download id", downloadID)
		return AcquisitionResult{
			Cancelled:  true,
			RegionName: regionName,
			DownloadID: downloadID,
			Errors:     sourceErrors,
		}
	}
	if !result.Success {
		statistics.AcquisitionsFailed.Add(1)
		if len(sourceErrors) == 0 {
			sourceErrors = []SourceError{{Kind: result.ErrorKind, Message: result.ErrorMessage}}
		}
		slog.Warn("acquisition failed", "region", regionName, "errors", len(sourceErrors))
		return AcquisitionResult{
			RegionName: regionName,
			DownloadID: downloadID,
			Errors:     sourceErrors,
		}
	}

	source := result.Metadata["selected_source"]
	key := downloadCacheKey(source, lat, lng, bufferKm, req.Resolution, req.DataType)
	if _, err := o.cache.Put(key, result.FilePath, result.Metadata); err != nil {
		slog.Warn("cache store failed", "key", key, "error", err)
	}

	return o.finish(downloadCtx, lat, lng, bbox, req, source, downloadID, opts.NDVIEnabled, result, sourceErrors, decorated)
}

/*
finish registers the downloaded file into the region tree, stamps metadata,
emits the terminal event, and triggers processing for elevation rasters.
Imagery lands in the sentinel2 input directory, any other non-elevation
artifact keeps its name under the raw input directory; neither enters the
DTM tree or the derivative pipeline.
*/
func (o *Orchestrator) finish(ctx context.Context, lat, lng float64, bbox BoundingBox, req DownloadRequest, source, downloadID string, ndviEnabled bool, result DownloadResult, sourceErrors []SourceError, sink ProgressSink) AcquisitionResult {
	meta := metadataFromBounds(req.RegionName, SourceTypeCoordinate, lat, lng, bbox, ndviEnabled)
	if isRasterArtifact(result.FilePath) {
		if crs, native, err := rasterCRSInfo(result.FilePath); err == nil {
			meta.SourceCRS = crs
			meta.NativeBounds = native
		}
		// actual raster coverage supersedes the requested bounds when readable
		if actual, err := wgs84BoundsOf(result.FilePath); err == nil {
			meta.NorthBound = &actual.North
			meta.SouthBound = &actual.South
			meta.EastBound = &actual.East
			meta.WestBound = &actual.West
		}
	}

	var registeredPath string
	var err error
	switch req.DataType {
	case DataTypeImagery:
		registeredPath, err = o.store.RegisterImagery(req.RegionName, result.FilePath, meta)
	case DataTypeElevation:
		registeredPath, err = o.store.RegisterDownload(req.RegionName, result.FilePath, meta)
	default:
		registeredPath, err = o.store.RegisterRaw(req.RegionName, result.FilePath, meta)
	}
	if err != nil {
		statistics.AcquisitionsFailed.Add(1)
		slog.Warn("region registration failed", "region", req.RegionName, "error", err)
		return AcquisitionResult{
			RegionName: req.RegionName,
			DownloadID: downloadID,
			Errors: append(sourceErrors, SourceError{
				Source: source, Kind: KindCache, Message: err.Error(),
			}),
		}
	}

	statistics.AcquisitionsSucceeded.Add(1)
	statistics.DownloadedMB.Add(uint64(result.FileSizeMB))
	sink.Emit(ProgressEvent{
		Type:       EventDownloadComplete,
		Source:     source,
		FileSizeMB: result.FileSizeMB,
		Message:    filepath.Base(registeredPath),
	})
	slog.Info("acquisition complete",
		"region", req.RegionName, "source", source, "file", registeredPath, "size mb", result.FileSizeMB)

	if o.process != nil && req.DataType == DataTypeElevation && isRasterArtifact(registeredPath) {
		if err := o.process(ctx, req.RegionName, sink); err != nil {
			slog.Warn("processing after acquisition failed", "region", req.RegionName, "error", err)
		}
	}

	return AcquisitionResult{
		Success:    true,
		RegionName: req.RegionName,
		DownloadID: downloadID,
		FilePath:   registeredPath,
		Source:     source,
		FileSizeMB: result.FileSizeMB,
		Metadata:   result.Metadata,
		Errors:     sourceErrors,
	}
}

/*
Cancel stops the active download with the given ID. Returns false for an
unknown ID.
*/
func (o *Orchestrator) Cancel(downloadID string) bool {
	return o.registry.Cancel(downloadID)
}

/*
isRasterArtifact reports whether the registered file is a raster the
pipeline can process, as opposed to an instructions or placeholder text.
*/
func isRasterArtifact(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	default:
		return false
	}
}

/*
cloneMetadata copies a metadata map so cache index entries stay immutable.
*/
func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return map[string]string{}
	}
	clone := make(map[string]string, len(metadata))
	for key, value := range metadata {
		clone[key] = value
	}
	return clone
}
