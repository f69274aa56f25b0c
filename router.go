package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Routing region names, in detection priority order.
const (
	regionUS           = "us"
	regionBrazilAmazon = "brazil_amazon"
	regionBrazil       = "brazil"
	regionSouthAmerica = "south_america"
	regionGlobal       = "global"
)

// amazonBox is the Amazon sub-box inside Brazil.
var amazonBox = BoundingBox{West: -75.0, South: -5.0, East: -45.0, North: 5.0}

// brazilBox bounds the Brazilian territory coarsely.
var brazilBox = BoundingBox{West: -74.0, South: -34.0, East: -34.0, North: 5.5}

// routingTables maps region -> data type -> ordered adapter names. Ordering
// is stable; the first available adapter wins.
var routingTables = map[string]map[DataType][]string{
	regionUS: {
		DataTypeElevation: {"usgs_3dep", "opentopography", "ornl_daac"},
		DataTypeLAZ:       {"usgs_3dep"},
		DataTypeImagery:   {"copernicus_sentinel2"},
		DataTypeRadar:     {"ornl_daac"},
	},
	regionBrazilAmazon: {
		DataTypeElevation: {"brazilian_elevation", "ornl_daac", "opentopography"},
		DataTypeImagery:   {"copernicus_sentinel2"},
		DataTypeRadar:     {"ornl_daac"},
	},
	regionBrazil: {
		DataTypeElevation: {"brazilian_elevation", "opentopography"},
		DataTypeImagery:   {"copernicus_sentinel2"},
		DataTypeRadar:     {"ornl_daac"},
	},
	regionSouthAmerica: {
		DataTypeElevation: {"brazilian_elevation", "opentopography", "ornl_daac"},
		DataTypeImagery:   {"copernicus_sentinel2"},
		DataTypeRadar:     {"ornl_daac"},
	},
	regionGlobal: {
		DataTypeElevation: {"opentopography", "ornl_daac"},
		DataTypeLAZ:       {"usgs_3dep"},
		DataTypeImagery:   {"copernicus_sentinel2"},
		DataTypeRadar:     {"ornl_daac"},
	},
}

// GeographicRouter orders source adapters by the request's routing region
// and data type, and runs the failover cascade across them.
type GeographicRouter struct {
	adapters map[string]SourceAdapter
}

/*
NewGeographicRouter creates the router over the given adapters.
*/
func NewGeographicRouter(adapters ...SourceAdapter) *GeographicRouter {
	byName := make(map[string]SourceAdapter, len(adapters))
	for _, adapter := range adapters {
		byName[adapter.Name()] = adapter
	}
	return &GeographicRouter{adapters: byName}
}

/*
DetectRegion classifies the bounding box center against the rectangular
region tables. Total: every coordinate falls into exactly one region, with
global as the catch-all.
*/
func (r *GeographicRouter) DetectRegion(bbox BoundingBox) string {
	lat, lng := bbox.Center()
	switch {
	case conusBox.Contains(lat, lng) || alaskaBox.Contains(lat, lng):
		return regionUS
	case amazonBox.Contains(lat, lng):
		return regionBrazilAmazon
	case brazilBox.Contains(lat, lng):
		return regionBrazil
	case southAmericaBox.Contains(lat, lng):
		return regionSouthAmerica
	default:
		return regionGlobal
	}
}

/*
SourcesFor returns the ordered adapter name list for the request, or the
override verbatim when supplied. Names without a registered adapter are
dropped.
*/
func (r *GeographicRouter) SourcesFor(req DownloadRequest, override []string) (string, []string) {
	region := r.DetectRegion(req.BBox)

	names := override
	if len(names) == 0 {
		names = routingTables[region][req.DataType]
	}

	var sources []string
	for _, name := range names {
		if _, ok := r.adapters[name]; ok {
			sources = append(sources, name)
		}
	}
	return region, sources
}

/*
DownloadWithRouting runs the failover cascade for the request. Each adapter
is availability-checked first; unavailable adapters are skipped with a
source_unavailable event. A failed adapter never aborts the cascade; only
cancellation does. On success the result metadata is augmented with the
routing decision. When every source fails, the composite failure names each
tried source and the per-source errors are returned alongside.
*/
func (r *GeographicRouter) DownloadWithRouting(ctx context.Context, req DownloadRequest, override []string, sink ProgressSink) (DownloadResult, []SourceError) {
	region, sources := r.SourcesFor(req, override)
	slog.Info("routing download", "region", region, "data type", req.DataType, "sources", sources)
	sink.Emit(ProgressEvent{Type: EventRoutingInfo, Region: region, Sources: sources})

	if len(sources) == 0 {
		return failure(KindDataNotAvailable,
			"no sources route region %s for data type %s", region, req.DataType), nil
	}

	var tried []string
	var sourceErrors []SourceError
	for priority, name := range sources {
		if ctx.Err() != nil {
			return failure(KindCancelled, "download cancelled"), sourceErrors
		}
		adapter := r.adapters[name]

		// availability probes run under their own short timeout, a stalled
		// provider must not eat into the download budget
		availCtx := ctx
		cancelAvail := func() {}
		if timeout := progConfig.AvailabilityTimeout(); timeout > 0 {
			availCtx, cancelAvail = context.WithTimeout(ctx, timeout)
		}
		available, err := adapter.CheckAvailability(availCtx, req)
		cancelAvail()
		if err != nil {
			slog.Warn("availability check failed", "source", name, "error", err)
		}
		if !available {
			sink.Emit(ProgressEvent{Type: EventSourceUnavailable, Source: name})
			sourceErrors = append(sourceErrors, SourceError{
				Source: name, Kind: KindDataNotAvailable,
				Message: "source reports no coverage for the bounding box",
			})
			continue
		}

		tried = append(tried, name)
		sink.Emit(ProgressEvent{Type: EventSourceSelected, Source: name, Priority: priority + 1})

		result := adapter.Download(ctx, req, decorateSink(sink, name, "", ""))
		if result.Success {
			if result.Metadata == nil {
				result.Metadata = map[string]string{}
			}
			result.Metadata["routing_region"] = region
			result.Metadata["selected_source"] = name
			result.Metadata["source_priority"] = strconv.Itoa(priority + 1)
			result.Metadata["tried_sources"] = strings.Join(tried, ",")
			return result, sourceErrors
		}
		if result.ErrorKind == KindCancelled {
			return result, sourceErrors
		}

		sourceErrors = append(sourceErrors, SourceError{
			Source: name, Kind: result.ErrorKind, Message: result.ErrorMessage,
		})
		sink.Emit(ProgressEvent{Type: EventSourceFailed, Source: name, Error: result.ErrorMessage})
		slog.Warn("source failed, trying next", "source", name, "kind", result.ErrorKind, "error", result.ErrorMessage)
	}

	var parts []string
	for _, serr := range sourceErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", serr.Source, serr.Message))
	}
	return failure(KindDataNotAvailable,
		"all sources failed for region %s: %s", region, strings.Join(parts, "; ")), sourceErrors
}
