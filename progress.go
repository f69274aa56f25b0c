package main

import (
	"log/slog"
)

// progress event types
const (
	EventRoutingInfo         = "routing_info"
	EventSourceSelected      = "source_selected"
	EventSourceUnavailable   = "source_unavailable"
	EventSourceFailed        = "source_failed"
	EventDownloadStarted     = "download_started"
	EventDownloadProgress    = "download_progress"
	EventDownloadComplete    = "download_complete"
	EventCacheHit            = "cache_hit"
	EventDownloadCancelled   = "download_cancelled"
	EventProcessingProgress  = "processing_progress"
	EventProcessingCompleted = "processing_completed"
	EventProcessingError     = "processing_error"
)

// ProgressEvent is one progress notification. Type is always set, all other
// fields are optional; consumers must tolerate absent keys.
type ProgressEvent struct {
	Type         string   `json:"type"`
	Region       string   `json:"region,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	Source       string   `json:"source,omitempty"`
	Priority     int      `json:"priority,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Band         string   `json:"band,omitempty"`
	Coordinates  string   `json:"coordinates,omitempty"`
	Progress     int      `json:"progress,omitempty"`
	DownloadedMB float64  `json:"downloaded_mb,omitempty"`
	FileSizeMB   float64  `json:"file_size_mb,omitempty"`
	Message      string   `json:"message,omitempty"`
	Error        string   `json:"error,omitempty"`
	RegionName   string   `json:"region_name,omitempty"`
	DownloadID   string   `json:"download_id,omitempty"`
}

// ProgressSink receives progress events. Events for a single download id are
// delivered in emission order; the terminal event is the last one for its id.
type ProgressSink interface {
	Emit(event ProgressEvent)
}

// sinkFunc adapts a function to the ProgressSink interface.
type sinkFunc func(event ProgressEvent)

/*
Emit implements ProgressSink.
*/
func (f sinkFunc) Emit(event ProgressEvent) {
	f(event)
}

// nopSink discards all events.
type nopSink struct{}

/*
Emit implements ProgressSink.
*/
func (nopSink) Emit(ProgressEvent) {}

// channelSink forwards events into a channel (FIFO per sink by construction).
type channelSink struct {
	events chan<- ProgressEvent
}

/*
newChannelSink builds a sink forwarding into the given channel.
*/
func newChannelSink(events chan<- ProgressEvent) ProgressSink {
	return &channelSink{events: events}
}

/*
Emit implements ProgressSink.
*/
func (s *channelSink) Emit(event ProgressEvent) {
	s.events <- event
}

// decoratedSink stamps source, region name and download id onto every event
// before forwarding. Already-set fields are preserved.
type decoratedSink struct {
	next       ProgressSink
	source     string
	regionName string
	downloadID string
}

/*
decorateSink wraps a sink so every forwarded event carries the acquisition
context (source, region_name, download_id).
*/
func decorateSink(next ProgressSink, source, regionName, downloadID string) ProgressSink {
	return &decoratedSink{next: next, source: source, regionName: regionName, downloadID: downloadID}
}

/*
Emit implements ProgressSink.
*/
func (s *decoratedSink) Emit(event ProgressEvent) {
	if event.Source == "" {
		event.Source = s.source
	}
	if event.RegionName == "" {
		event.RegionName = s.regionName
	}
	if event.DownloadID == "" {
		event.DownloadID = s.downloadID
	}
	s.next.Emit(event)
}

// logSink writes events to the structured log (used by the CLI frontend).
type logSink struct{}

/*
Emit implements ProgressSink.
*/
func (logSink) Emit(event ProgressEvent) {
	slog.Info("progress event",
		"type", event.Type,
		"source", event.Source,
		"region", event.RegionName,
		"download id", event.DownloadID,
		"progress", event.Progress,
		"message", event.Message,
		"error", event.Error,
	)
}
