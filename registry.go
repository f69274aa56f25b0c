package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// activeDownload is one cancellable in-flight download.
type activeDownload struct {
	cancel      context.CancelFunc
	partialPath string
}

// DownloadRegistry maps download_id to a cancellable adapter handle. The
// orchestrator owns one registry and threads it through calls; tests
// construct a fresh one per case.
type DownloadRegistry struct {
	mu     sync.Mutex
	active map[string]*activeDownload
}

/*
NewDownloadRegistry creates an empty download registry.
*/
func NewDownloadRegistry() *DownloadRegistry {
	return &DownloadRegistry{active: make(map[string]*activeDownload)}
}

/*
Register adds a download id with its cancel function. The id stays registered
until Release is called after the terminal event.
*/
func (r *DownloadRegistry) Register(downloadID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[downloadID] = &activeDownload{cancel: cancel}
}

/*
SetPartialPath records the temporary file of an in-flight download so an
external cancel can remove it.
*/
func (r *DownloadRegistry) SetPartialPath(downloadID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.active[downloadID]; ok {
		d.partialPath = path
	}
}

/*
Cancel stops the download with the given id. The context cancellation
interrupts the adapter's current network read; the partial file is removed
before the id is released. Cancelling an unknown or finished id is a no-op.
*/
func (r *DownloadRegistry) Cancel(downloadID string) bool {
	r.mu.Lock()
	d, ok := r.active[downloadID]
	if ok {
		delete(r.active, downloadID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	d.cancel()
	if d.partialPath != "" {
		if err := os.Remove(d.partialPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("error removing partial download file", "error", err, "path", d.partialPath)
		}
	}
	slog.Info("download cancelled", "download id", downloadID)
	return true
}

/*
Release removes a finished download id. Called after the terminal event;
a later Cancel for the id is then a no-op.
*/
func (r *DownloadRegistry) Release(downloadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, downloadID)
}

/*
ActiveCount returns the number of in-flight downloads.
*/
func (r *DownloadRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
