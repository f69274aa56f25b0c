package main

import (
	"log/slog"
	"sync/atomic"
)

// Statistics holds process-wide acquisition and processing counters.
type Statistics struct {
	AcquisitionsTotal     atomic.Uint64
	AcquisitionsSucceeded atomic.Uint64
	AcquisitionsFailed    atomic.Uint64
	AcquisitionsCancelled atomic.Uint64
	CacheHits             atomic.Uint64
	DownloadedMB          atomic.Uint64
	ProductsGenerated     atomic.Uint64
	ProductsFailed        atomic.Uint64
}

var statistics Statistics

/*
logStatistics writes the counters to the log, typically at shutdown.
*/
func logStatistics() {
	slog.Info("statistics",
		"acquisitions total", statistics.AcquisitionsTotal.Load(),
		"acquisitions succeeded", statistics.AcquisitionsSucceeded.Load(),
		"acquisitions failed", statistics.AcquisitionsFailed.Load(),
		"acquisitions cancelled", statistics.AcquisitionsCancelled.Load(),
		"cache hits", statistics.CacheHits.Load(),
		"downloaded mb", statistics.DownloadedMB.Load(),
		"products generated", statistics.ProductsGenerated.Load(),
		"products failed", statistics.ProductsFailed.Load(),
	)
}
