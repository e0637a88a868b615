// Package metrics defines the store/tree-engine instrumentation surface,
// in the shape of flow-go's module/metrics package: a small interface so
// callers can swap a Prometheus-backed collector for a no-op one in
// tests, plus a ready default collector built on promauto.
package metrics

import "time"

// Collector receives instrumentation events from the store and tree
// engine. Implementations must be safe for concurrent use.
type Collector interface {
	// CommitDuration reports how long one store Commit took, from
	// flushing the write buffer through fsync (node serialization
	// happens before it and is not included).
	CommitDuration(d time.Duration)
	// NodesWritten reports how many node records one Commit wrote.
	NodesWritten(n int)
	// BytesWritten reports how many bytes one Commit appended.
	BytesWritten(n int)
	// OpenFiles reports the current size of the store's open-file cache.
	OpenFiles(n int)
	// FileEvicted reports one open-file-cache eviction.
	FileEvicted()
	// RecoveryTruncated reports that recovery truncated a torn trailer
	// of n bytes from the most recent file.
	RecoveryTruncated(n int64)
}

// NoopCollector discards every event. Use it in tests and anywhere
// instrumentation isn't wired up, mirroring flow-go's
// metrics.NoopCollector used throughout its own test suite.
type NoopCollector struct{}

var _ Collector = NoopCollector{}

func (NoopCollector) CommitDuration(time.Duration) {}
func (NoopCollector) NodesWritten(int)             {}
func (NoopCollector) BytesWritten(int)             {}
func (NoopCollector) OpenFiles(int)                {}
func (NoopCollector) FileEvicted()                 {}
func (NoopCollector) RecoveryTruncated(int64)      {}
