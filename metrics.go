package greyhound

import (
	"sync/atomic"
	"time"
)

// Resource kinds reported to RecordResolve.
const (
	ResolveSource = "source"
	ResolveIndex  = "index"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInitialize is called once per Session when its one-shot
	// initialization finishes.
	RecordInitialize(duration time.Duration, err error)

	// RecordResolve is called once per Session and resource kind
	// (ResolveSource or ResolveIndex) when lazy resolution finishes.
	RecordResolve(kind string, duration time.Duration, err error)

	// RecordQuery is called after each query dispatch. duration covers
	// resolution and cursor creation, not cursor consumption.
	RecordQuery(indexed bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInitialize(time.Duration, error)       {}
func (NoopMetricsCollector) RecordResolve(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordQuery(bool, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InitializeCount  atomic.Int64
	InitializeErrors atomic.Int64
	SourceResolves   atomic.Int64
	SourceErrors     atomic.Int64
	IndexResolves    atomic.Int64
	IndexErrors      atomic.Int64
	ResolveNanos     atomic.Int64
	QueryCount       atomic.Int64
	IndexedQueries   atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
}

// RecordInitialize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInitialize(_ time.Duration, err error) {
	b.InitializeCount.Add(1)
	if err != nil {
		b.InitializeErrors.Add(1)
	}
}

// RecordResolve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResolve(kind string, duration time.Duration, err error) {
	b.ResolveNanos.Add(duration.Nanoseconds())
	switch kind {
	case ResolveSource:
		b.SourceResolves.Add(1)
		if err != nil {
			b.SourceErrors.Add(1)
		}
	case ResolveIndex:
		b.IndexResolves.Add(1)
		if err != nil {
			b.IndexErrors.Add(1)
		}
	}
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(indexed bool, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if indexed {
		b.IndexedQueries.Add(1)
	}
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InitializeCount:  b.InitializeCount.Load(),
		InitializeErrors: b.InitializeErrors.Load(),
		SourceResolves:   b.SourceResolves.Load(),
		SourceErrors:     b.SourceErrors.Load(),
		IndexResolves:    b.IndexResolves.Load(),
		IndexErrors:      b.IndexErrors.Load(),
		QueryCount:       b.QueryCount.Load(),
		IndexedQueries:   b.IndexedQueries.Load(),
		QueryErrors:      b.QueryErrors.Load(),
		QueryAvgNanos:    b.getAvgQueryNanos(),
	}
}

func (b *BasicMetricsCollector) getAvgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InitializeCount  int64
	InitializeErrors int64
	SourceResolves   int64
	SourceErrors     int64
	IndexResolves    int64
	IndexErrors      int64
	QueryCount       int64
	IndexedQueries   int64
	QueryErrors      int64
	QueryAvgNanos    int64
}
