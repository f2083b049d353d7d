package greyhound

import (
	"log/slog"

	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/resource"
)

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	indexConcurrency int
	chunkBatchSize   int
	blockSize        int
	rc               *resource.Controller
}

// Option configures a Session or Manager.
type Option func(*options)

// WithCodec configures the codec used for index metadata, source headers and
// stats documents.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &greyhound.BasicMetricsCollector{}
//	s := greyhound.NewSession(factory, &lock, greyhound.WithMetricsCollector(metrics))
//	// ... use s ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithIndexConcurrency bounds parallel chunk fetches per indexed query.
func WithIndexConcurrency(n int) Option {
	return func(o *options) {
		o.indexConcurrency = n
	}
}

// WithChunkBatchSize sets how many index chunks a query fetches ahead.
func WithChunkBatchSize(n int) Option {
	return func(o *options) {
		o.chunkBatchSize = n
	}
}

// WithBlockSize sets the number of points per cursor block.
func WithBlockSize(n int) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithResourceController bounds chunk fetches process-wide.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
