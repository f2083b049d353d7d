package index

import (
	"log/slog"

	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/resource"
)

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCodec sets the metadata codec.
func WithCodec(c codec.Codec) Option {
	return func(r *Reader) {
		r.codec = codec.OrDefault(c)
	}
}

// WithConcurrency bounds parallel chunk fetches per query.
func WithConcurrency(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithChunkBatchSize sets how many chunks a query fetches ahead.
func WithChunkBatchSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkBatch = n
		}
	}
}

// WithBatchSize sets the number of points per cursor block.
func WithBatchSize(n int) Option {
	return func(r *Reader) {
		r.batchSize = n
	}
}

// WithResourceController bounds chunk fetches process-wide.
func WithResourceController(rc *resource.Controller) Option {
	return func(r *Reader) {
		r.rc = rc
	}
}
