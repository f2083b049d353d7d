package arbiter

import (
	"log/slog"

	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/resource"
)

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithBlockCache wraps remote stores in a blobstore.CachingStore backed by c.
func WithBlockCache(c cache.BlockCache, blockSize int64) Option {
	return func(a *Arbiter) {
		a.blockCache = c
		a.blockSize = blockSize
	}
}

// WithResourceController charges reads against rc's IO budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(a *Arbiter) {
		a.rc = rc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arbiter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithDriver registers or replaces the driver for scheme.
func WithDriver(scheme string, d Driver) Option {
	return func(a *Arbiter) {
		a.drivers[scheme] = d
	}
}
