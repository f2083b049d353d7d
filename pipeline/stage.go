package pipeline

import (
	"context"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/schema"
)

// Preview is the metadata a reader can report without a full read.
type Preview struct {
	NumPoints uint64
	Schema    *schema.Schema
	Bounds    bbox.BBox
	SRS       string
}

// PointFunc receives one point, its values in the stage schema order.
// The slice is reused between calls.
type PointFunc func(values []float64) error

// Stage is a constructed reader.
type Stage interface {
	// Driver returns the driver name the stage was built with.
	Driver() string
	// Preview returns header metadata.
	Preview(ctx context.Context) (Preview, error)
	// Read streams every point to fn. A non-nil error from fn stops the read
	// and is returned.
	Read(ctx context.Context, fn PointFunc) error
}

// Options configures a reader stage.
type Options struct {
	// Filename is an arbiter path.
	Filename string
	// Arbiter resolves Filename.
	Arbiter *arbiter.Arbiter
	// Codec decodes JSON headers. Defaults to codec.Default.
	Codec codec.Codec
}
