package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/pipeline"
	"github.com/hupe1980/greyhound/query"
	"github.com/hupe1980/greyhound/schema"
)

var (
	// ErrNoDriver is returned when no reader driver handles the input file.
	ErrNoDriver = errors.New("source: no reader driver")

	errStopped = errors.New("source: consumer stopped")
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCodec sets the codec used for stage headers and stats.
func WithCodec(c codec.Codec) Option {
	return func(m *Manager) {
		m.codec = codec.OrDefault(c)
	}
}

// WithBatchSize sets the number of points per cursor block.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		m.batchSize = n
	}
}

// Manager exposes a reader stage's metadata and full reads.
type Manager struct {
	path      string
	stage     pipeline.Stage
	preview   pipeline.Preview
	codec     codec.Codec
	batchSize int
	logger    *slog.Logger

	statsMu sync.Mutex
	stats   []byte
}

// New constructs the reader stage for path and previews it. Only stage
// construction holds lock.
func New(ctx context.Context, f *pipeline.Factory, lock sync.Locker, arb *arbiter.Arbiter, path string, opts ...Option) (*Manager, error) {
	m := &Manager{
		path:   path,
		codec:  codec.Default,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	stage, err := createStage(f, lock, pipeline.Options{
		Filename: path,
		Arbiter:  arb,
		Codec:    m.codec,
	})
	if err != nil {
		return nil, err
	}

	preview, err := stage.Preview(ctx)
	if err != nil {
		return nil, fmt.Errorf("source: preview %s: %w", path, err)
	}
	if preview.Schema == nil {
		return nil, fmt.Errorf("source: %s: %w", path, pipeline.ErrMalformed)
	}

	m.stage = stage
	m.preview = preview
	m.logger.Debug("source opened",
		"path", path,
		"driver", stage.Driver(),
		"points", preview.NumPoints,
	)
	return m, nil
}

func createStage(f *pipeline.Factory, lock sync.Locker, opts pipeline.Options) (pipeline.Stage, error) {
	lock.Lock()
	defer lock.Unlock()

	driver := f.InferReaderDriver(opts.Filename)
	if driver == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDriver, opts.Filename)
	}
	return f.CreateReader(driver, opts)
}

// Path returns the input path.
func (m *Manager) Path() string { return m.path }

// NumPoints returns the point count from the stage header.
func (m *Manager) NumPoints() uint64 { return m.preview.NumPoints }

// Schema returns the native schema.
func (m *Manager) Schema() *schema.Schema { return m.preview.Schema }

// SRS returns the spatial reference, or "" if unknown.
func (m *Manager) SRS() string { return m.preview.SRS }

// Bounds returns the bounds from the stage header.
func (m *Manager) Bounds() bbox.BBox { return m.preview.Bounds }

// points adapts the stage's push read to query.Points.
func (m *Manager) points(ctx context.Context) query.Points {
	return func(yield func([]float64, error) bool) {
		err := m.stage.Read(ctx, func(values []float64) error {
			if !yield(values, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopped) {
			yield(nil, err)
		}
	}
}

// Query returns a cursor over every point, laid out as out.
func (m *Manager) Query(ctx context.Context, out *schema.Schema, compress bool) *query.Cursor {
	return query.New(m.preview.Schema, out, m.points(ctx),
		query.WithCompression(compress),
		query.WithBatchSize(m.batchSize),
	)
}

// DimStats summarizes one dimension.
type DimStats struct {
	Name    string  `json:"name"`
	Count   uint64  `json:"count"`
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Average float64 `json:"average"`
}

// Stats is the document returned by Manager.Stats.
type Stats struct {
	NumPoints  uint64     `json:"numPoints"`
	Dimensions []DimStats `json:"statistic"`
}

// Stats scans the source once and returns per-dimension statistics as JSON.
// A failed scan is not cached.
func (m *Manager) Stats(ctx context.Context) ([]byte, error) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	if m.stats != nil {
		return m.stats, nil
	}

	dims := m.preview.Schema.Dims()
	acc := make([]DimStats, len(dims))
	sums := make([]float64, len(dims))
	for i, d := range dims {
		acc[i] = DimStats{Name: d.Name, Minimum: math.Inf(1), Maximum: math.Inf(-1)}
	}

	var n uint64
	err := m.stage.Read(ctx, func(values []float64) error {
		n++
		for i, v := range values {
			acc[i].Minimum = min(acc[i].Minimum, v)
			acc[i].Maximum = max(acc[i].Maximum, v)
			sums[i] += v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: stats %s: %w", m.path, err)
	}

	for i := range acc {
		acc[i].Count = n
		if n == 0 {
			acc[i].Minimum, acc[i].Maximum = 0, 0
			continue
		}
		acc[i].Average = sums[i] / float64(n)
	}

	data, err := m.codec.Marshal(Stats{NumPoints: n, Dimensions: acc})
	if err != nil {
		return nil, err
	}
	m.stats = data
	return data, nil
}
