package index

import (
	"context"
	"fmt"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/schema"
	"golang.org/x/sync/errgroup"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// Capacity is the number of points a node keeps before new points
	// overflow into its children. Defaults to 4096.
	Capacity int
	// MaxDepth is the number of tree levels. Nodes at the last level never
	// overflow. Defaults to MaxDepth+1.
	MaxDepth int
	// Compression is the chunk codec. Defaults to zstd.
	Compression Compression
	// SRS is recorded in the metadata.
	SRS string
	// Codec encodes the metadata. Defaults to codec.Default.
	Codec codec.Codec
}

// Builder writes an index with simple overflow-descend insertion: a point
// stays in the shallowest node along its path that still has room.
type Builder struct {
	schema *schema.Schema
	bounds bbox.BBox
	opts   BuilderOptions

	x, y, z    int
	conforming bbox.BBox
	numPoints  uint64
	nodes      map[Key][]byte
	counts     map[Key]int
	hierarchy  Hierarchy
}

// NewBuilder returns a Builder for points laid out as s inside bounds.
func NewBuilder(s *schema.Schema, bounds bbox.BBox, opts BuilderOptions) (*Builder, error) {
	if !s.HasXYZ() {
		return nil, fmt.Errorf("index: builder schema lacks X/Y/Z")
	}
	if !bounds.Exists() {
		return nil, fmt.Errorf("index: builder bounds %v", bounds)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 4096
	}
	if opts.MaxDepth <= 0 || opts.MaxDepth > MaxDepth+1 {
		opts.MaxDepth = MaxDepth + 1
	}
	if opts.Compression == "" {
		opts.Compression = CompressionZstd
	}
	opts.Codec = codec.OrDefault(opts.Codec)

	cube := bounds.Cubify()
	b := &Builder{
		schema:     s,
		bounds:     cube.Pad((cube.Max.X - cube.Min.X) * 1e-9),
		opts:       opts,
		conforming: bbox.Empty(),
		nodes:      make(map[Key][]byte),
		counts:     make(map[Key]int),
	}
	b.x, _ = s.Find("X")
	b.y, _ = s.Find("Y")
	b.z, _ = s.Find("Z")
	return b, nil
}

// Insert adds one point. Points outside the builder bounds are rejected.
func (b *Builder) Insert(values []float64) error {
	p := bbox.Point{X: values[b.x], Y: values[b.y], Z: values[b.z]}
	if !b.bounds.Contains(p) {
		return fmt.Errorf("index: point %v outside %v", p, b.bounds)
	}

	k, nb := Key{}, b.bounds
	for k.Depth < b.opts.MaxDepth-1 && b.counts[k] >= b.opts.Capacity {
		i := nb.Octant(p)
		k, nb = k.Child(i), nb.Child(i)
	}

	rec := make([]byte, b.schema.PointSize())
	b.schema.Encode(rec, values)
	if b.counts[k] == 0 {
		b.hierarchy = b.hierarchy.add(k)
	}
	b.nodes[k] = append(b.nodes[k], rec...)
	b.counts[k]++
	b.numPoints++
	b.conforming = b.conforming.Grow(p)
	return nil
}

// NumPoints returns the number of inserted points.
func (b *Builder) NumPoints() uint64 { return b.numPoints }

// Write stores chunks, hierarchy and metadata under root.
func (b *Builder) Write(ctx context.Context, a *arbiter.Arbiter, root string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for k, data := range b.nodes {
		g.Go(func() error {
			c, err := compress(b.opts.Compression, data)
			if err != nil {
				return err
			}
			return a.Put(gctx, arbiter.Join(root, k.String()), c)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("index: write chunks: %w", err)
	}

	h, err := b.hierarchy.MarshalBinary()
	if err != nil {
		return err
	}
	if err := a.Put(ctx, arbiter.Join(root, HierarchyName), h); err != nil {
		return fmt.Errorf("index: write hierarchy: %w", err)
	}

	conforming := b.conforming
	if !conforming.Exists() {
		conforming = bbox.BBox{}
	}
	meta, err := b.opts.Codec.Marshal(Metadata{
		Version:     FormatVersion,
		Bounds:      b.bounds,
		Conforming:  conforming,
		Schema:      b.schema,
		SRS:         b.opts.SRS,
		NumPoints:   b.numPoints,
		Compression: b.opts.Compression,
		Depth:       len(b.hierarchy),
		Capacity:    b.opts.Capacity,
	})
	if err != nil {
		return err
	}
	// Metadata last: an index is discoverable only once complete.
	return a.Put(ctx, arbiter.Join(root, MetadataName), meta)
}

// Build indexes points (laid out as s) and writes the result under root.
func Build(ctx context.Context, a *arbiter.Arbiter, root string, s *schema.Schema, points [][]float64, opts BuilderOptions) error {
	bounds := bbox.Empty()
	x, _ := s.Find("X")
	y, _ := s.Find("Y")
	z, _ := s.Find("Z")
	for _, p := range points {
		bounds = bounds.Grow(bbox.Point{X: p[x], Y: p[y], Z: p[z]})
	}
	if !bounds.Exists() {
		bounds = bbox.BBox{Max: bbox.Point{X: 1, Y: 1, Z: 1}}
	}

	b, err := NewBuilder(s, bounds, opts)
	if err != nil {
		return err
	}
	for _, p := range points {
		if err := b.Insert(p); err != nil {
			return err
		}
	}
	return b.Write(ctx, a, root)
}
