package index

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/codec"
	"github.com/hupe1980/greyhound/query"
	"github.com/hupe1980/greyhound/resource"
	"github.com/hupe1980/greyhound/schema"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultConcurrency = 8
	defaultChunkBatch  = 16
)

// Reader serves bounded, depth-limited reads from an index.
// It is safe for concurrent use.
type Reader struct {
	arb       *arbiter.Arbiter
	root      string
	meta      Metadata
	hierarchy Hierarchy
	x, y, z   int
	gen       string

	cache       cache.BlockCache
	rc          *resource.Controller
	concurrency int
	chunkBatch  int
	batchSize   int
	codec       codec.Codec
	logger      *slog.Logger

	loads       singleflight.Group
	chunksRead  atomic.Int64
	chunkHits   atomic.Int64
	bytesLoaded atomic.Int64
}

// genSeed keys index generations for the life of the process.
var genSeed = maphash.MakeSeed()

// Exists reports whether an index is present at root.
func Exists(ctx context.Context, a *arbiter.Arbiter, root string) (bool, error) {
	return a.Exists(ctx, arbiter.Join(root, MetadataName))
}

// Open reads the metadata and hierarchy under root. Chunks are loaded
// lazily by queries, through c.
func Open(ctx context.Context, a *arbiter.Arbiter, root string, c cache.BlockCache, opts ...Option) (*Reader, error) {
	r := &Reader{
		arb:         a,
		root:        root,
		cache:       c,
		concurrency: defaultConcurrency,
		chunkBatch:  defaultChunkBatch,
		codec:       codec.Default,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	data, err := a.Get(ctx, arbiter.Join(root, MetadataName))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return nil, err
	}
	var h maphash.Hash
	h.SetSeed(genSeed)
	h.Write(data)
	if err := r.codec.Unmarshal(data, &r.meta); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	if err := r.meta.validate(); err != nil {
		return nil, err
	}

	data, err = a.Get(ctx, arbiter.Join(root, HierarchyName))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: missing hierarchy", ErrCorrupt)
		}
		return nil, err
	}
	if r.hierarchy, err = decodeHierarchy(data); err != nil {
		return nil, err
	}
	h.Write(data)
	r.gen = strconv.FormatUint(h.Sum64(), 36)

	r.x, _ = r.meta.Schema.Find("X")
	r.y, _ = r.meta.Schema.Find("Y")
	r.z, _ = r.meta.Schema.Find("Z")

	r.logger.Debug("index opened",
		"root", root,
		"points", r.meta.NumPoints,
		"depth", len(r.hierarchy),
		"nodes", r.hierarchy.Nodes(),
	)
	return r, nil
}

// Root returns the index location.
func (r *Reader) Root() string { return r.root }

// NumPoints returns the number of indexed points.
func (r *Reader) NumPoints() uint64 { return r.meta.NumPoints }

// Schema returns the index schema.
func (r *Reader) Schema() *schema.Schema { return r.meta.Schema }

// SRS returns the spatial reference.
func (r *Reader) SRS() string { return r.meta.SRS }

// Bounds returns the tight bounds of the indexed points.
func (r *Reader) Bounds() bbox.BBox { return r.meta.Conforming }

// Cube returns the cubic root node bounds.
func (r *Reader) Cube() bbox.BBox { return r.meta.Bounds }

// Depth returns the number of tree levels present.
func (r *Reader) Depth() int { return len(r.hierarchy) }

// Metadata returns a copy of the index metadata.
func (r *Reader) Metadata() Metadata { return r.meta }

// ReaderStats counts chunk traffic.
type ReaderStats struct {
	ChunksLoaded int64
	ChunkHits    int64
	BytesLoaded  int64
}

// Stats returns chunk load counters.
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		ChunksLoaded: r.chunksRead.Load(),
		ChunkHits:    r.chunkHits.Load(),
		BytesLoaded:  r.bytesLoaded.Load(),
	}
}

// Select returns the nodes at depths [depthBegin, depthEnd) whose bounds
// overlap qb, shallowest first.
func (r *Reader) Select(qb bbox.BBox, depthBegin, depthEnd int) []Key {
	type node struct {
		key    Key
		bounds bbox.BBox
	}

	var keys []Key
	queue := []node{{key: Key{}, bounds: r.meta.Bounds}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if !r.hierarchy.Has(n.key) || !n.bounds.Overlaps(qb) {
			continue
		}
		if n.key.Depth >= depthBegin {
			keys = append(keys, n.key)
		}
		if n.key.Depth+1 >= depthEnd {
			continue
		}
		for i := range 8 {
			queue = append(queue, node{key: n.key.Child(i), bounds: n.bounds.Child(i)})
		}
	}
	return keys
}

// Query returns a cursor over the points inside qb stored at depths
// [depthBegin, depthEnd). An empty range yields an empty cursor.
func (r *Reader) Query(ctx context.Context, out *schema.Schema, compress bool, qb bbox.BBox, depthBegin, depthEnd int) (*query.Cursor, error) {
	if depthBegin < 0 || depthBegin > depthEnd {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidDepthRange, depthBegin, depthEnd)
	}

	opts := []query.Option{query.WithCompression(compress), query.WithBatchSize(r.batchSize)}
	if depthBegin == depthEnd {
		return query.Empty(out, opts...), nil
	}

	keys := r.Select(qb, depthBegin, depthEnd)
	if len(keys) == 0 {
		return query.Empty(out, opts...), nil
	}
	return query.New(r.meta.Schema, out, r.points(ctx, keys, qb), opts...), nil
}

func (r *Reader) points(ctx context.Context, keys []Key, qb bbox.BBox) query.Points {
	return func(yield func([]float64, error) bool) {
		sc := r.meta.Schema
		ps := sc.PointSize()
		values := make([]float64, sc.Len())

		for start := 0; start < len(keys); start += r.chunkBatch {
			chunks, err := r.fetch(ctx, keys[start:min(start+r.chunkBatch, len(keys))])
			if err != nil {
				yield(nil, err)
				return
			}
			for _, data := range chunks {
				for off := 0; off+ps <= len(data); off += ps {
					sc.Decode(values, data[off:])
					if !qb.Contains(bbox.Point{X: values[r.x], Y: values[r.y], Z: values[r.z]}) {
						continue
					}
					if !yield(values, nil) {
						return
					}
				}
			}
		}
	}
}

// fetch loads a batch of chunks in parallel, preserving order.
func (r *Reader) fetch(ctx context.Context, keys []Key) ([][]byte, error) {
	out := make([][]byte, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, k := range keys {
		g.Go(func() error {
			data, err := r.chunk(gctx, k)
			if err != nil {
				return err
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// cacheKey scopes chunks to the index generation, so a rebuild at the same
// root never serves chunks of the previous build.
func (r *Reader) cacheKey(k Key) cache.CacheKey {
	return cache.CacheKey{
		Kind:   cache.CacheKindChunk,
		Path:   r.root + "@" + r.gen,
		Offset: uint64(k.Depth)<<32 | uint64(k.ID()),
	}
}

// chunk returns the decompressed records of node k. Concurrent callers
// share one load, which outlives any single caller's cancellation.
func (r *Reader) chunk(ctx context.Context, k Key) ([]byte, error) {
	ck := r.cacheKey(k)
	if r.cache != nil {
		if data, ok := r.cache.Get(ctx, ck); ok {
			r.chunkHits.Add(1)
			return data, nil
		}
	}

	ch := r.loads.DoChan(k.String(), func() (any, error) {
		return r.load(context.WithoutCancel(ctx), k, ck)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (r *Reader) load(ctx context.Context, k Key, ck cache.CacheKey) ([]byte, error) {
	if err := r.rc.AcquireFetch(ctx); err != nil {
		return nil, err
	}
	defer r.rc.ReleaseFetch()

	raw, err := r.arb.Get(ctx, arbiter.Join(r.root, k.String()))
	if err != nil {
		return nil, &ErrChunk{Key: k, cause: err}
	}
	data, err := decompress(r.meta.Compression, raw)
	if err != nil {
		return nil, &ErrChunk{Key: k, cause: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	if len(data)%r.meta.Schema.PointSize() != 0 {
		return nil, &ErrChunk{Key: k, cause: fmt.Errorf("%w: %d bytes is not a whole number of points", ErrCorrupt, len(data))}
	}

	r.chunksRead.Add(1)
	r.bytesLoaded.Add(int64(len(data)))
	if r.cache != nil {
		r.cache.Set(ctx, ck, data)
	}
	return data, nil
}
