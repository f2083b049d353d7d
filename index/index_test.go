package index

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/query"
	"github.com/hupe1980/greyhound/resource"
	"github.com/hupe1980/greyhound/schema"
	"github.com/hupe1980/greyhound/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const numPoints = 5000

func buildIndex(t *testing.T, c Compression) (*arbiter.Arbiter, string, [][]float64) {
	t.Helper()
	a := arbiter.New()
	root := testutil.MemRoot(t) + "/autzen"
	pts := testutil.NewRNG(42).UniformPoints(numPoints, testutil.Cube(1000))

	err := Build(context.Background(), a, root, testutil.Schema(), pts, BuilderOptions{
		Capacity:    256,
		Compression: c,
		SRS:         "EPSG:3857",
	})
	require.NoError(t, err)
	return a, root, pts
}

func count(t *testing.T, c *query.Cursor) uint64 {
	t.Helper()
	n, err := query.Count(c)
	require.NoError(t, err)
	return n
}

func TestReader_Metadata(t *testing.T) {
	a, root, _ := buildIndex(t, CompressionZstd)

	ok, err := Exists(context.Background(), a, root)
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := Open(context.Background(), a, root, cache.NewLRUBlockCache(64<<20, nil))
	require.NoError(t, err)

	assert.Equal(t, root, r.Root())
	assert.Equal(t, uint64(numPoints), r.NumPoints())
	assert.Equal(t, "EPSG:3857", r.SRS())
	assert.True(t, testutil.Schema().Equal(r.Schema()))
	assert.True(t, testutil.Cube(1000).ContainsBox(r.Bounds()))
	assert.True(t, r.Cube().ContainsBox(r.Bounds()))
	assert.Greater(t, r.Depth(), 1)
	assert.Equal(t, CompressionZstd, r.Metadata().Compression)
}

func TestReader_Query(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			ctx := context.Background()
			a, root, pts := buildIndex(t, c)
			r, err := Open(ctx, a, root, cache.NewLRUBlockCache(64<<20, nil))
			require.NoError(t, err)

			cur, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, r.Depth())
			require.NoError(t, err)
			assert.Equal(t, uint64(numPoints), count(t, cur))

			sub, _ := bbox.New(100, 100, 100, 600, 400, 900)
			cur, err = r.Query(ctx, schema.XYZ(), true, sub, 0, r.Depth()+5)
			require.NoError(t, err)
			assert.Equal(t, uint64(testutil.CountInside(pts, sub)), count(t, cur))

			root0, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, 1)
			require.NoError(t, err)
			assert.Equal(t, uint64(256), count(t, root0))
		})
	}
}

func TestReader_QueryEdgeCases(t *testing.T) {
	ctx := context.Background()
	a, root, _ := buildIndex(t, CompressionZstd)
	r, err := Open(ctx, a, root, cache.NewLRUBlockCache(64<<20, nil))
	require.NoError(t, err)

	cur, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 2, 2)
	require.NoError(t, err)
	assert.True(t, cur.Done())
	assert.Zero(t, count(t, cur))

	far, _ := bbox.New(5000, 5000, 5000, 6000, 6000, 6000)
	cur, err = r.Query(ctx, schema.XYZ(), false, far, 0, r.Depth())
	require.NoError(t, err)
	assert.Zero(t, count(t, cur))

	_, err = r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 3, 1)
	assert.ErrorIs(t, err, ErrInvalidDepthRange)
	_, err = r.Query(ctx, schema.XYZ(), false, bbox.Everything(), -1, 1)
	assert.ErrorIs(t, err, ErrInvalidDepthRange)

	// Depth slices partition the points.
	var total uint64
	for d := range r.Depth() {
		cur, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), d, d+1)
		require.NoError(t, err)
		total += count(t, cur)
	}
	assert.Equal(t, uint64(numPoints), total)
}

func TestReader_SharedCache(t *testing.T) {
	ctx := context.Background()
	a, root, _ := buildIndex(t, CompressionZstd)
	shared := cache.NewShardedLRUBlockCache(64<<20, resource.NewController(resource.Config{MemoryLimitBytes: 128 << 20}))

	first, err := Open(ctx, a, root, shared, WithConcurrency(4), WithChunkBatchSize(3))
	require.NoError(t, err)
	second, err := Open(ctx, a, root, shared)
	require.NoError(t, err)

	cur, err := first.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, first.Depth())
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints), count(t, cur))
	loaded := first.Stats().ChunksLoaded
	assert.Equal(t, int64(len(first.Select(bbox.Everything(), 0, first.Depth()))), loaded)

	cur, err = second.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, second.Depth())
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints), count(t, cur))
	assert.Zero(t, second.Stats().ChunksLoaded)
	assert.Equal(t, loaded, second.Stats().ChunkHits)
}

func TestReader_ConcurrentQueries(t *testing.T) {
	ctx := context.Background()
	a, root, _ := buildIndex(t, CompressionLZ4)
	r, err := Open(ctx, a, root, cache.NewLRUBlockCache(64<<20, nil), WithBatchSize(100))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, r.Depth())
			if !assert.NoError(t, err) {
				return
			}
			n, err := query.Count(cur)
			assert.NoError(t, err)
			assert.Equal(t, uint64(numPoints), n)
		}()
	}
	wg.Wait()
}

// gatedStore holds opens of the root chunk until release is closed.
type gatedStore struct {
	blobstore.BlobStore
	armed   atomic.Bool
	opens   atomic.Int32
	opened  chan struct{}
	release chan struct{}
}

func (s *gatedStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if s.armed.Load() && strings.HasSuffix(name, "/"+Key{}.String()) {
		s.opens.Add(1)
		select {
		case s.opened <- struct{}{}:
		default:
		}
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.BlobStore.Open(ctx, name)
}

func TestReader_SharedLoadSurvivesCancellation(t *testing.T) {
	ctx := context.Background()
	gate := &gatedStore{
		BlobStore: blobstore.NewMemoryStore(),
		opened:    make(chan struct{}, 1),
		release:   make(chan struct{}),
	}
	a := arbiter.New(arbiter.WithDriver("gate", arbiter.Driver{
		Open: func(context.Context, string) (blobstore.BlobStore, error) { return gate, nil },
	}))
	root := "gate://bucket/autzen"
	pts := testutil.NewRNG(7).UniformPoints(500, testutil.Cube(100))
	require.NoError(t, Build(ctx, a, root, testutil.Schema(), pts, BuilderOptions{}))

	r, err := Open(ctx, a, root, cache.NewLRUBlockCache(16<<20, nil))
	require.NoError(t, err)
	gate.armed.Store(true)

	cancelCtx, cancel := context.WithCancel(ctx)
	first, err := r.Query(cancelCtx, schema.XYZ(), false, bbox.Everything(), 0, 1)
	require.NoError(t, err)
	firstErr := make(chan error, 1)
	go func() {
		_, err := query.Count(first)
		firstErr <- err
	}()

	<-gate.opened
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, 1)
	require.NoError(t, err)
	type result struct {
		n   uint64
		err error
	}
	secondRes := make(chan result, 1)
	go func() {
		n, err := query.Count(second)
		secondRes <- result{n, err}
	}()

	close(gate.release)
	res := <-secondRes
	require.NoError(t, res.err)
	assert.Equal(t, uint64(len(pts)), res.n)
	assert.Equal(t, int32(1), gate.opens.Load())
	assert.Equal(t, int64(1), r.Stats().ChunksLoaded)
}

func TestReader_RebuildBypassesStaleChunks(t *testing.T) {
	ctx := context.Background()
	a, root, _ := buildIndex(t, CompressionZstd)
	shared := cache.NewLRUBlockCache(64<<20, nil)

	before, err := Open(ctx, a, root, shared)
	require.NoError(t, err)
	cur, err := before.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, before.Depth())
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints), count(t, cur))

	pts := testutil.NewRNG(7).UniformPoints(numPoints/2, testutil.Cube(1000))
	require.NoError(t, Build(ctx, a, root, testutil.Schema(), pts, BuilderOptions{
		Capacity:    256,
		Compression: CompressionZstd,
		SRS:         "EPSG:3857",
	}))

	after, err := Open(ctx, a, root, shared)
	require.NoError(t, err)
	cur, err = after.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, after.Depth())
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints/2), count(t, cur))
	assert.Zero(t, after.Stats().ChunkHits)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	a := arbiter.New()
	root := testutil.MemRoot(t)

	_, err := Open(ctx, a, root+"/missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, a.Put(ctx, root+"/garbage/entwine", []byte("{not json")))
	_, err = Open(ctx, a, root+"/garbage", nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, a.Put(ctx, root+"/noxyz/entwine", []byte(`{"schema":[{"name":"A","type":"floating","size":8}],"bounds":[0,0,0,1,1,1]}`)))
	_, err = Open(ctx, a, root+"/noxyz", nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, a.Put(ctx, root+"/nohier/entwine", []byte(`{"schema":[{"name":"X","type":"floating","size":8},{"name":"Y","type":"floating","size":8},{"name":"Z","type":"floating","size":8}],"bounds":[0,0,0,1,1,1]}`)))
	_, err = Open(ctx, a, root+"/nohier", nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReader_MissingChunk(t *testing.T) {
	ctx := context.Background()
	a, root, _ := buildIndex(t, CompressionZstd)
	require.NoError(t, a.Delete(ctx, arbiter.Join(root, Key{}.String())))

	r, err := Open(ctx, a, root, nil)
	require.NoError(t, err)

	cur, err := r.Query(ctx, schema.XYZ(), false, bbox.Everything(), 0, 1)
	require.NoError(t, err)
	_, err = query.Count(cur)

	var chunkErr *ErrChunk
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, Key{}, chunkErr.Key)
}

func TestHierarchy_RoundTrip(t *testing.T) {
	var h Hierarchy
	keys := []Key{{}, Key{}.Child(3), Key{}.Child(3).Child(7), {Depth: 10, X: 1023, Y: 1, Z: 512}}
	for _, k := range keys {
		h = h.add(k)
	}

	data, err := h.MarshalBinary()
	require.NoError(t, err)
	back, err := decodeHierarchy(data)
	require.NoError(t, err)

	for _, k := range keys {
		assert.True(t, back.Has(k), k.String())
	}
	assert.False(t, back.Has(Key{}.Child(1)))
	assert.False(t, back.Has(Key{Depth: 11}))
	assert.Equal(t, uint64(4), back.Nodes())

	_, err = decodeHierarchy(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestKey(t *testing.T) {
	k := Key{}.Child(5).Child(2)
	assert.Equal(t, Key{Depth: 2, X: 2, Y: 1, Z: 2}, k)
	assert.Equal(t, "2-2-1-2", k.String())
	assert.NotEqual(t, Key{Depth: 1, X: 1}.ID(), Key{Depth: 1, Y: 1}.ID())
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}
