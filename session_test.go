package greyhound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/bbox"
	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/index"
	"github.com/hupe1980/greyhound/pipeline"
	"github.com/hupe1980/greyhound/query"
	"github.com/hupe1980/greyhound/schema"
	"github.com/hupe1980/greyhound/source"
	"github.com/hupe1980/greyhound/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const numPoints = 2000

type fixture struct {
	arb     *arbiter.Arbiter
	cache   cache.BlockCache
	factory *pipeline.Factory
	lock    countingLock
	paths   Paths
	root    string
	pts     [][]float64
}

type countingLock struct {
	mu    sync.Mutex
	taken atomic.Int64
}

func (l *countingLock) Lock() {
	l.mu.Lock()
	l.taken.Add(1)
}

func (l *countingLock) Unlock() { l.mu.Unlock() }

// newFixture writes a raw source to <root>/in and an index to <root>/out.
func newFixture(t *testing.T, withIndex bool) *fixture {
	t.Helper()

	f := &fixture{
		arb:     arbiter.New(),
		cache:   cache.NewLRUBlockCache(64<<20, nil),
		factory: pipeline.NewFactory(),
		root:    testutil.MemRoot(t),
		pts:     testutil.NewRNG(7).UniformPoints(numPoints, testutil.Cube(1000)),
	}
	f.paths = Paths{
		Inputs: []string{f.root + "/in"},
		Output: f.root + "/out",
	}

	testutil.WriteRaw(t, f.arb, f.root+"/in/autzen.grp", f.pts, pipeline.CompressionZstd)
	if withIndex {
		err := index.Build(context.Background(), f.arb, f.root+"/out/autzen", testutil.Schema(), f.pts, index.BuilderOptions{
			Capacity: 128,
			SRS:      "EPSG:3857",
		})
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) session(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := NewSession(f.factory, &f.lock, opts...)
	require.True(t, s.Initialize("autzen", f.paths, f.arb, f.cache), "init: %v", s.InitErr())
	return s
}

func count(t *testing.T, c *query.Cursor) uint64 {
	t.Helper()
	n, err := query.Count(c)
	require.NoError(t, err)
	return n
}

func TestSession_InitializeRunsOnce(t *testing.T) {
	f := newFixture(t, true)
	metrics := &BasicMetricsCollector{}
	s := NewSession(f.factory, &f.lock, WithMetricsCollector(metrics))

	const n = 32
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Initialize("autzen", f.paths, f.arb, f.cache)
		}()
	}
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
	assert.Equal(t, int64(1), metrics.GetStats().InitializeCount)
	assert.NoError(t, s.InitErr())
	assert.Equal(t, "autzen", s.Name())

	// Later calls keep the first outcome, whatever their arguments.
	assert.True(t, s.Initialize("", Paths{}, nil, nil))
	assert.Equal(t, int64(1), metrics.GetStats().InitializeCount)
}

func TestSession_FailedInitializeStaysUnusable(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name  string
		ds    string
		paths Paths
		arb   *arbiter.Arbiter
		cache cache.BlockCache
		err   error
	}{
		{"empty name", "", f.paths, f.arb, f.cache, ErrInvalidArgument},
		{"name with separator", "a/b", f.paths, f.arb, f.cache, ErrInvalidArgument},
		{"no inputs", "autzen", Paths{}, f.arb, f.cache, ErrInvalidArgument},
		{"bad path", "autzen", Paths{Inputs: []string{"://x"}}, f.arb, f.cache, ErrInvalidArgument},
		{"nil arbiter", "autzen", f.paths, nil, f.cache, ErrInvalidArgument},
		{"nil cache", "autzen", f.paths, f.arb, nil, ErrInvalidArgument},
		{"missing dataset", "nope", f.paths, f.arb, f.cache, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(f.factory, &f.lock)
			require.False(t, s.Initialize(tt.ds, tt.paths, tt.arb, tt.cache))
			assert.ErrorIs(t, s.InitErr(), tt.err)

			// A second attempt with good arguments does not retry.
			assert.False(t, s.Initialize("autzen", f.paths, f.arb, f.cache))

			_, err := s.NumPoints()
			assert.ErrorIs(t, err, ErrNotInitialized)
			_, err = s.Query(context.Background(), schema.XYZ(), false)
			assert.ErrorIs(t, err, ErrNotInitialized)
			_, err = s.QueryIndexed(context.Background(), schema.XYZ(), false, bbox.Everything(), 0, 1)
			assert.ErrorIs(t, err, ErrNotInitialized)
			_, err = s.Stats(context.Background())
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestSession_UseBeforeInitialize(t *testing.T) {
	f := newFixture(t, false)
	s := NewSession(f.factory, &f.lock)

	_, err := s.NumPoints()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.Bounds()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, s.InitErr())
	assert.Empty(t, s.Name())
}

func TestSession_ConcurrentResolutionConstructsOnce(t *testing.T) {
	f := newFixture(t, true)
	metrics := &BasicMetricsCollector{}
	s := f.session(t, WithMetricsCollector(metrics))

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Query(context.Background(), schema.XYZ(), false)
			if err != nil {
				errs[i] = err
				return
			}
			defer c.Close()
			ic, err := s.QueryIndexed(context.Background(), schema.XYZ(), false, bbox.Everything(), 0, 0)
			if err != nil {
				errs[i] = err
				return
			}
			_ = ic.Close()
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.SourceResolves)
	assert.Equal(t, int64(1), stats.IndexResolves)
	assert.Equal(t, int64(1), f.factory.Created())
	assert.Equal(t, int64(1), f.lock.taken.Load(), "factory lock is taken only for stage construction")
}

func TestSession_Metadata(t *testing.T) {
	t.Run("index", func(t *testing.T) {
		f := newFixture(t, true)
		metrics := &BasicMetricsCollector{}
		s := f.session(t, WithMetricsCollector(metrics))

		n, err := s.NumPoints()
		require.NoError(t, err)
		assert.Equal(t, uint64(numPoints), n)

		srs, err := s.SRS()
		require.NoError(t, err)
		assert.Equal(t, "EPSG:3857", srs)

		sch, err := s.Schema()
		require.NoError(t, err)
		assert.True(t, testutil.Schema().Equal(sch))

		b, err := s.Bounds()
		require.NoError(t, err)
		assert.True(t, testutil.Cube(1000).ContainsBox(b))

		// Metadata does not need the source.
		assert.Equal(t, int64(0), metrics.GetStats().SourceResolves)
		assert.Equal(t, int64(0), f.factory.Created())
	})

	t.Run("source", func(t *testing.T) {
		f := newFixture(t, false)
		s := f.session(t)

		n, err := s.NumPoints()
		require.NoError(t, err)
		assert.Equal(t, uint64(numPoints), n)

		srs, err := s.SRS()
		require.NoError(t, err)
		assert.Equal(t, "EPSG:3857", srs)

		b, err := s.Bounds()
		require.NoError(t, err)
		assert.True(t, testutil.Cube(1000).ContainsBox(b))
	})
}

func TestSession_Stats(t *testing.T) {
	f := newFixture(t, true)
	s := f.session(t)

	doc, err := s.Stats(context.Background())
	require.NoError(t, err)

	var stats source.Stats
	require.NoError(t, json.Unmarshal([]byte(doc), &stats))
	assert.Equal(t, uint64(numPoints), stats.NumPoints)
	require.Len(t, stats.Dimensions, 4)
	assert.Equal(t, "X", stats.Dimensions[0].Name)
	assert.GreaterOrEqual(t, stats.Dimensions[0].Minimum, 0.0)
	assert.LessOrEqual(t, stats.Dimensions[0].Maximum, 1000.0)

	again, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestSession_Query(t *testing.T) {
	f := newFixture(t, true)
	s := f.session(t)
	ctx := context.Background()

	for _, compress := range []bool{false, true} {
		c, err := s.Query(ctx, schema.XYZ(), compress)
		require.NoError(t, err)
		assert.Equal(t, compress, c.Compressed())
		assert.Equal(t, uint64(numPoints), count(t, c))
	}

	_, err := s.Query(ctx, nil, false)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestSession_QueryIndexed(t *testing.T) {
	f := newFixture(t, true)
	metrics := &BasicMetricsCollector{}
	s := f.session(t, WithMetricsCollector(metrics), WithIndexConcurrency(4), WithChunkBatchSize(4))
	ctx := context.Background()

	t.Run("invalid depth range", func(t *testing.T) {
		_, err := s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), 4, 2)
		assert.ErrorIs(t, err, ErrInvalidDepthRange)
		assert.Equal(t, int64(0), metrics.GetStats().IndexResolves, "rejected before resolution")
	})

	t.Run("negative depth", func(t *testing.T) {
		_, err := s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), -1, 2)
		assert.ErrorIs(t, err, ErrInvalidDepthRange)
	})

	t.Run("zero width depth range", func(t *testing.T) {
		for _, d := range []int{0, 3, 9} {
			c, err := s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), d, d)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), count(t, c))
		}
	})

	t.Run("disjoint bounds", func(t *testing.T) {
		far, err := bbox.New(2000, 2000, 2000, 3000, 3000, 3000)
		require.NoError(t, err)
		c, err := s.QueryIndexed(ctx, schema.XYZ(), false, far, 0, index.MaxDepth+1)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), count(t, c))
	})

	t.Run("everything equals unindexed", func(t *testing.T) {
		full, err := s.Query(ctx, schema.XYZ(), false)
		require.NoError(t, err)

		c, err := s.QueryIndexed(ctx, schema.XYZ(), true, bbox.Everything(), 0, index.MaxDepth+1)
		require.NoError(t, err)
		assert.Equal(t, count(t, full), count(t, c))
	})

	t.Run("sub bounds", func(t *testing.T) {
		sub, err := bbox.New(0, 0, 0, 500, 500, 500)
		require.NoError(t, err)
		c, err := s.QueryIndexed(ctx, testutil.Schema(), false, sub, 0, index.MaxDepth+1)
		require.NoError(t, err)
		assert.Equal(t, uint64(testutil.CountInside(f.pts, sub)), count(t, c))
	})

	assert.Equal(t, int64(1), metrics.GetStats().IndexResolves)
}

func TestSession_ResolutionFailureIsSticky(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	indexRoot := f.root + "/out/autzen"
	require.NoError(t, f.arb.Put(ctx, indexRoot+"/"+index.MetadataName, []byte("not json")))

	metrics := &BasicMetricsCollector{}
	s := f.session(t, WithMetricsCollector(metrics))

	_, err := s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), 0, 4)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, err, index.ErrCorrupt)

	// Metadata falls back to the source.
	n, err := s.NumPoints()
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints), n)

	// Repairing the index does not help this Session.
	require.NoError(t, index.Build(ctx, f.arb, indexRoot, testutil.Schema(), f.pts, index.BuilderOptions{Capacity: 128}))
	_, err = s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), 0, 4)
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.IndexResolves)
	assert.Equal(t, int64(1), stats.IndexErrors)

	// A fresh Session sees the repaired index.
	fresh := f.session(t)
	c, err := fresh.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), 0, index.MaxDepth+1)
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints), count(t, c))
}

func TestSession_ConcurrentInitializeFailure(t *testing.T) {
	f := newFixture(t, true)
	metrics := &BasicMetricsCollector{}
	s := NewSession(f.factory, &f.lock, WithMetricsCollector(metrics))

	const n = 32
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Initialize("missing", f.paths, f.arb, f.cache)
		}()
	}
	wg.Wait()

	for _, ok := range results {
		assert.False(t, ok)
	}
	assert.ErrorIs(t, s.InitErr(), ErrNotFound)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.InitializeCount)
	assert.Equal(t, int64(1), stats.InitializeErrors)
}

func TestSession_ConcurrentResolutionFailure(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.arb.Put(ctx, f.root+"/out/autzen/"+index.MetadataName, []byte("not json")))

	metrics := &BasicMetricsCollector{}
	s := f.session(t, WithMetricsCollector(metrics))

	const n = 32
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), 0, 4)
			if c != nil {
				_ = c.Close()
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrIndexUnavailable)
		assert.ErrorIs(t, err, index.ErrCorrupt)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.IndexResolves)
	assert.Equal(t, int64(1), stats.IndexErrors)
}

func TestSession_IndexOnly(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.arb.Delete(ctx, f.root+"/in/autzen.grp"))

	s := f.session(t)
	n, err := s.NumPoints()
	require.NoError(t, err)
	assert.Equal(t, uint64(numPoints), n)

	_, err = s.Query(ctx, schema.XYZ(), false)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	_, err = s.Stats(ctx)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestSession_LocalTextSource(t *testing.T) {
	dir := filepath.ToSlash(t.TempDir())
	arb := arbiter.New()
	pts := testutil.NewRNG(3).UniformPoints(100, testutil.Cube(10))
	testutil.WriteText(t, arb, dir+"/autzen.txt", pts)
	require.NoError(t, arb.Put(context.Background(), dir+"/autzen.las", []byte("unsupported")))
	require.NoError(t, arb.Put(context.Background(), dir+"/other.txt", []byte("X Y Z\n1 2 3\n")))

	var lock sync.Mutex
	s := NewSession(pipeline.NewFactory(), &lock)
	require.True(t, s.Initialize("autzen", Paths{Inputs: []string{dir}}, arb, cache.NewLRUBlockCache(1<<20, nil)), "init: %v", s.InitErr())

	n, err := s.NumPoints()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n)

	c, err := s.Query(context.Background(), schema.XYZ(), false)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), count(t, c))

	_, err = s.QueryIndexed(context.Background(), schema.XYZ(), false, bbox.Everything(), 0, 1)
	assert.ErrorIs(t, err, ErrIndexUnavailable)

	unknown := NewSession(pipeline.NewFactory(), &lock)
	assert.False(t, unknown.Initialize("nope", Paths{Inputs: []string{dir}}, arb, cache.NewLRUBlockCache(1<<20, nil)))
	assert.ErrorIs(t, unknown.InitErr(), ErrNotFound)
}

func TestSession_ManySessionsShareOneLock(t *testing.T) {
	arb := arbiter.New()
	root := testutil.MemRoot(t)
	c := cache.NewShardedLRUBlockCache(64<<20, nil)
	factory := pipeline.NewFactory()
	var lock sync.Mutex

	const sessions = 16
	pts := testutil.NewRNG(11).UniformPoints(200, testutil.Cube(100))
	for i := range sessions {
		testutil.WriteRaw(t, arb, root+"/"+testutil.Name("ds", i)+".grp", pts, pipeline.CompressionNone)
	}

	var wg sync.WaitGroup
	errs := make(chan error, sessions*8)
	for i := range sessions {
		s := NewSession(factory, &lock)
		name := testutil.Name("ds", i)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !s.Initialize(name, Paths{Inputs: []string{root}}, arb, c) {
					errs <- s.InitErr()
					return
				}
				cur, err := s.Query(context.Background(), schema.XYZ(), true)
				if err != nil {
					errs <- err
					return
				}
				n, err := query.Count(cur)
				if err == nil && n != 200 {
					err = fmt.Errorf("%s: got %d points", name, n)
				}
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(sessions), factory.Created())
}

func TestSession_Close(t *testing.T) {
	f := newFixture(t, true)
	s := f.session(t)
	ctx := context.Background()

	c, err := s.QueryIndexed(ctx, schema.XYZ(), false, bbox.Everything(), 0, index.MaxDepth+1)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)

	_, err = s.NumPoints()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Query(ctx, schema.XYZ(), false)
	assert.ErrorIs(t, err, ErrClosed)

	// Outstanding cursors keep working.
	assert.Equal(t, uint64(numPoints), count(t, c))
}

func TestSession_Logging(t *testing.T) {
	f := newFixture(t, false)
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := f.session(t, WithLogger(logger))

	_, err := s.NumPoints()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"session initialized"`)
	assert.Contains(t, out, `"dataset":"autzen"`)
	assert.Contains(t, out, `"index":"not found"`)
	assert.Contains(t, out, `"kind":"source"`)
}
