package benchmark_test

import (
	"context"
	"io"
	"time"

	"github.com/hupe1980/greyhound/arbiter"
	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/cache"
)

// LatencyStore wraps a BlobStore and adds artificial latency to Open.
// It also returns a LatencyBlob that adds latency to reads.
type LatencyStore struct {
	base    blobstore.BlobStore
	latency time.Duration
}

func (s *LatencyStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	time.Sleep(s.latency / 2) // metadata request
	b, err := s.base.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &LatencyBlob{base: b, latency: s.latency}, nil
}

func (s *LatencyStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return s.base.Create(ctx, name)
}

func (s *LatencyStore) Put(ctx context.Context, name string, data []byte) error {
	return s.base.Put(ctx, name, data)
}

func (s *LatencyStore) Delete(ctx context.Context, name string) error {
	return s.base.Delete(ctx, name)
}

func (s *LatencyStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.base.List(ctx, prefix)
}

type LatencyBlob struct {
	base    blobstore.Blob
	latency time.Duration
}

func (b *LatencyBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	time.Sleep(b.latency)
	return b.base.ReadAt(ctx, p, off)
}

func (b *LatencyBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	time.Sleep(b.latency)
	return b.base.ReadRange(ctx, off, length)
}

func (b *LatencyBlob) Size() int64 {
	return b.base.Size()
}

func (b *LatencyBlob) Close() error {
	return b.base.Close()
}

// slowScheme serves in-memory buckets with simulated network latency.
const slowScheme = "slow"

// newSlowArbiter returns an arbiter whose slow:// scheme behaves like a
// remote store, optionally fronted by a block cache.
func newSlowArbiter(latency time.Duration, c cache.BlockCache) *arbiter.Arbiter {
	opts := []arbiter.Option{
		arbiter.WithDriver(slowScheme, arbiter.Driver{
			Open: func(_ context.Context, root string) (blobstore.BlobStore, error) {
				return &LatencyStore{base: arbiter.MemBucket("slow-" + root), latency: latency}, nil
			},
			Remote: true,
		}),
	}
	if c != nil {
		opts = append(opts, arbiter.WithBlockCache(c, 64<<10))
	}
	return arbiter.New(opts...)
}
