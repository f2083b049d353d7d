package arbiter

import (
	"context"
	"sync"

	"github.com/hupe1980/greyhound/blobstore"
	miniostore "github.com/hupe1980/greyhound/blobstore/minio"
	s3store "github.com/hupe1980/greyhound/blobstore/s3"
)

// Built-in schemes.
const (
	SchemeFile  = "file"
	SchemeMem   = "mem"
	SchemeS3    = "s3"
	SchemeMinio = "minio"
)

// OpenFunc creates the store for a root (bucket) under a scheme.
type OpenFunc func(ctx context.Context, root string) (blobstore.BlobStore, error)

// Driver describes how a scheme is served.
type Driver struct {
	Open OpenFunc
	// Remote stores are wrapped with the block cache, if any.
	Remote bool
}

var (
	memBucketsMu sync.Mutex
	memBuckets   = map[string]*blobstore.MemoryStore{}
)

// MemBucket returns the process-wide in-memory bucket served under mem://name.
func MemBucket(name string) *blobstore.MemoryStore {
	memBucketsMu.Lock()
	defer memBucketsMu.Unlock()

	s, ok := memBuckets[name]
	if !ok {
		s = blobstore.NewMemoryStore()
		memBuckets[name] = s
	}
	return s
}

func defaultDrivers() map[string]Driver {
	return map[string]Driver{
		SchemeFile: {
			Open: func(context.Context, string) (blobstore.BlobStore, error) {
				return blobstore.NewLocalStore(""), nil
			},
		},
		SchemeMem: {
			Open: func(_ context.Context, root string) (blobstore.BlobStore, error) {
				return MemBucket(root), nil
			},
		},
		SchemeS3: {
			Open: func(ctx context.Context, root string) (blobstore.BlobStore, error) {
				return s3store.New(ctx, root, "")
			},
			Remote: true,
		},
		SchemeMinio: {
			Open: func(_ context.Context, root string) (blobstore.BlobStore, error) {
				return miniostore.NewFromEnv(root, "")
			},
			Remote: true,
		},
	}
}
