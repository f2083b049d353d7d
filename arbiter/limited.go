package arbiter

import (
	"context"
	"io"

	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/resource"
)

// limitedStore charges every byte read against the controller's IO budget.
type limitedStore struct {
	blobstore.BlobStore
	rc *resource.Controller
}

func (s *limitedStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	b, err := s.BlobStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &limitedBlob{Blob: b, rc: s.rc}, nil
}

type limitedBlob struct {
	blobstore.Blob
	rc *resource.Controller
}

func (b *limitedBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	n, err := b.Blob.ReadAt(ctx, p, off)
	if n > 0 {
		if werr := b.rc.AcquireIO(ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (b *limitedBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	rc, err := b.Blob.ReadRange(ctx, off, length)
	if err != nil {
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{resource.NewRateLimitedReader(ctx, rc, b.rc), rc}, nil
}
