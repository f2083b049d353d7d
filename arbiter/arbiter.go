package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hupe1980/greyhound/blobstore"
	"github.com/hupe1980/greyhound/cache"
	"github.com/hupe1980/greyhound/resource"
	"golang.org/x/sync/singleflight"
)

// Arbiter maps paths to blob stores. It is safe for concurrent use and is
// typically shared by every Session in a process.
type Arbiter struct {
	drivers map[string]Driver

	mu     sync.RWMutex
	stores map[string]blobstore.BlobStore
	group  singleflight.Group

	blockCache cache.BlockCache
	blockSize  int64
	rc         *resource.Controller
	logger     *slog.Logger
}

// New creates an Arbiter with the built-in drivers.
func New(opts ...Option) *Arbiter {
	a := &Arbiter{
		drivers: defaultDrivers(),
		stores:  make(map[string]blobstore.BlobStore),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolve returns the store serving p and the key of p within that store.
func (a *Arbiter) Resolve(ctx context.Context, p string) (blobstore.BlobStore, string, error) {
	loc, err := Parse(p)
	if err != nil {
		return nil, "", err
	}
	store, err := a.store(ctx, loc)
	if err != nil {
		return nil, "", err
	}
	return store, loc.Key, nil
}

func (a *Arbiter) store(ctx context.Context, loc Location) (blobstore.BlobStore, error) {
	id := loc.Scheme + schemeSep + loc.Root

	a.mu.RLock()
	s, ok := a.stores[id]
	a.mu.RUnlock()
	if ok {
		return s, nil
	}

	v, err, _ := a.group.Do(id, func() (any, error) {
		a.mu.RLock()
		s, ok := a.stores[id]
		a.mu.RUnlock()
		if ok {
			return s, nil
		}

		d, ok := a.drivers[loc.Scheme]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, loc.Scheme)
		}

		s, err := d.Open(ctx, loc.Root)
		if err != nil {
			return nil, fmt.Errorf("arbiter: open %s: %w", id, err)
		}
		if d.Remote && a.blockCache != nil {
			s = blobstore.NewCachingStore(s, a.blockCache, a.blockSize)
		}
		if a.rc != nil {
			s = &limitedStore{BlobStore: s, rc: a.rc}
		}

		a.mu.Lock()
		a.stores[id] = s
		a.mu.Unlock()

		a.logger.Debug("store opened", "scheme", loc.Scheme, "root", loc.Root, "remote", d.Remote)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(blobstore.BlobStore), nil
}

// Open opens the blob at p.
func (a *Arbiter) Open(ctx context.Context, p string) (blobstore.Blob, error) {
	s, key, err := a.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.Open(ctx, key)
}

// Get reads the whole blob at p.
func (a *Arbiter) Get(ctx context.Context, p string) ([]byte, error) {
	s, key, err := a.Resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	return blobstore.Get(ctx, s, key)
}

// Put writes data to p atomically.
func (a *Arbiter) Put(ctx context.Context, p string, data []byte) error {
	s, key, err := a.Resolve(ctx, p)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, data)
}

// Delete removes the blob at p.
func (a *Arbiter) Delete(ctx context.Context, p string) error {
	s, key, err := a.Resolve(ctx, p)
	if err != nil {
		return err
	}
	return s.Delete(ctx, key)
}

// Exists reports whether a blob exists at p.
func (a *Arbiter) Exists(ctx context.Context, p string) (bool, error) {
	b, err := a.Open(ctx, p)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, b.Close()
}

// List returns the full paths of all blobs whose path starts with prefix.
func (a *Arbiter) List(ctx context.Context, prefix string) ([]string, error) {
	loc, err := Parse(prefix)
	if err != nil {
		return nil, err
	}
	s, err := a.store(ctx, loc)
	if err != nil {
		return nil, err
	}

	keyPrefix := loc.Key
	if strings.HasSuffix(prefix, "/") && keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	names, err := s.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, Location{Scheme: loc.Scheme, Root: loc.Root, Key: name}.String())
	}
	return out, nil
}
