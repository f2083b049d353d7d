package cache

import (
	"context"
)

// CacheKind is used to separate key spaces and tuning.
type CacheKind uint8

const (
	CacheKindUnknown CacheKind = iota
	CacheKindChunk             // decoded index chunks
	CacheKindBlob              // raw blob store blocks

	numKinds = 3
)

func (k CacheKind) index() int {
	if int(k) >= numKinds {
		return int(CacheKindUnknown)
	}
	return int(k)
}

func (k CacheKind) String() string {
	switch k {
	case CacheKindChunk:
		return "chunk"
	case CacheKindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// CacheKey must be stable across Sessions: two Sessions opening the same
// dataset produce identical keys and therefore share entries.
type CacheKey struct {
	Kind CacheKind
	// Path identifies the source blob (arbiter path of the chunk or blob).
	Path string
	// Offset is a logical block identifier (block index or packed chunk id).
	Offset uint64
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key CacheKey) (b []byte, ok bool)
	// Set caches a block. Implementations may copy or retain; caller must treat b as immutable.
	Set(ctx context.Context, key CacheKey, b []byte)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key CacheKey) bool)
	// Close releases any resources.
	Close() error
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
