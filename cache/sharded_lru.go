package cache

import (
	"context"
	"hash/maphash"

	"github.com/hupe1980/greyhound/resource"
)

const numShards = 64

// ShardedLRUBlockCache spreads entries over 64 LRU shards so concurrent
// queries on different chunks rarely contend. This is the cache to share
// between many Sessions.
type ShardedLRUBlockCache struct {
	shards [numShards]*LRUBlockCache
	seed   maphash.Seed
}

// NewShardedLRUBlockCache creates a sharded cache; capacity is split evenly.
func NewShardedLRUBlockCache(capacity int64, rc *resource.Controller) *ShardedLRUBlockCache {
	s := &ShardedLRUBlockCache{seed: maphash.MakeSeed()}
	perShard := max(capacity/numShards, 1)
	for i := range s.shards {
		s.shards[i] = NewLRUBlockCache(perShard, rc)
	}
	return s
}

func (s *ShardedLRUBlockCache) shard(key CacheKey) *LRUBlockCache {
	return s.shards[maphash.Comparable(s.seed, key)%numShards]
}

// Get returns a cached block.
func (s *ShardedLRUBlockCache) Get(ctx context.Context, key CacheKey) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a block.
func (s *ShardedLRUBlockCache) Set(ctx context.Context, key CacheKey, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Invalidate removes entries matching the predicate from every shard.
func (s *ShardedLRUBlockCache) Invalidate(predicate func(key CacheKey) bool) {
	for _, sh := range s.shards {
		sh.Invalidate(predicate)
	}
}

// Close empties every shard.
func (s *ShardedLRUBlockCache) Close() error {
	for _, sh := range s.shards {
		_ = sh.Close()
	}
	return nil
}

// Stats returns hit/miss counters summed over shards.
func (s *ShardedLRUBlockCache) Stats() (hits, misses int64) {
	for _, sh := range s.shards {
		h, m := sh.Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Usage returns the footprint of one kind of block over all shards.
func (s *ShardedLRUBlockCache) Usage(kind CacheKind) Usage {
	var total Usage
	for _, sh := range s.shards {
		u := sh.Usage(kind)
		total.Entries += u.Entries
		total.Bytes += u.Bytes
	}
	return total
}

// Size returns the cached bytes over all shards.
func (s *ShardedLRUBlockCache) Size() int64 {
	var total int64
	for _, sh := range s.shards {
		total += sh.Size()
	}
	return total
}

// ShardStat describes a single shard.
type ShardStat struct {
	ShardID int
	Size    int64
	Hits    int64
	Misses  int64
}

// ShardStats returns per-shard statistics.
func (s *ShardedLRUBlockCache) ShardStats() []ShardStat {
	stats := make([]ShardStat, numShards)
	for i, sh := range s.shards {
		h, m := sh.Stats()
		stats[i] = ShardStat{ShardID: i, Size: sh.Size(), Hits: h, Misses: m}
	}
	return stats
}
