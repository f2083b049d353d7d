// Package cache provides the process-wide, memory-bounded store of index
// chunk data shared by every Session.
//
// # Block Cache
//
// LRUBlockCache is a single-mutex LRU. ShardedLRUBlockCache spreads keys
// over 64 independent LRUs so that concurrent Sessions reading different
// datasets rarely contend on the same lock.
//
// Both integrate with resource.Controller: cached bytes are charged against
// the global memory budget and released on eviction. When the budget is
// exhausted a Set is silently dropped; the caller still owns the value and
// the read proceeds uncached.
package cache
