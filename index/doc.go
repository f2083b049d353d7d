// Package index reads (and, for tools and tests, writes) an octree spatial
// index over a point cloud.
//
// An index lives under a directory-like root in any arbiter location:
//
//	<root>/entwine            JSON metadata
//	<root>/entwine-hierarchy  one roaring bitmap of present nodes per depth
//	<root>/<d>-<x>-<y>-<z>    compressed chunk of packed points
//
// The root node covers a cube around the data. A node at depth d has
// integer coordinates x, y, z in [0, 2^d). Chunks hold records in the index
// schema; they are compressed with zstd, lz4 or not at all.
//
// A Reader keeps decompressed chunks in a shared cache.BlockCache, so many
// Sessions over the same index share memory, and fetches missing chunks in
// parallel bounded by its concurrency and by the resource.Controller.
package index
