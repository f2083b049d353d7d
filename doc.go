// Package greyhound serves point cloud datasets through per-dataset
// Sessions.
//
// A Session lazily opens two resources for its dataset: the raw source
// file, read through a reader stage from a shared pipeline.Factory, and an
// octree index whose chunks are loaded through a shared cache. Each is
// constructed at most once, no matter how many goroutines ask for it.
//
// # Quick Start
//
//	var lock sync.Mutex
//	factory := pipeline.NewFactory()
//	arb := arbiter.New()
//	c := cache.NewShardedLRUBlockCache(256<<20, nil)
//
//	s := greyhound.NewSession(factory, &lock)
//	if !s.Initialize("autzen", greyhound.Paths{Inputs: []string{"s3://bucket/data"}}, arb, c) {
//	    log.Fatal(s.InitErr())
//	}
//
//	n, _ := s.NumPoints()
//	cur, _ := s.QueryIndexed(ctx, schema.XYZ(), true, box, 0, 8)
//	for block, err := range cur.All() {
//	    ...
//	}
//
// # Backing resources
//
// Initialize looks for an index at "<dir>/<name>" in Paths.Output and then
// Paths.Inputs, and for a source file "<name>.<ext>" in Paths.Inputs. At
// least one must exist. Metadata calls prefer the index; Stats and Query
// always use the source; QueryIndexed always uses the index.
//
// A resource that fails to open stays failed for the life of the Session.
//
// # Storage
//
// Paths are resolved by an arbiter.Arbiter: local paths, mem://, s3:// and
// minio:// locations are supported out of the box.
package greyhound
