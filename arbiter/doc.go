// Package arbiter resolves dataset paths to blob stores.
//
// A path is either a plain local path ("/data/autzen", "data/autzen") or a
// URL-like path "scheme://root/key". Built-in schemes:
//
//	file://   local file system (also the default for plain paths)
//	mem://    process-wide in-memory buckets, mostly for tests
//	s3://     Amazon S3 (default AWS credential chain)
//	minio://  MinIO or any S3-compatible endpoint (MINIO_* environment)
//
// Stores are created on first use and then shared by every caller that
// resolves a path under the same scheme and root. Remote stores are wrapped
// with a block cache when one is configured, and all reads can be charged
// against a resource.Controller IO budget.
package arbiter
