// Package blobstore provides the storage abstraction behind the arbiter.
//
// BlobStore is the interface for reading and writing data blobs: raw point
// source files, index metadata and index chunks. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads and atomic writes
//   - MemoryStore: in-process store for tests and ephemeral datasets
//   - CachingStore: block cache in front of any other store
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)
//	    Create(ctx, name) (WritableBlob, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Remote backends should implement ReadRange with native range requests so
// that index chunks can be fetched without downloading whole objects.
package blobstore
