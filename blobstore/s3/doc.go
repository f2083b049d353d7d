// Package s3 implements blobstore.BlobStore on Amazon S3.
//
// Blobs are opened with a HEAD request and read with ranged GETs, so index
// chunks and source headers can be fetched without downloading whole
// objects. Writes go through the multipart upload manager.
//
//	store, err := s3.New(ctx, "point-clouds", "datasets/")
//	arb.Register("s3", ...)
//
// Integration tests run only when S3_BUCKET is set.
package s3
