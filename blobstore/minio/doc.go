// Package minio implements blobstore.BlobStore on MinIO and other
// S3-compatible object stores (Ceph, SeaweedFS, Garage).
//
// The arbiter registers it under the minio:// scheme:
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store := minioblob.NewStore(client, "point-clouds", "datasets/")
//
// Reads are ranged GETs, so a Session only pulls the index chunks a query
// actually touches.
package minio
