// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works against MinIO and other S3-compatible servers (Ceph, Garage,
// SeaweedFS) without pulling in the AWS SDK.
//
//	store, err := minio.Dial("localhost:9000", "minioadmin", "minioadmin", false, "recs", "prod/")
package minio
