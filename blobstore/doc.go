// Package blobstore provides the storage abstraction for persisted
// recommender artifacts (feature store, k-d tree, HNSW graph).
//
// Implementations must be safe for concurrent use, and Put must replace a
// blob atomically so a crash mid-save never leaves a torn artifact behind.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, atomic rename on Put, mmap on Open
//   - MemoryStore: in-process map, used by tests
//   - s3.Store: Amazon S3 via aws-sdk-go-v2
//   - minio.Store: MinIO and other S3-compatible servers
package blobstore
