// Package persistence implements the versioned binary envelope used for every
// persisted artifact (feature store, k-d tree, HNSW graph).
//
// Layout:
//
//	[FileHeader: magic "VREC", format version, kind, compression, CRC32,
//	 payload size, stored size]
//	[payload, optionally LZ4 or zstd compressed]
//
// Payloads are little-endian and schema-versioned by the package that owns
// them. Any validation failure on load surfaces as
// index.ErrCorruptPersistedState rather than undefined behavior.
//
// Artifacts are written through a blobstore.BlobStore whose Put replaces the
// previous object atomically, so a crash mid-write never leaves a
// half-written artifact behind.
package persistence
