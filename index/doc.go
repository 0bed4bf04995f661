// Package index defines the contracts shared by the nearest-neighbor indexes.
//
// Two implementations live in subpackages:
//
//   - kdtree: an exact median-split k-d tree over Euclidean distance
//   - hnsw: an approximate hierarchical navigable small world graph over cosine distance
//
// Both hold vector identities only; coordinates are always read through a
// VectorSource (normally a featurestore.Snapshot). Both share the State
// machine Empty -> Built -> Updated and report the error kinds in this package.
package index
