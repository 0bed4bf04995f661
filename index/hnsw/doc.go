// Package hnsw implements the approximate nearest-neighbor index: a
// Hierarchical Navigable Small World graph under cosine distance.
//
// The graph stores identities, layer assignments and neighbour lists only.
// Coordinates are read back from the VectorSource whenever a distance is
// needed. Inverse norms are cached per node so cosine distances cost one dot
// product.
//
// Layer assignment draws from a seeded generator, so two builds over the same
// source with the same Options produce the same graph.
//
// Build inserts every identity of the source. Update inserts only the
// identities appended since the last Build or Update and fails with
// index.ErrCapacityExceeded once the reserved capacity is exhausted.
package hnsw
