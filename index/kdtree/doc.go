// Package kdtree implements the exact nearest-neighbor index: a median-split
// k-d tree over a VectorSource, answering Euclidean k-NN queries by branch
// and bound.
//
// The tree stores identities only. Coordinates are read back from the source
// during queries, so the source must outlive the tree.
//
// Update discards the tree and rebuilds it from the source. Exact answers are
// kept at the price of incremental cost.
package kdtree
