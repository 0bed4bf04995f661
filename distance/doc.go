// Package distance provides vector distance calculations.
//
// # Supported Metrics
//
//   - MetricL2: Euclidean distance, used by the exact k-d tree index
//   - MetricCosine: cosine distance (1 - cosine similarity), used by the HNSW graph
//
// The two indexes deliberately use different metrics; callers must not compare
// raw distances across them.
//
// # Usage
//
//	d := distance.L2(a, b)
//	c := distance.Cosine(a, b)
package distance
