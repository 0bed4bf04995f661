// Package testutil provides testing utilities for the recommender indexes.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(100, 32) // uniform [0, 1)
//
// # Ground Truth and Recall
//
//	src := testutil.NewSliceSource(vecs)
//	exact := testutil.ExactTopK(src, query, k, distance.L2)
//	recall := testutil.ComputeRecall(approx, exact)
package testutil
