// Package distance provides the vector distance kernels used by the indexes.
// Dot products run on github.com/viterin/vek, which dispatches to AVX2/NEON
// kernels when the CPU supports them.
package distance

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var s0, s1, s2, s3 float32

	n := len(a)
	i := 0
	for ; i+4 <= n; i += 4 {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		s0 += d * d
	}

	return (s0 + s1) + (s2 + s3)
}

// L2 calculates the Euclidean distance between two vectors.
func L2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// InverseNorm returns 1/||v||, or 0 for a zero vector.
func InverseNorm(v []float32) float32 {
	n := Norm(v)
	if n == 0 {
		return 0
	}
	return 1 / n
}

// Cosine calculates the cosine distance (1 - cosine similarity).
//
// A zero vector has no direction; its similarity to anything is defined as 0,
// so its distance is 1.
func Cosine(a, b []float32) float32 {
	return CosineWithNorms(a, b, InverseNorm(a), InverseNorm(b))
}

// CosineWithNorms calculates the cosine distance using precomputed inverse
// norms (see InverseNorm).
func CosineWithNorms(a, b []float32, invNormA, invNormB float32) float32 {
	if invNormA == 0 || invNormB == 0 {
		return 1
	}
	sim := Dot(a, b) * invNormA * invNormB
	// Clamp rounding noise into the valid similarity range.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32
