package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/vecrec/distance"
	"github.com/hupe1980/vecrec/index"
	"github.com/viterin/vek/vek32"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

func (r *RNG) vectors(num, dimensions int, gen func() float32) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = gen()
		}
		vectors[i] = vec
	}

	return vectors
}

// UniformVectors generates random vectors with values in range [0, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformVectors(num int, dimensions int) [][]float32 {
	return r.vectors(num, dimensions, r.rand.Float32)
}

// UniformRangeVectors generates random vectors with values in range [-1, 1).
func (r *RNG) UniformRangeVectors(num int, dimensions int) [][]float32 {
	return r.vectors(num, dimensions, func() float32 { return r.rand.Float32()*2 - 1 })
}

// GaussianVectors generates random vectors with values from a standard normal distribution.
func (r *RNG) GaussianVectors(num int, dimensions int) [][]float32 {
	return r.vectors(num, dimensions, func() float32 { return float32(r.rand.NormFloat64()) })
}

// UnitVectors generates L2-normalized random vectors (on the hypersphere).
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	vectors := r.GaussianVectors(num, dimensions)
	for _, vec := range vectors {
		norm := math.Sqrt(float64(vek32.Dot(vec, vec)))
		if norm == 0 {
			norm = 1
		}
		vek32.MulNumber_Inplace(vec, float32(1/norm))
	}
	return vectors
}

// ClusteredVectors generates vectors clustered around random centroids.
// Useful for testing ANN index quality on non-uniform data.
func (r *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitVectors(clusters, dim)

	i := 0
	return r.vectors(num, dim, func() float32 {
		c := centroids[(i/dim)%clusters]
		v := c[i%dim] + float32(r.rand.NormFloat64())*spread
		i++
		return v
	})
}

// SliceSource is an index.VectorSource over an in-memory slice.
type SliceSource struct {
	dim     int
	vectors [][]float32
}

var _ index.VectorSource = (*SliceSource)(nil)

// NewSliceSource wraps vectors. All vectors must share one dimension.
func NewSliceSource(vectors [][]float32) *SliceSource {
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	return &SliceSource{dim: dim, vectors: vectors}
}

// Dimension returns the vector dimension.
func (s *SliceSource) Dimension() int { return s.dim }

// Count returns the number of vectors.
func (s *SliceSource) Count() int { return len(s.vectors) }

// Vector returns the vector stored under id.
func (s *SliceSource) Vector(id uint32) ([]float32, error) {
	if int(id) >= len(s.vectors) {
		return nil, &index.ErrUnknownIdentity{ID: id, Count: len(s.vectors)}
	}
	return s.vectors[id], nil
}

// Prefix returns a source over the first n vectors.
func (s *SliceSource) Prefix(n int) *SliceSource {
	return &SliceSource{dim: s.dim, vectors: s.vectors[:n]}
}

// ExactTopK returns the ground-truth k nearest neighbors of q under fn.
// It panics on invalid input; tests pass well-formed queries.
func ExactTopK(src index.VectorSource, q []float32, k int, fn distance.Func) []index.SearchResult {
	res, err := index.BruteSearch(src, q, k, fn)
	if err != nil {
		panic(err)
	}
	return res
}

// ComputeRecall returns the fraction of exact identities found in approx.
func ComputeRecall(approx, exact []index.SearchResult) float64 {
	if len(exact) == 0 {
		return 1
	}

	want := make(map[uint32]struct{}, len(exact))
	for _, r := range exact {
		want[r.ID] = struct{}{}
	}

	hits := 0
	for _, r := range approx {
		if _, ok := want[r.ID]; ok {
			hits++
			delete(want, r.ID)
		}
	}
	return float64(hits) / float64(len(exact))
}

// IDs extracts the identities of results in order.
func IDs(results []index.SearchResult) []uint32 {
	ids := make([]uint32, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}
