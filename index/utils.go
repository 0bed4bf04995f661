package index

import (
	"slices"

	"github.com/hupe1980/vecrec/distance"
	"github.com/hupe1980/vecrec/queue"
)

// SortResults sorts results ascending by distance, ties by ascending identity.
func SortResults(results []SearchResult) {
	slices.SortFunc(results, func(a, b SearchResult) int {
		switch {
		case queue.Closer(a.Distance, a.ID, b.Distance, b.ID):
			return -1
		case queue.Closer(b.Distance, b.ID, a.Distance, a.ID):
			return 1
		default:
			return 0
		}
	})
}

// BruteSearch scans every vector in src and returns the k closest to q
// under fn, sorted by SortResults ordering.
func BruteSearch(src VectorSource, q []float32, k int, fn distance.Func) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(q) != src.Dimension() {
		return nil, &ErrDimensionMismatch{Expected: src.Dimension(), Actual: len(q)}
	}

	top := queue.NewMax(k + 1)
	for i := 0; i < src.Count(); i++ {
		id := uint32(i)
		v, err := src.Vector(id)
		if err != nil {
			return nil, err
		}
		top.Offer(id, fn(q, v), k)
	}

	return FromItems(top.Sorted()), nil
}

// FromItems converts queue items (already in result order) to SearchResults.
func FromItems(items []*queue.PriorityQueueItem) []SearchResult {
	results := make([]SearchResult, len(items))
	for i, it := range items {
		results[i] = SearchResult{ID: it.Node, Distance: it.Distance}
	}
	return results
}

// ValidateQuery checks k and the query dimension against dim.
func ValidateQuery(q []float32, k, dim int) error {
	if k <= 0 {
		return ErrInvalidK
	}
	if len(q) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(q)}
	}
	return nil
}
