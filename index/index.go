// Package index provides the shared types for the exact and approximate
// nearest-neighbor indexes.
package index

import "fmt"

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the identity of the stored vector.
	ID uint32

	// Distance is the distance between the query vector and the result vector.
	Distance float32
}

// VectorSource is a read-only, fixed-size view over stored vectors.
//
// Indexes hold identities only and read coordinates through a VectorSource.
// Implementations must return the same slice contents for an identity for
// the lifetime of the source.
type VectorSource interface {
	// Dimension returns the length of every vector in the source.
	Dimension() int

	// Count returns the number of vectors; identities are 0..Count()-1.
	Count() int

	// Vector returns the vector stored under id. The returned slice must not
	// be modified.
	Vector(id uint32) ([]float32, error)
}

// Searcher is implemented by both indexes for the post-processing layer.
type Searcher interface {
	// Search returns up to k neighbors of q, closest first.
	Search(q []float32, k int) ([]SearchResult, error)

	// State reports the lifecycle state of the index.
	State() State
}

// State is the lifecycle state shared by both indexes.
//
// Empty is initial. Build moves any state to Built; Update moves Built or
// Updated to Updated.
type State uint8

const (
	StateEmpty State = iota
	StateBuilt
	StateUpdated
)

// Queryable reports whether the index can answer queries.
func (s State) Queryable() bool {
	return s == StateBuilt || s == StateUpdated
}

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateBuilt:
		return "Built"
	case StateUpdated:
		return "Updated"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}
