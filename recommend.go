package vecrec

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecrec/featurestore"
	"github.com/hupe1980/vecrec/index"
)

// Entry is one recommended item.
type Entry struct {
	ID       uint32
	Key      string
	Distance float32

	// Score is (1 - Distance/max) * 100, where max is the largest distance
	// in the same list.
	Score    float64
	Metadata featurestore.Metadata
}

// ScoreString renders the score as a percentage with two decimals.
func (e Entry) ScoreString() string {
	return fmt.Sprintf("%.2f%%", e.Score)
}

// Recommendations holds the independent results of both indices. A failing
// index leaves its list empty and reports the failure in its error field.
type Recommendations struct {
	Exact          []Entry
	Approximate    []Entry
	ExactErr       error
	ApproximateErr error
}

// Scores computes the normalized scores of an ascending distance list. An
// empty list or one whose largest distance is 0 uses 1 as the maximum.
func Scores(distances []float32) []float64 {
	maxDist := float64(0)
	for _, d := range distances {
		maxDist = max(maxDist, float64(d))
	}
	if maxDist == 0 {
		maxDist = 1
	}

	scores := make([]float64, len(distances))
	for i, d := range distances {
		scores[i] = (1 - float64(d)/maxDist) * 100
	}
	return scores
}

// entries drops excluded identities, keeps the first k and scores what is
// left.
func entries(results []index.SearchResult, exclude *roaring.Bitmap, k int) []Entry {
	out := make([]Entry, 0, k)
	for _, r := range results {
		if len(out) == k {
			break
		}
		if exclude.Contains(r.ID) {
			continue
		}
		out = append(out, Entry{ID: r.ID, Distance: r.Distance})
	}

	distances := make([]float32, len(out))
	for i := range out {
		distances[i] = out[i].Distance
	}
	for i, s := range Scores(distances) {
		out[i].Score = s
	}
	return out
}
