package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("MinHeap", func(t *testing.T) {
		pq := NewMin(4)
		pq.PushItem(3, 0.3)
		pq.PushItem(1, 0.1)
		pq.PushItem(2, 0.2)

		require.Equal(t, 3, pq.Len())
		assert.Equal(t, uint32(1), pq.Top().Node)

		var got []uint32
		for pq.Len() > 0 {
			got = append(got, pq.PopItem().Node)
		}
		assert.Equal(t, []uint32{1, 2, 3}, got)
	})

	t.Run("MaxHeap", func(t *testing.T) {
		pq := NewMax(4)
		pq.PushItem(1, 0.1)
		pq.PushItem(3, 0.3)
		pq.PushItem(2, 0.2)

		assert.Equal(t, uint32(3), pq.Top().Node)
	})

	t.Run("TiesByIdentity", func(t *testing.T) {
		pq := NewMax(4)
		pq.PushItem(7, 0.5)
		pq.PushItem(2, 0.5)
		pq.PushItem(5, 0.5)

		// The worst of equal distances is the largest identity.
		assert.Equal(t, uint32(7), pq.Top().Node)

		sorted := pq.Sorted()
		require.Len(t, sorted, 3)
		assert.Equal(t, uint32(2), sorted[0].Node)
		assert.Equal(t, uint32(5), sorted[1].Node)
		assert.Equal(t, uint32(7), sorted[2].Node)
		assert.Equal(t, 0, pq.Len())
	})

	t.Run("SortedMin", func(t *testing.T) {
		pq := NewMin(2)
		pq.PushItem(9, 0.9)
		pq.PushItem(4, 0.4)

		sorted := pq.Sorted()
		assert.Equal(t, uint32(4), sorted[0].Node)
		assert.Equal(t, uint32(9), sorted[1].Node)
	})

	t.Run("PopEmpty", func(t *testing.T) {
		pq := NewMin(0)
		assert.Nil(t, pq.Pop())
	})

	t.Run("Reset", func(t *testing.T) {
		pq := NewMin(2)
		pq.PushItem(1, 1)
		pq.Reset()
		assert.Equal(t, 0, pq.Len())
	})
}

func TestCloser(t *testing.T) {
	assert.True(t, Closer(0.1, 5, 0.2, 1))
	assert.True(t, Closer(0.1, 1, 0.1, 2))
	assert.False(t, Closer(0.1, 2, 0.1, 2))
	assert.False(t, Closer(0.3, 0, 0.2, 9))
}

func TestOffer(t *testing.T) {
	pq := NewMax(4)

	for i, d := range []float32{5, 1, 4, 2, 3, 2} {
		pq.Offer(uint32(i), d, 3)
	}

	assert.False(t, pq.Offer(9, 2, 3), "tie with larger identity than the worst kept item is rejected")
	assert.True(t, pq.Offer(0, 2, 3), "tie with smaller identity replaces the worst kept item")

	var got []uint32
	for _, it := range pq.Sorted() {
		got = append(got, it.Node)
	}
	assert.Equal(t, []uint32{1, 0, 3}, got)
}
