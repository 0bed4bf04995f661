// Package queue provides the candidate priority queues used by the index searches.
package queue

import "container/heap"

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node     uint32  // Node is the vector identity.
	Distance float32 // Distance is the priority of the item in the queue.
	Index    int     // Index is maintained by the heap.Interface methods.
}

// Closer reports whether (d1, id1) ranks before (d2, id2): smaller distance
// first, ties broken by ascending identity.
func Closer(d1 float32, id1 uint32, d2 float32, id2 uint32) bool {
	if d1 != d2 {
		return d1 < d2
	}
	return id1 < id2
}

// PriorityQueue implements heap.Interface and holds PriorityQueueItems.
//
// With Order == false the top is the closest item (min-heap); with
// Order == true the top is the farthest item (max-heap). Equal distances are
// ordered by identity so results are deterministic.
type PriorityQueue struct {
	Order bool                 // Order selects max-heap (true) or min-heap (false) ordering.
	Items []*PriorityQueueItem // Items contains the elements of the priority queue.
}

// NewMin returns an empty min-heap with room for capacity items.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{Items: make([]*PriorityQueueItem, 0, capacity)}
}

// NewMax returns an empty max-heap with room for capacity items.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{Order: true, Items: make([]*PriorityQueueItem, 0, capacity)}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	a, b := pq.Items[i], pq.Items[j]
	if !pq.Order {
		return Closer(a.Distance, a.Node, b.Distance, b.Node)
	}
	return Closer(b.Distance, b.Node, a.Distance, a.Node)
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

// Push adds x to the priority queue. Use PushItem from outside the heap package.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the last element. Use PopItem from outside the heap package.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.Items = old[:n-1]

	return item
}

// PushItem pushes a node with the given distance, keeping the heap invariant.
func (pq *PriorityQueue) PushItem(node uint32, dist float32) {
	heap.Push(pq, &PriorityQueueItem{Node: node, Distance: dist})
}

// PopItem removes and returns the top item.
func (pq *PriorityQueue) PopItem() *PriorityQueueItem {
	item, _ := heap.Pop(pq).(*PriorityQueueItem)
	return item
}

// Offer keeps the k closest items of a max-heap: it pushes (node, dist) while
// the queue holds fewer than k items, otherwise it replaces the top if the new
// item is closer. It reports whether the item was kept.
func (pq *PriorityQueue) Offer(node uint32, dist float32, k int) bool {
	if pq.Len() < k {
		pq.PushItem(node, dist)
		return true
	}
	top := pq.Items[0]
	if !Closer(dist, node, top.Distance, top.Node) {
		return false
	}
	top.Node, top.Distance = node, dist
	heap.Fix(pq, 0)
	return true
}

// Top returns the top element of the priority queue without removing it.
func (pq *PriorityQueue) Top() *PriorityQueueItem {
	return pq.Items[0]
}

// Reset empties the queue, keeping its allocation and ordering.
func (pq *PriorityQueue) Reset() {
	clear(pq.Items)
	pq.Items = pq.Items[:0]
}

// Sorted drains the queue and returns its items closest first.
func (pq *PriorityQueue) Sorted() []*PriorityQueueItem {
	out := make([]*PriorityQueueItem, pq.Len())
	if pq.Order {
		for i := len(out) - 1; i >= 0; i-- {
			out[i] = pq.PopItem()
		}
	} else {
		for i := range out {
			out[i] = pq.PopItem()
		}
	}
	return out
}
