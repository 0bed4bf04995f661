package kdtree

import (
	"cmp"
	"math"
	"sync"

	"github.com/hupe1980/vecrec/distance"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/queue"
)

// Options represents the options for configuring the tree.
type Options struct {
	// LeafSize is the largest number of identities a leaf may hold. Nodes
	// with more identities are split at the median.
	LeafSize int
}

// DefaultOptions contains the default tree options (the leaf size scikit-learn uses).
var DefaultOptions = Options{
	LeafSize: 40,
}

const noChild = -1

// node is an element of the flat node array. Internal nodes have both
// children set; leaves have left == noChild. [start, end) is the range of
// ids covered by the node.
type node struct {
	dim   uint32
	split float32
	left  int32
	right int32
	start uint32
	end   uint32
}

func (n *node) leaf() bool { return n.left == noChild }

// Tree is a k-d tree over the identities of a VectorSource.
// It is safe for concurrent use: queries share a read lock, Build and Update
// take it exclusively.
type Tree struct {
	mu sync.RWMutex

	opts  Options
	state index.State
	src   index.VectorSource

	dim    int
	nodes  []node
	ids    []uint32
	depth  int
	leaves int
}

// New creates an empty tree.
func New(optFns ...func(o *Options)) *Tree {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.LeafSize < 1 {
		opts.LeafSize = 1
	}
	return &Tree{opts: opts}
}

// Build constructs the tree over every identity in src, replacing any
// previous tree. It fails with index.ErrEmptyInput if src is empty; the
// previous tree (if any) is kept in that case.
func (t *Tree) Build(src index.VectorSource) error {
	b, err := construct(src, t.opts.LeafSize)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.install(src, b)
	t.state = index.StateBuilt
	return nil
}

// Update rebuilds the tree from the current contents of src.
func (t *Tree) Update(src index.VectorSource) error {
	if !t.State().Queryable() {
		return index.ErrIndexNotBuilt
	}

	b, err := construct(src, t.opts.LeafSize)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.install(src, b)
	t.state = index.StateUpdated
	return nil
}

func (t *Tree) install(src index.VectorSource, b *built) {
	t.src = src
	t.dim = src.Dimension()
	t.nodes = b.nodes
	t.ids = b.ids
	t.depth = b.depth
	t.leaves = b.leaves
}

// State returns the lifecycle state.
func (t *Tree) State() index.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Count returns the number of indexed identities.
func (t *Tree) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// Depth returns the number of levels of the tree (1 for a single leaf).
func (t *Tree) Depth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.depth
}

// Leaves returns the number of leaves.
func (t *Tree) Leaves() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.leaves
}

// LeafSize returns the configured leaf size.
func (t *Tree) LeafSize() int { return t.opts.LeafSize }

type built struct {
	nodes  []node
	ids    []uint32
	depth  int
	leaves int
}

type buildTask struct {
	node  int32
	depth int
}

// construct splits iteratively with an explicit work stack, so large inputs
// cannot exhaust the goroutine stack.
func construct(src index.VectorSource, leafSize int) (*built, error) {
	n := src.Count()
	if n == 0 {
		return nil, index.ErrEmptyInput
	}
	dim := src.Dimension()

	vecs := make([][]float32, n)
	ids := make([]uint32, n)
	for i := range n {
		v, err := src.Vector(uint32(i))
		if err != nil {
			return nil, err
		}
		if len(v) != dim {
			return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
		vecs[i] = v
		ids[i] = uint32(i)
	}

	// A balanced tree has about 2n/leafSize nodes.
	b := &built{
		nodes: make([]node, 0, 2*(n/leafSize+1)),
		ids:   ids,
	}
	b.nodes = append(b.nodes, node{left: noChild, right: noChild, start: 0, end: uint32(n)})

	stack := []buildTask{{node: 0, depth: 1}}
	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		b.depth = max(b.depth, task.depth)

		nd := b.nodes[task.node]
		size := int(nd.end - nd.start)
		if size <= leafSize {
			b.leaves++
			continue
		}

		d := (task.depth - 1) % dim
		mid := int(nd.start) + size/2
		selectNth(ids[nd.start:nd.end], mid-int(nd.start), vecs, d)

		left := int32(len(b.nodes))
		b.nodes = append(b.nodes,
			node{left: noChild, right: noChild, start: nd.start, end: uint32(mid)},
			node{left: noChild, right: noChild, start: uint32(mid), end: nd.end},
		)

		b.nodes[task.node] = node{
			dim:   uint32(d),
			split: vecs[ids[mid]][d],
			left:  left,
			right: left + 1,
			start: nd.start,
			end:   nd.end,
		}

		stack = append(stack, buildTask{node: left + 1, depth: task.depth + 1}, buildTask{node: left, depth: task.depth + 1})
	}

	return b, nil
}

// compareAt orders identities by coordinate d, ties by identity. The order
// is total, so the median is well defined even with duplicate coordinates.
func compareAt(vecs [][]float32, d int, a, b uint32) int {
	if c := cmp.Compare(vecs[a][d], vecs[b][d]); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// selectNth reorders ids so that ids[nth] holds the element of rank nth,
// with every smaller element before it and every larger one after it.
func selectNth(ids []uint32, nth int, vecs [][]float32, d int) {
	lo, hi := 0, len(ids)-1
	for lo < hi {
		// Median of three pivot, moved to hi.
		m := lo + (hi-lo)/2
		if compareAt(vecs, d, ids[m], ids[lo]) < 0 {
			ids[m], ids[lo] = ids[lo], ids[m]
		}
		if compareAt(vecs, d, ids[hi], ids[lo]) < 0 {
			ids[hi], ids[lo] = ids[lo], ids[hi]
		}
		if compareAt(vecs, d, ids[m], ids[hi]) < 0 {
			ids[m], ids[hi] = ids[hi], ids[m]
		}
		pivot := ids[hi]

		p := lo
		for i := lo; i < hi; i++ {
			if compareAt(vecs, d, ids[i], pivot) < 0 {
				ids[i], ids[p] = ids[p], ids[i]
				p++
			}
		}
		ids[p], ids[hi] = ids[hi], ids[p]

		switch {
		case p == nth:
			return
		case nth < p:
			hi = p - 1
		default:
			lo = p + 1
		}
	}
}

type searchTask struct {
	node  int32
	bound float32 // squared distance from q to the node's half-space
}

// Search returns the min(k, Count()) nearest identities to q by Euclidean
// distance, ascending, ties by ascending identity.
func (t *Tree) Search(q []float32, k int) ([]index.SearchResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.state.Queryable() {
		return nil, index.ErrIndexNotBuilt
	}
	if err := index.ValidateQuery(q, k, t.dim); err != nil {
		return nil, err
	}

	k = min(k, len(t.ids))
	top := queue.NewMax(k + 1)
	worst := func() float32 {
		if top.Len() < k {
			return float32(math.Inf(1))
		}
		return top.Top().Distance
	}

	stack := make([]searchTask, 1, 2*t.depth+1)
	stack[0] = searchTask{node: 0}
	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Equal bounds are still visited so equidistant points with a
		// smaller identity are not missed.
		if task.bound > worst() {
			continue
		}

		nd := &t.nodes[task.node]
		if nd.leaf() {
			for _, id := range t.ids[nd.start:nd.end] {
				v, err := t.src.Vector(id)
				if err != nil {
					return nil, err
				}
				top.Offer(id, distance.SquaredL2(q, v), k)
			}
			continue
		}

		diff := q[nd.dim] - nd.split
		near, far := nd.left, nd.right
		if diff >= 0 {
			near, far = far, near
		}

		stack = append(stack,
			searchTask{node: far, bound: max(task.bound, diff*diff)},
			searchTask{node: near, bound: task.bound},
		)
	}

	results := index.FromItems(top.Sorted())
	for i := range results {
		results[i].Distance = float32(math.Sqrt(float64(results[i].Distance)))
	}
	return results, nil
}

var _ index.Searcher = (*Tree)(nil)
