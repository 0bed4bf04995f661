package kdtree

import (
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/persistence"
)

const formatVersion = 1

var errFormat = errors.New("kdtree: invalid tree")

// WriteTo serializes the tree:
//
//	version u32 | state u8 | leafSize u32 | dim u32 | count u32 | depth u32 |
//	nodes u32 | nodes * (dim u32, split f32, left i32, right i32, start u32, end u32) |
//	count * id u32
func (t *Tree) WriteTo(w *persistence.BinaryWriter) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.state.Queryable() {
		return index.ErrIndexNotBuilt
	}

	w.WriteUint32(formatVersion)
	w.WriteUint8(uint8(t.state))
	w.WriteUint32(uint32(t.opts.LeafSize))
	w.WriteUint32(uint32(t.dim))
	w.WriteUint32(uint32(len(t.ids)))
	w.WriteUint32(uint32(t.depth))
	w.WriteUint32(uint32(len(t.nodes)))
	for i := range t.nodes {
		nd := &t.nodes[i]
		w.WriteUint32(nd.dim)
		w.WriteFloat32(nd.split)
		w.WriteUint32(uint32(nd.left))
		w.WriteUint32(uint32(nd.right))
		w.WriteUint32(nd.start)
		w.WriteUint32(nd.end)
	}
	w.WriteUint32Slice(t.ids)

	return w.Err()
}

// Load decodes a tree written by WriteTo and binds it to src. The tree must
// cover a prefix of src with the same dimension; Count() reports how many
// identities it holds, so callers can Update when src has grown since.
func Load(r *persistence.SliceReader, src index.VectorSource) (*Tree, error) {
	var hdr [5]uint32
	version, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: version %d", errFormat, version)
	}
	state, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	for i := range hdr {
		if hdr[i], err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	leafSize, dim, count, depth, nodeCount := int(hdr[0]), int(hdr[1]), int(hdr[2]), int(hdr[3]), int(hdr[4])

	if s := index.State(state); !s.Queryable() {
		return nil, fmt.Errorf("%w: state %s", errFormat, s)
	}
	if leafSize < 1 || count < 1 {
		return nil, fmt.Errorf("%w: leaf size %d, count %d", errFormat, leafSize, count)
	}
	if dim != src.Dimension() {
		return nil, &index.ErrDimensionMismatch{Expected: src.Dimension(), Actual: dim}
	}
	if count > src.Count() {
		return nil, fmt.Errorf("%w: tree holds %d identities, source only %d", errFormat, count, src.Count())
	}
	if nodeCount < 1 || nodeCount > r.Remaining()/24 {
		return nil, fmt.Errorf("%w: %d nodes", persistence.ErrTruncated, nodeCount)
	}

	nodes := make([]node, nodeCount)
	for i := range nodes {
		var f [6]uint32
		for j := range f {
			if f[j], err = r.ReadUint32(); err != nil {
				return nil, err
			}
		}
		nodes[i] = node{
			dim:   f[0],
			split: math.Float32frombits(f[1]),
			left:  int32(f[2]),
			right: int32(f[3]),
			start: f[4],
			end:   f[5],
		}
	}

	ids, err := r.ReadUint32Slice(count)
	if err != nil {
		return nil, err
	}

	leaves, maxDepth, err := validate(nodes, ids, dim)
	if err != nil {
		return nil, err
	}
	if maxDepth != depth {
		return nil, fmt.Errorf("%w: depth %d, header says %d", errFormat, maxDepth, depth)
	}

	return &Tree{
		opts:   Options{LeafSize: leafSize},
		state:  index.State(state),
		src:    src,
		dim:    dim,
		nodes:  nodes,
		ids:    ids,
		depth:  depth,
		leaves: leaves,
	}, nil
}

// validate walks the tree from the root and checks that child ranges split
// their parent contiguously, that every node is reached exactly once and that ids is a
// permutation of 0..len(ids)-1.
func validate(nodes []node, ids []uint32, dim int) (leaves, depth int, err error) {
	seen := make([]bool, len(ids))
	for _, id := range ids {
		if int(id) >= len(ids) || seen[id] {
			return 0, 0, fmt.Errorf("%w: identity %d repeated or out of range", errFormat, id)
		}
		seen[id] = true
	}

	if nodes[0].start != 0 || int(nodes[0].end) != len(ids) {
		return 0, 0, fmt.Errorf("%w: root range", errFormat)
	}

	visited := make([]bool, len(nodes))
	reached := 0
	stack := []buildTask{{node: 0, depth: 1}}
	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[task.node] {
			return 0, 0, fmt.Errorf("%w: node %d reached twice", errFormat, task.node)
		}
		visited[task.node] = true
		reached++
		depth = max(depth, task.depth)

		nd := &nodes[task.node]
		if nd.start >= nd.end {
			return 0, 0, fmt.Errorf("%w: node %d is empty", errFormat, task.node)
		}
		if nd.leaf() {
			if nd.right != noChild {
				return 0, 0, fmt.Errorf("%w: node %d has one child", errFormat, task.node)
			}
			leaves++
			continue
		}

		// Children always follow their parent, which also rules out cycles.
		if nd.left <= task.node || nd.right <= task.node || int(nd.left) >= len(nodes) || int(nd.right) >= len(nodes) || int(nd.dim) >= dim {
			return 0, 0, fmt.Errorf("%w: node %d links", errFormat, task.node)
		}
		l, r := &nodes[nd.left], &nodes[nd.right]
		if l.start != nd.start || l.end != r.start || r.end != nd.end {
			return 0, 0, fmt.Errorf("%w: node %d child ranges", errFormat, task.node)
		}
		stack = append(stack, buildTask{node: nd.right, depth: task.depth + 1}, buildTask{node: nd.left, depth: task.depth + 1})
	}

	if reached != len(nodes) {
		return 0, 0, fmt.Errorf("%w: %d unreachable nodes", errFormat, len(nodes)-reached)
	}
	return leaves, depth, nil
}
