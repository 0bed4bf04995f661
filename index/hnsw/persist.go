package hnsw

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/hupe1980/vecrec/distance"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/persistence"
)

const formatVersion = 1

var (
	errFormat = errors.New("hnsw: invalid graph")

	// ErrParameterMismatch is returned by Load when the persisted graph was
	// built with different construction parameters than expected.
	ErrParameterMismatch = errors.New("hnsw: construction parameters differ")
)

// WriteTo serializes the graph:
//
//	version u32 | state u8 | M u32 | efConstruction u32 | heuristic u8 |
//	dim u32 | capacity u32 | seed u64 | count u32 | entry u32 | maxLevel u32 |
//	count * (level u8 | (level+1) * (n u32 | n * id u32))
func (g *Graph) WriteTo(w *persistence.BinaryWriter) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.state.Queryable() {
		return index.ErrIndexNotBuilt
	}

	w.WriteUint32(formatVersion)
	w.WriteUint8(uint8(g.state))
	w.WriteUint32(uint32(g.opts.M))
	w.WriteUint32(uint32(g.opts.EFConstruction))
	w.WriteUint8(boolByte(g.opts.Heuristic))
	w.WriteUint32(uint32(g.dim))
	w.WriteUint32(uint32(g.capacity))
	w.WriteUint64(uint64(g.opts.Seed))
	w.WriteUint32(uint32(len(g.nodes)))
	w.WriteUint32(g.entry)
	w.WriteUint32(uint32(g.maxLevel))

	for i := range g.nodes {
		nd := &g.nodes[i]
		w.WriteUint8(uint8(nd.level))
		for _, conns := range nd.conns {
			w.WriteUint32(uint32(len(conns)))
			w.WriteUint32Slice(conns)
		}
	}

	return w.Err()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Load decodes a graph written by WriteTo and binds it to src. expect carries
// the configured construction parameters; a graph built with a different M,
// EFConstruction or heuristic is rejected with ErrParameterMismatch. The
// search-time options (EFSearch) are taken from expect.
func Load(r *persistence.SliceReader, src index.VectorSource, expect Options) (*Graph, error) {
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
	if s := index.State(state); !s.Queryable() {
		return nil, fmt.Errorf("%w: state %s", errFormat, s)
	}

	m, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	efc, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	heuristic, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}

	probe := New(func(o *Options) { *o = expect })
	if int(m) != probe.opts.M || int(efc) != probe.opts.EFConstruction || (heuristic == 1) != probe.opts.Heuristic {
		return nil, fmt.Errorf("%w: stored M=%d efConstruction=%d heuristic=%d, configured M=%d efConstruction=%d heuristic=%t",
			ErrParameterMismatch, m, efc, heuristic, probe.opts.M, probe.opts.EFConstruction, probe.opts.Heuristic)
	}

	var hdr [3]uint32
	for i := range hdr {
		if hdr[i], err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	dim, capacity := int(hdr[0]), int(hdr[1])
	seed, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	for i := range hdr {
		if hdr[i], err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	count, entry, maxLevel := int(hdr[0]), hdr[1], int(hdr[2])

	if dim != src.Dimension() {
		return nil, &index.ErrDimensionMismatch{Expected: src.Dimension(), Actual: dim}
	}
	if count < 1 || count > capacity {
		return nil, fmt.Errorf("%w: count %d, capacity %d", errFormat, count, capacity)
	}
	if count > src.Count() {
		return nil, fmt.Errorf("%w: graph holds %d identities, source only %d", errFormat, count, src.Count())
	}
	if int(entry) >= count || maxLevel >= maxLayers {
		return nil, fmt.Errorf("%w: entry %d at level %d", errFormat, entry, maxLevel)
	}
	// Every node takes at least a level byte and one list length.
	if count > r.Remaining()/5 {
		return nil, fmt.Errorf("%w: %d nodes", persistence.ErrTruncated, count)
	}

	g := probe
	g.opts.Seed = int64(seed)
	g.state = index.State(state)
	g.src = src
	g.dim = dim
	g.capacity = capacity
	g.entry = entry
	g.maxLevel = maxLevel
	g.nodes = make([]node, count)
	g.invNorms = make([]float32, count)

	for i := range g.nodes {
		level, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		if int(level) > maxLevel {
			return nil, fmt.Errorf("%w: node %d level %d above max %d", errFormat, i, level, maxLevel)
		}

		nd := &g.nodes[i]
		nd.level = int(level)
		nd.conns = make([][]uint32, nd.level+1)
		for l := range nd.conns {
			n, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			if int(n) > g.maxConnections(l) {
				return nil, fmt.Errorf("%w: node %d has %d links on layer %d", errFormat, i, n, l)
			}
			if nd.conns[l], err = r.ReadUint32Slice(int(n)); err != nil {
				return nil, err
			}
		}
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	for i := range g.nodes {
		v, err := src.Vector(uint32(i))
		if err != nil {
			return nil, err
		}
		g.invNorms[i] = distance.InverseNorm(v)
	}

	// Continue the level sequence without replaying the build.
	g.rng = rand.New(rand.NewSource(int64(seed) + int64(count)))
	g.build = newVisitSet(count)

	return g, nil
}

// validate checks that every link targets an existing node present on that
// layer, that nodes do not link to themselves and that the entry point sits
// on the top layer.
func (g *Graph) validate() error {
	if g.nodes[g.entry].level != g.maxLevel {
		return fmt.Errorf("%w: entry %d is not on layer %d", errFormat, g.entry, g.maxLevel)
	}

	for i := range g.nodes {
		for l, conns := range g.nodes[i].conns {
			for _, nb := range conns {
				if int(nb) >= len(g.nodes) || nb == uint32(i) {
					return fmt.Errorf("%w: node %d links to %d", errFormat, i, nb)
				}
				if g.nodes[nb].level < l {
					return fmt.Errorf("%w: node %d links to %d on layer %d it does not occupy", errFormat, i, nb, l)
				}
			}
		}
	}

	return nil
}
