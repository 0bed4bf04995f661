package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/vecrec/distance"
	"github.com/hupe1980/vecrec/index"
	"github.com/hupe1980/vecrec/queue"
)

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// maxLayers bounds the drawn layer so a pathological draw cannot allocate
	// hundreds of empty layers.
	maxLayers = 16

	// DefaultM is the default number of bidirectional links.
	DefaultM = 16

	// DefaultEFConstruction is the default beam width during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default beam width during queries.
	DefaultEFSearch = 200

	// DefaultCapacityMargin is the number of elements reserved on top of the
	// build size for later updates.
	DefaultCapacityMargin = 10000

	// DefaultSeed seeds layer assignment.
	DefaultSeed = 100
)

// Options represents the options for configuring the graph.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// Layer 0 keeps up to 2*M connections per node, upper layers up to M.
	// The range M=12-48 is ok for most use cases.
	M int

	// EFConstruction is the beam width used to collect neighbour candidates on insertion.
	EFConstruction int

	// EFSearch is the default beam width for queries that pass ef <= 0.
	EFSearch int

	// Heuristic selects neighbours with the diversity heuristic (true) or
	// keeps the M closest candidates (false).
	Heuristic bool

	// Capacity is the element budget reserved on Build. If 0, Build reserves
	// the source count plus CapacityMargin.
	Capacity int

	// CapacityMargin is added to the build size when Capacity is 0.
	CapacityMargin int

	// Seed seeds the layer assignment generator.
	Seed int64
}

// DefaultOptions contains the default graph options.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
	Heuristic:      true,
	CapacityMargin: DefaultCapacityMargin,
	Seed:           DefaultSeed,
}

// node holds the layer and per-layer neighbour lists of one identity.
type node struct {
	level int
	conns [][]uint32
}

// Graph is a Hierarchical Navigable Small World graph over the identities of
// a VectorSource. Queries share a read lock; Build and Update take it
// exclusively.
type Graph struct {
	mu sync.RWMutex

	opts  Options
	state index.State
	src   index.VectorSource

	dim      int
	capacity int
	mmax     int     // Max number of connections per element on upper layers
	mmax0    int     // Max for layer 0
	ml       float64 // Normalization factor for level generation

	nodes    []node
	invNorms []float32
	entry    uint32
	maxLevel int

	rng *rand.Rand

	// build is only touched under the write lock.
	build *visitSet

	visitedPool sync.Pool
}

// New creates an empty graph.
func New(optFns ...func(o *Options)) *Graph {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	g := &Graph{}
	g.configure(opts)
	return g
}

func (g *Graph) configure(opts Options) {
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction < opts.M {
		opts.EFConstruction = opts.M
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}
	if opts.CapacityMargin < 0 {
		opts.CapacityMargin = 0
	}

	g.opts = opts
	g.mmax = opts.M
	g.mmax0 = mmax0Multiplier * opts.M
	g.ml = 1 / math.Log(float64(opts.M))
}

// Options returns the effective options.
func (g *Graph) Options() Options {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.opts
}

// State returns the lifecycle state.
func (g *Graph) State() index.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Count returns the number of inserted identities.
func (g *Graph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Capacity returns the reserved element budget.
func (g *Graph) Capacity() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.capacity
}

// Build inserts every identity of src into a new graph and replaces the
// current one. optFns override the graph options for this and later builds
// (e.g. EFConstruction and M). The current graph stays queryable until the
// new one is installed.
func (g *Graph) Build(src index.VectorSource, optFns ...func(o *Options)) error {
	n := src.Count()
	if n == 0 {
		return index.ErrEmptyInput
	}

	g.mu.RLock()
	opts := g.opts
	g.mu.RUnlock()
	for _, fn := range optFns {
		fn(&opts)
	}

	capacity := opts.Capacity
	if capacity == 0 {
		capacity = n + opts.CapacityMargin
	}
	if n > capacity {
		return &index.ErrCapacityExceeded{Capacity: capacity, Required: n}
	}

	fresh := &Graph{}
	fresh.configure(opts)
	fresh.src = src
	fresh.dim = src.Dimension()
	fresh.capacity = capacity
	fresh.rng = rand.New(rand.NewSource(opts.Seed))
	fresh.nodes = make([]node, 0, n)
	fresh.invNorms = make([]float32, 0, n)
	fresh.build = newVisitSet(n)

	for i := range n {
		if err := fresh.insert(uint32(i)); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.configure(fresh.opts)
	g.src = fresh.src
	g.dim = fresh.dim
	g.capacity = fresh.capacity
	g.nodes = fresh.nodes
	g.invNorms = fresh.invNorms
	g.entry = fresh.entry
	g.maxLevel = fresh.maxLevel
	g.rng = fresh.rng
	g.build = fresh.build
	g.visitedPool = sync.Pool{}
	g.state = index.StateBuilt
	return nil
}

// Update inserts the identities src holds beyond Count(). It requires
// capacity for all of them up front and inserts nothing otherwise. Queries
// block while the update runs.
func (g *Graph) Update(src index.VectorSource) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.state.Queryable() {
		return index.ErrIndexNotBuilt
	}
	if src.Dimension() != g.dim {
		return &index.ErrDimensionMismatch{Expected: g.dim, Actual: src.Dimension()}
	}

	have, want := len(g.nodes), src.Count()
	if want < have {
		return fmt.Errorf("hnsw: source holds %d vectors, graph already has %d", want, have)
	}
	if want > g.capacity {
		return &index.ErrCapacityExceeded{Capacity: g.capacity, Required: want}
	}

	g.src = src
	for i := have; i < want; i++ {
		if err := g.insert(uint32(i)); err != nil {
			return err
		}
	}

	g.state = index.StateUpdated
	return nil
}

func (g *Graph) randomLevel() int {
	// 1-U lies in (0, 1], so the logarithm is finite.
	level := int(math.Floor(-math.Log(1-g.rng.Float64()) * g.ml))
	return min(level, maxLayers-1)
}

func (g *Graph) maxConnections(level int) int {
	if level == 0 {
		return g.mmax0
	}
	return g.mmax
}

// distanceTo returns the cosine distance between q (with inverse norm invQ)
// and the stored vector id.
func (g *Graph) distanceTo(q []float32, invQ float32, id uint32) (float32, error) {
	v, err := g.src.Vector(id)
	if err != nil {
		return 0, err
	}
	return distance.CosineWithNorms(q, v, invQ, g.invNorms[id]), nil
}

// insert links id into the graph. Callers hold the write lock (or own a
// graph that is not yet published).
func (g *Graph) insert(id uint32) error {
	v, err := g.src.Vector(id)
	if err != nil {
		return err
	}
	if len(v) != g.dim {
		return &index.ErrDimensionMismatch{Expected: g.dim, Actual: len(v)}
	}

	inv := distance.InverseNorm(v)
	level := g.randomLevel()

	g.invNorms = append(g.invNorms, inv)
	g.nodes = append(g.nodes, node{level: level, conns: make([][]uint32, level+1)})

	if id == 0 {
		g.entry = 0
		g.maxLevel = level
		return nil
	}

	ep := g.entry
	epDist, err := g.distanceTo(v, inv, ep)
	if err != nil {
		return err
	}

	// Find single shortest path from top layers above our current node, which will be our new starting-point
	for l := g.maxLevel; l > level; l-- {
		if ep, epDist, err = g.greedy(v, inv, ep, epDist, l); err != nil {
			return err
		}
	}

	if g.build == nil {
		g.build = newVisitSet(len(g.nodes))
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		candidates, err := g.searchLayer(v, inv, ep, epDist, g.opts.EFConstruction, l, g.build)
		if err != nil {
			return err
		}

		neighbours, err := g.selectNeighbours(id, candidates, g.mmax)
		if err != nil {
			return err
		}

		conns := make([]uint32, len(neighbours))
		for i, nb := range neighbours {
			conns[i] = nb.Node
		}
		g.nodes[id].conns[l] = conns

		// Next link the neighbour nodes to our new node, making it visible
		for _, nb := range neighbours {
			if err := g.link(nb.Node, id, nb.Distance, l); err != nil {
				return err
			}
		}

		ep, epDist = candidates[0].Node, candidates[0].Distance
	}

	if level > g.maxLevel {
		g.entry = id
		g.maxLevel = level
	}

	return nil
}

// greedy walks layer l from ep towards q until no neighbour is closer.
func (g *Graph) greedy(q []float32, invQ float32, ep uint32, epDist float32, l int) (uint32, float32, error) {
	changed := true
	for changed {
		changed = false
		for _, nb := range g.nodes[ep].conns[l] {
			d, err := g.distanceTo(q, invQ, nb)
			if err != nil {
				return 0, 0, err
			}
			if queue.Closer(d, nb, epDist, ep) {
				ep, epDist = nb, d
				changed = true
			}
		}
	}
	return ep, epDist, nil
}

// searchLayer performs a beam search of width ef on layer l and returns the
// candidates found, closest first.
func (g *Graph) searchLayer(q []float32, invQ float32, ep uint32, epDist float32, ef, l int, visited *visitSet) ([]*queue.PriorityQueueItem, error) {
	visited.next()
	visited.mark(ep)

	candidates := queue.NewMin(ef)
	candidates.PushItem(ep, epDist)

	top := queue.NewMax(ef + 1)
	top.PushItem(ep, epDist)

	for candidates.Len() > 0 {
		candidate := candidates.PopItem()
		worst := top.Top()
		if top.Len() >= ef && queue.Closer(worst.Distance, worst.Node, candidate.Distance, candidate.Node) {
			break
		}

		for _, nb := range g.nodes[candidate.Node].conns[l] {
			if !visited.mark(nb) {
				continue
			}

			d, err := g.distanceTo(q, invQ, nb)
			if err != nil {
				return nil, err
			}

			if top.Offer(nb, d, ef) {
				candidates.PushItem(nb, d)
			}
		}
	}

	return top.Sorted(), nil
}

// selectNeighbours picks up to m neighbours for base out of candidates
// (closest first). With the heuristic a candidate is skipped when it is
// closer to an already selected neighbour than to base; skipped candidates
// fill the remaining slots afterwards.
//
// Exact duplicates tie at distance 0 and order by identity, so heavily
// duplicated input concentrates links on the lowest identities. Later
// duplicates can lose every incoming layer-0 edge, and a query may then
// return fewer than k results. Recall for such input is not guaranteed.
func (g *Graph) selectNeighbours(base uint32, candidates []*queue.PriorityQueueItem, m int) ([]*queue.PriorityQueueItem, error) {
	if len(candidates) <= m || !g.opts.Heuristic {
		return candidates[:min(m, len(candidates))], nil
	}

	selected := make([]*queue.PriorityQueueItem, 0, m)
	var pruned []*queue.PriorityQueueItem

	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		if c.Node == base {
			continue
		}

		cv, err := g.src.Vector(c.Node)
		if err != nil {
			return nil, err
		}

		keep := true
		for _, s := range selected {
			d, err := g.distanceTo(cv, g.invNorms[c.Node], s.Node)
			if err != nil {
				return nil, err
			}
			if d < c.Distance {
				keep = false
				break
			}
		}

		if keep {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	for _, p := range pruned {
		if len(selected) >= m {
			break
		}
		selected = append(selected, p)
	}

	return selected, nil
}

// link adds the edge first -> second at level l and prunes first's list back
// to the layer bound when it overflows.
func (g *Graph) link(first, second uint32, dist float32, l int) error {
	nd := &g.nodes[first]
	nd.conns[l] = append(nd.conns[l], second)

	limit := g.maxConnections(l)
	if len(nd.conns[l]) <= limit {
		return nil
	}

	fv, err := g.src.Vector(first)
	if err != nil {
		return err
	}

	candidates := queue.NewMin(len(nd.conns[l]))
	for _, id := range nd.conns[l] {
		d := dist
		if id != second {
			if d, err = g.distanceTo(fv, g.invNorms[first], id); err != nil {
				return err
			}
		}
		candidates.PushItem(id, d)
	}

	selected, err := g.selectNeighbours(first, candidates.Sorted(), limit)
	if err != nil {
		return err
	}

	conns := nd.conns[l][:0]
	for _, s := range selected {
		conns = append(conns, s.Node)
	}
	nd.conns[l] = conns
	return nil
}

// Search returns up to k approximate nearest identities of q by cosine
// distance, ascending, ties by ascending identity. ef is the layer-0 beam
// width; ef <= 0 uses Options.EFSearch. The beam is never narrower than k.
func (g *Graph) Search(q []float32, k, ef int) ([]index.SearchResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.state.Queryable() {
		return nil, index.ErrIndexNotBuilt
	}
	if err := index.ValidateQuery(q, k, g.dim); err != nil {
		return nil, err
	}
	if ef <= 0 {
		ef = g.opts.EFSearch
	}
	ef = max(ef, k)

	inv := distance.InverseNorm(q)
	ep := g.entry
	epDist, err := g.distanceTo(q, inv, ep)
	if err != nil {
		return nil, err
	}

	for l := g.maxLevel; l > 0; l-- {
		if ep, epDist, err = g.greedy(q, inv, ep, epDist, l); err != nil {
			return nil, err
		}
	}

	visited := g.getVisited()
	defer g.visitedPool.Put(visited)

	items, err := g.searchLayer(q, inv, ep, epDist, ef, 0, visited)
	if err != nil {
		return nil, err
	}

	return index.FromItems(items[:min(k, len(items))]), nil
}

func (g *Graph) getVisited() *visitSet {
	if v, ok := g.visitedPool.Get().(*visitSet); ok {
		return v
	}
	return newVisitSet(len(g.nodes))
}

// Searcher returns an index.Searcher that queries with beam width ef.
func (g *Graph) Searcher(ef int) index.Searcher {
	return efSearcher{g: g, ef: ef}
}

type efSearcher struct {
	g  *Graph
	ef int
}

func (s efSearcher) Search(q []float32, k int) ([]index.SearchResult, error) {
	return s.g.Search(q, k, s.ef)
}

func (s efSearcher) State() index.State { return s.g.State() }
