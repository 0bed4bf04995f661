package hnsw

import (
	"gonum.org/v1/gonum/stat"
)

// LayerStats describes the out-degree distribution of one layer.
type LayerStats struct {
	Level     int
	Nodes     int
	Edges     int
	MeanDeg   float64
	StdDevDeg float64
	MaxDeg    int
}

// Stats summarizes the graph shape.
type Stats struct {
	Count    int
	Capacity int
	MaxLevel int
	Entry    uint32
	Layers   []LayerStats
}

// Stats returns per-layer degree statistics.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		Count:    len(g.nodes),
		Capacity: g.capacity,
		MaxLevel: g.maxLevel,
		Entry:    g.entry,
	}
	if len(g.nodes) == 0 {
		return s
	}

	degrees := make([][]float64, g.maxLevel+1)
	for i := range g.nodes {
		for l, conns := range g.nodes[i].conns {
			degrees[l] = append(degrees[l], float64(len(conns)))
		}
	}

	s.Layers = make([]LayerStats, len(degrees))
	for l, deg := range degrees {
		ls := LayerStats{Level: l, Nodes: len(deg)}
		for _, d := range deg {
			ls.Edges += int(d)
			ls.MaxDeg = max(ls.MaxDeg, int(d))
		}
		if len(deg) > 1 {
			ls.MeanDeg, ls.StdDevDeg = stat.MeanStdDev(deg, nil)
		} else if len(deg) == 1 {
			ls.MeanDeg = deg[0]
		}
		s.Layers[l] = ls
	}

	return s
}
