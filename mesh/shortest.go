package mesh

import (
	"fmt"

	"github.com/RyanCarrier/dijkstra"
)

// graph builds an undirected, unit-weight dijkstra.Graph over this
// topology's cell indices, one vertex per CellName(i).
func (t *Topology) graph() (*dijkstra.Graph, map[string]int, error) {
	g := dijkstra.NewGraph()
	index := make(map[string]int, t.NumCells)
	for i := 0; i < t.NumCells; i++ {
		index[CellName(i)] = i
		g.AddVertex(i)
	}
	for _, e := range t.Edges {
		a, ok := index[e.CellA]
		if !ok {
			return nil, nil, fmt.Errorf("mesh: edge references unknown cell %s", e.CellA)
		}
		b, ok := index[e.CellB]
		if !ok {
			return nil, nil, fmt.Errorf("mesh: edge references unknown cell %s", e.CellB)
		}
		if err := g.AddArc(a, b, 1); err != nil {
			return nil, nil, err
		}
		if err := g.AddArc(b, a, 1); err != nil {
			return nil, nil, err
		}
	}
	return g, index, nil
}

// ShortestHops returns the graph-theoretic minimum number of hops
// between two named cells in this topology, a yardstick for a repaired
// traph's hop count, which can never be below it; only this package's
// tests call it (SPEC_FULL.md's DOMAIN STACK entry for
// github.com/RyanCarrier/dijkstra) -- a sanity check the spanning-tree
// forwarding itself has no obligation to achieve, since trees route by
// tree shape, not shortest path.
func (t *Topology) ShortestHops(from, to string) (int, error) {
	g, index, err := t.graph()
	if err != nil {
		return 0, err
	}
	src, ok := index[from]
	if !ok {
		return 0, fmt.Errorf("mesh: unknown cell %s", from)
	}
	dst, ok := index[to]
	if !ok {
		return 0, fmt.Errorf("mesh: unknown cell %s", to)
	}
	if src == dst {
		return 0, nil
	}
	best, err := g.Shortest(src, dst)
	if err != nil {
		return 0, fmt.Errorf("mesh: no path from %s to %s: %w", from, to, err)
	}
	return int(best.Distance), nil
}
