// Package mesh generates the rectangular-grid topology spec.md §6
// describes for num_cells == 0 ("a rectangular mesh is generated from
// nrows x ncols with a fixed neighbor pattern: horizontal, vertical, and
// both diagonals"), and wraps an explicit edge_list/geometry topology in
// the same shape so cmd/cell can treat both uniformly.
package mesh

import (
	"fmt"

	"github.com/earthcomputing/cellfabric/config"
)

// CellName follows the original's CellNo(usize) naming convention.
func CellName(i int) string { return fmt.Sprintf("C%d", i) }

// Topology is a fully resolved cell fabric layout: every cell's grid
// position (for the visualizer) and every physical link between two
// named cell ports.
type Topology struct {
	NumCells int
	Geometry [][2]int
	Edges    []config.Edge
}

// portAllocator hands out the next free port number per cell, mirroring
// how the original's mesh generator and the live Hello/Discover
// handshake both treat port numbers as assigned in link-creation order
// rather than pre-planned per cell. Numbering starts at 1: port 0 is the
// reserved self-loop (names.PortNo's doc comment), never a physical link.
type portAllocator struct {
	next map[int]int
}

func newPortAllocator() *portAllocator { return &portAllocator{next: make(map[int]int)} }

func (a *portAllocator) allocate(cell int) int {
	p, ok := a.next[cell]
	if !ok {
		p = 1
	}
	a.next[cell] = p + 1
	return p
}

// Generate builds an nrows x ncols grid where every cell links to its
// right, down, down-right and down-left neighbors (spec.md §6's "fixed
// neighbor pattern"), each edge walked exactly once.
func Generate(nrows, ncols int) *Topology {
	t := &Topology{NumCells: nrows * ncols}
	ports := newPortAllocator()

	index := func(r, c int) int { return r*ncols + c }
	link := func(a, b int) {
		t.Edges = append(t.Edges, config.Edge{
			CellA: CellName(a), PortA: ports.allocate(a),
			CellB: CellName(b), PortB: ports.allocate(b),
		})
	}

	for r := 0; r < nrows; r++ {
		for c := 0; c < ncols; c++ {
			t.Geometry = append(t.Geometry, [2]int{r, c})
			self := index(r, c)
			if c+1 < ncols {
				link(self, index(r, c+1)) // horizontal
			}
			if r+1 < nrows {
				link(self, index(r+1, c)) // vertical
			}
			if r+1 < nrows && c+1 < ncols {
				link(self, index(r+1, c+1)) // down-right diagonal
			}
			if r+1 < nrows && c-1 >= 0 {
				link(self, index(r+1, c-1)) // down-left diagonal
			}
		}
	}
	return t
}

// FromConfig wraps an explicitly configured topology (num_cells > 0)
// without generating anything.
func FromConfig(cfg *config.Config) *Topology {
	return &Topology{
		NumCells: cfg.NumCells,
		Geometry: cfg.Geometry,
		Edges:    cfg.EdgeList,
	}
}
