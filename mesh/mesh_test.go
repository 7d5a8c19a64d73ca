package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateProducesExpectedCellAndEdgeCounts(t *testing.T) {
	topo := Generate(3, 3)
	require.Equal(t, 9, topo.NumCells)
	require.Len(t, topo.Geometry, 9)

	// Interior cell (1,1) links right, down, down-right, down-left: 4
	// edges originate from it; corner (2,2) originates none.
	originFrom := func(cell string) int {
		n := 0
		for _, e := range topo.Edges {
			if e.CellA == cell {
				n++
			}
		}
		return n
	}
	require.Equal(t, 4, originFrom(CellName(1*3+1)))
	require.Equal(t, 0, originFrom(CellName(2*3+2)))
}

func TestShortestHopsOnGeneratedGrid(t *testing.T) {
	topo := Generate(3, 3)

	hops, err := topo.ShortestHops(CellName(0), CellName(0))
	require.NoError(t, err)
	require.Equal(t, 0, hops)

	// C0 (0,0) to C8 (2,2) is reachable via two diagonal hops.
	hops, err = topo.ShortestHops(CellName(0), CellName(8))
	require.NoError(t, err)
	require.Equal(t, 2, hops)
}

func TestShortestHopsUnknownCellErrors(t *testing.T) {
	topo := Generate(2, 2)
	_, err := topo.ShortestHops("C0", "C99")
	require.Error(t, err)
}
