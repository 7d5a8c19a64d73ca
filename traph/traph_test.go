package traph

import (
	"testing"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portNum(t *testing.T, n names.PortNo, max names.PortNo) names.PortNumber {
	t.Helper()
	pn, err := names.NewPortNumber(n, max)
	require.NoError(t, err)
	return pn
}

func TestAtMostOneParent(t *testing.T) {
	tr := New(names.NewTreeID("my_tree"), 4)
	p1 := portNum(t, 1, 4)
	p2 := portNum(t, 2, 4)

	_, err := tr.UpdateElement(p1, Parent, mask.Empty(), 0, 1)
	require.NoError(t, err)
	_, err = tr.UpdateElement(p2, Parent, mask.Empty(), 0, 2)
	require.NoError(t, err)

	e1, _ := tr.Element(1)
	e2, _ := tr.Element(2)
	assert.Equal(t, Unknown, e1.State)
	assert.Equal(t, Parent, e2.State)
}

func TestChildHopsFollowParent(t *testing.T) {
	tr := New(names.NewTreeID("my_tree"), 4)
	parentPort := portNum(t, 1, 4)
	childPort := portNum(t, 2, 4)

	_, err := tr.UpdateElement(parentPort, Parent, mask.Empty(), 3, 1)
	require.NoError(t, err)
	_, err = tr.UpdateElement(childPort, Child, mask.Empty(), 0, 0)
	require.NoError(t, err)

	child, _ := tr.Element(2)
	parent, _ := tr.Element(1)
	assert.Equal(t, parent.Hops+1, child.Hops)
	assert.Equal(t, parent.Path, child.Path)
}

func TestFindNewParentPortTieBreakLowest(t *testing.T) {
	tr := New(names.NewTreeID("my_tree"), 5)
	for _, p := range []names.PortNo{2, 3, 4} {
		pn := portNum(t, p, 5)
		_, err := tr.UpdateElement(pn, Child, mask.Empty(), 1, 1)
		require.NoError(t, err)
	}
	ptID := names.NewTreeID("my_tree").ToPortTreeID(portNum(t, 1, 5))
	got, ok := tr.FindNewParentPort(ptID, mask.Empty())
	require.True(t, ok)
	assert.Equal(t, names.PortNo(2), got.No())
}

func TestFindNewParentPortExcludesTriedAndBrokenPath(t *testing.T) {
	tr := New(names.NewTreeID("my_tree"), 5)
	for _, p := range []names.PortNo{2, 3, 4} {
		pn := portNum(t, p, 5)
		_, err := tr.UpdateElement(pn, Child, mask.Empty(), 1, 1)
		require.NoError(t, err)
	}
	ptID := names.NewTreeID("my_tree").ToPortTreeID(portNum(t, 1, 5))
	tr.AddTriedPort(ptID, portNum(t, 2, 5))
	broken := mask.New(3)
	got, ok := tr.FindNewParentPort(ptID, broken)
	require.True(t, ok)
	assert.Equal(t, names.PortNo(4), got.No())

	tr.ClearTriedPorts(ptID)
	got2, ok := tr.FindNewParentPort(ptID, broken)
	require.True(t, ok)
	assert.Equal(t, names.PortNo(2), got2.No())
}

func TestDeleteTreeOnlyRemovesStacked(t *testing.T) {
	tr := New(names.NewTreeID("my_tree"), 4)
	st := &StackedTree{PortTreeID: names.NewTreeID("app_tree").ToPortTreeID(portNum(t, 1, 4))}
	tr.StackTree(st)
	assert.True(t, tr.DeleteTree(st.PortTreeID))
	assert.False(t, tr.DeleteTree(st.PortTreeID))
}
