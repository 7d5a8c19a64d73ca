package routing

import (
	"testing"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pn(n names.PortNo) names.PortNumber {
	p, err := names.NewPortNumber(n, 20)
	if err != nil {
		panic(err)
	}
	return p
}

func TestLookupMissFallsBackToControl(t *testing.T) {
	control := names.NewTreeUUID()
	tbl := NewTable(control)
	tbl.Upsert(NewEntry(control, pn(0)))

	unknown := names.NewTreeUUID()
	e, ok := tbl.Lookup(unknown)
	require.True(t, ok)
	assert.Equal(t, control.ForLookup(), e.TreeUUID.ForLookup())
}

func TestRerouteRewritesParentAndChildMask(t *testing.T) {
	control := names.NewTreeUUID()
	tbl := NewTable(control)

	base := names.NewTreeUUID()
	baseEntry := NewEntry(base, pn(1)).WithChildMask(mask.New(2).Or(mask.New(3)))
	tbl.Upsert(baseEntry)

	stacked := names.NewTreeUUID()
	stackedEntry := NewEntry(stacked, pn(1)).WithChildMask(mask.New(2))
	tbl.Upsert(stackedEntry)

	touched := tbl.Reroute(pn(1), pn(5))
	assert.Len(t, touched, 2)

	got, ok := tbl.Get(base)
	require.True(t, ok)
	assert.Equal(t, names.PortNo(5), got.Parent.No())

	gotStacked, ok := tbl.Get(stacked)
	require.True(t, ok)
	assert.Equal(t, names.PortNo(5), gotStacked.Parent.No())
}

func TestRerouteRewritesChildMaskContainingBrokenPort(t *testing.T) {
	control := names.NewTreeUUID()
	tbl := NewTable(control)

	base := names.NewTreeUUID()
	e := NewEntry(base, pn(1)).WithChildMask(mask.New(4).Or(mask.New(1)))
	// port 1 is parent so WithChildMask already excluded it; force it
	// back in via AddChild semantics isn't meaningful here, so construct
	// a case where port 1 is a *child* of a different entry.
	e2 := NewEntry(names.NewTreeUUID(), pn(9)).WithChildMask(mask.New(1).Or(mask.New(4)))
	tbl.Upsert(e)
	tbl.Upsert(e2)

	tbl.Reroute(pn(1), pn(7))
	got, _ := tbl.Get(e2.TreeUUID)
	assert.True(t, got.ChildMask.Has(7))
	assert.False(t, got.ChildMask.Has(1))
}
