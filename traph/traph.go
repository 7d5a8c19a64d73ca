package traph

import (
	"fmt"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/routing"
)

// NoTraphError is raised when an operation names a base tree this cell
// has no Traph for.
type NoTraphError struct {
	TreeID names.TreeID
}

func (e *NoTraphError) Error() string { return fmt.Sprintf("no traph for tree %s", e.TreeID) }

// Traph is the per-base-tree aggregate the Cell Agent owns: one element
// per physical port, the set of port-trees discovered for this base
// tree, and any stacked trees built on top of it.
type Traph struct {
	BaseTreeID   names.TreeID
	elements     map[names.PortNo]*Element
	portTrees    map[names.PortTreeID]*PortTree
	stackedTrees map[names.PortTreeID]*StackedTree
	triedPorts   map[names.PortTreeID]map[names.PortNo]bool
	nPorts       names.PortNo
}

// New creates a Traph with one Unknown element per port 0..nPorts.
func New(baseTreeID names.TreeID, nPorts names.PortNo) *Traph {
	t := &Traph{
		BaseTreeID:   baseTreeID,
		elements:     make(map[names.PortNo]*Element),
		portTrees:    make(map[names.PortTreeID]*PortTree),
		stackedTrees: make(map[names.PortTreeID]*StackedTree),
		triedPorts:   make(map[names.PortTreeID]map[names.PortNo]bool),
		nPorts:       nPorts,
	}
	for p := names.PortNo(0); p <= nPorts; p++ {
		pn, _ := names.NewPortNumber(p, nPorts)
		t.elements[p] = newElement(pn)
	}
	return t
}

// Element returns the TraphElement for a port, if any.
func (t *Traph) Element(port names.PortNo) (*Element, bool) {
	e, ok := t.elements[port]
	return e, ok
}

// ParentElement returns the element currently in Parent state, if any.
// Invariant: at most one such element exists (spec.md §3/§8 invariant 1).
func (t *Traph) ParentElement() (*Element, bool) {
	for _, e := range t.elements {
		if e.State == Parent {
			return e, true
		}
	}
	return nil, false
}

// HasParent reports whether this base tree has already been learned via
// some root port, independent of which root port. Used by Simple quench
// (spec.md §4.9.2 step 3 / §8 S5), which suppresses re-flooding as soon
// as the base tree is known at all -- unlike RootPort quench, which only
// suppresses the exact (tree, root-port) port-tree.
func (t *Traph) HasParent() bool {
	_, ok := t.ParentElement()
	return ok
}

// UpdateElement upserts the element at port, recomputing hops/path when
// state is Child (hops := parent.hops+1, path := parent.path per
// spec.md §4.4), and returns the RoutingTableEntry the PE must install
// for this base tree's own (rootless) port-tree entry.
//
// If state is Parent, any existing Parent element on this traph is
// demoted first, preserving invariant 1 (at most one Parent per traph).
func (t *Traph) UpdateElement(port names.PortNumber, state ElementState, children mask.Mask, hops uint16, path names.PortNo) (routing.Entry, error) {
	if state == Parent {
		for p, e := range t.elements {
			if p != port.No() && e.State == Parent {
				e.State = Unknown
			}
		}
	}
	e, ok := t.elements[port.No()]
	if !ok {
		e = newElement(port)
		t.elements[port.No()] = e
	}
	e.Connected = true
	e.State = state

	if state == Child {
		if parent, ok := t.ParentElement(); ok {
			e.Hops = parent.Hops + 1
			e.Path = parent.Path
		} else {
			e.Hops = hops
			e.Path = path
		}
	} else {
		e.Hops = hops
		e.Path = path
	}

	entry := routing.NewEntry(t.BaseTreeID.UUID(), port).
		WithChildMask(children.AllBut(port.No())).
		EnableRecv()
	if state == Parent || state == Child {
		entry = entry.EnableSend()
	}
	return entry, nil
}

// OwnPortTree returns the PortTree this cell has created for the given
// port-tree id, if any.
func (t *Traph) OwnPortTree(id names.PortTreeID) (*PortTree, bool) {
	pt, ok := t.portTrees[id]
	return pt, ok
}

// AddPortTree installs a newly-created PortTree.
func (t *Traph) AddPortTree(pt *PortTree) { t.portTrees[pt.ID] = pt }

// SetParent sets the traph-wide parent port for the base tree and, if a
// PortTree exists for ptID, records it as that port-tree's root. Returns
// the set of routing entries the PE must install: the base tree's own
// entry plus every stacked tree built on top of it whose parent port
// also needs to move.
func (t *Traph) SetParent(port names.PortNumber, ptID names.PortTreeID) ([]routing.Entry, error) {
	baseEntry, err := t.UpdateElement(port, Parent, mask.Empty(), 0, port.No())
	if err != nil {
		return nil, err
	}
	if pt, ok := t.portTrees[ptID]; ok {
		pt.Root = port
		pt.Entry = pt.Entry.WithParent(port)
	}
	entries := []routing.Entry{baseEntry}
	for _, st := range t.stackedTrees {
		if st.ParentPortTreeID.Equal(ptID) {
			st.Entry = st.Entry.WithParent(port)
			entries = append(entries, st.Entry)
		}
	}
	return entries, nil
}

// AddChild adds childPort to the child mask of the port-tree ptID (and
// of every stacked tree rooted on it), returning the updated entries.
func (t *Traph) AddChild(ptID names.PortTreeID, childPort names.PortNumber) []routing.Entry {
	var entries []routing.Entry
	if pt, ok := t.portTrees[ptID]; ok {
		pt.Entry = pt.Entry.AddChild(childPort)
		entries = append(entries, pt.Entry)
	}
	for _, st := range t.stackedTrees {
		if st.ParentPortTreeID.Equal(ptID) || st.PortTreeID.Equal(ptID) {
			st.Entry = st.Entry.AddChild(childPort)
			entries = append(entries, st.Entry)
		}
	}
	if e, ok := t.elements[childPort.No()]; ok && e.State != Parent {
		e.State = Child
		e.Connected = true
	}
	return entries
}

// ChangeChild moves a child-mask bit from one port to another on the
// port-tree ptID and every stacked tree sharing it, used during failover
// repair.
func (t *Traph) ChangeChild(ptID names.PortTreeID, from, to names.PortNumber) []routing.Entry {
	var entries []routing.Entry
	if pt, ok := t.portTrees[ptID]; ok {
		pt.Entry = pt.Entry.ChangeChild(from.No(), to.No())
		entries = append(entries, pt.Entry)
	}
	for _, st := range t.stackedTrees {
		if st.ParentPortTreeID.Equal(ptID) || st.PortTreeID.Equal(ptID) {
			st.Entry = st.Entry.ChangeChild(from.No(), to.No())
			entries = append(entries, st.Entry)
		}
	}
	return entries
}

// MarkBroken demotes the element at port to Broken state and sets its
// broken flag -- used when a port's link actually fails.
func (t *Traph) MarkBroken(port names.PortNo) {
	if e, ok := t.elements[port]; ok {
		e.IsBroken = true
		e.State = Broken
	}
}

// SetBroken sets only the broken flag without touching State, used when
// this traph merely needs to remember a port is unusable for
// find-new-parent purposes while preserving the last known role for
// diagnostics.
func (t *Traph) SetBroken(port names.PortNo) {
	if e, ok := t.elements[port]; ok {
		e.IsBroken = true
	}
}

// HasBrokenParent reports whether this traph's parent element (if any)
// is broken -- the trigger condition for initiating failover.
func (t *Traph) HasBrokenParent() bool {
	for _, e := range t.elements {
		if e.State == Broken && e.Hops == 0 {
			return true
		}
	}
	if parent, ok := t.ParentElement(); ok {
		return parent.IsBroken
	}
	return false
}

// IsOneHop reports whether this cell is exactly one hop from the root of
// its base tree (its parent element has hops == 0).
func (t *Traph) IsOneHop() bool {
	if parent, ok := t.ParentElement(); ok {
		return parent.Hops == 0
	}
	return false
}

// FindNewParentPort picks a replacement parent port for ptID during
// failover: it must be connected, not broken, not already tried for this
// port-tree, and not itself a member of brokenPath. Ties break on the
// lowest port number (spec.md §9 Open Question 2).
func (t *Traph) FindNewParentPort(ptID names.PortTreeID, brokenPath mask.Mask) (names.PortNumber, bool) {
	tried := t.triedPorts[ptID]
	var candidates []names.PortNo
	for no, e := range t.elements {
		if no == 0 {
			continue
		}
		if !e.Connected || e.IsBroken {
			continue
		}
		if tried != nil && tried[no] {
			continue
		}
		if brokenPath.Has(no) {
			continue
		}
		candidates = append(candidates, no)
	}
	if len(candidates) == 0 {
		return names.PortNumber{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c < best {
			best = c
		}
	}
	pn, _ := names.NewPortNumber(best, t.nPorts)
	return pn, true
}

// AddTriedPort records that port was attempted (and rejected/failed) as
// a new parent for ptID, so FindNewParentPort never revisits it within
// the same failover episode.
func (t *Traph) AddTriedPort(ptID names.PortTreeID, port names.PortNumber) {
	m, ok := t.triedPorts[ptID]
	if !ok {
		m = make(map[names.PortNo]bool)
		t.triedPorts[ptID] = m
	}
	m[port.No()] = true
}

// ClearTriedPorts resets the tried-port set for ptID, called after a
// successful repair.
func (t *Traph) ClearTriedPorts(ptID names.PortTreeID) {
	delete(t.triedPorts, ptID)
}

// StackTree installs a new stacked tree on top of this base tree.
func (t *Traph) StackTree(st *StackedTree) {
	t.stackedTrees[st.PortTreeID] = st
}

// StackedTreeByID returns a previously installed stacked tree by id.
func (t *Traph) StackedTreeByID(id names.PortTreeID) (*StackedTree, bool) {
	st, ok := t.stackedTrees[id]
	return st, ok
}

// DeleteTree removes a stacked tree, returning false if it wasn't
// present. The base (my_tree) and control/connected trees are never
// deleted via this path -- callers must not call it for those ids
// (spec.md §4.9.5: AppDeleteTreeMsg "never the black tree").
func (t *Traph) DeleteTree(id names.PortTreeID) bool {
	if _, ok := t.stackedTrees[id]; !ok {
		return false
	}
	delete(t.stackedTrees, id)
	delete(t.triedPorts, id)
	return true
}

// AllStackedTrees returns every stacked tree built on this base tree.
func (t *Traph) AllStackedTrees() map[names.PortTreeID]*StackedTree {
	return t.stackedTrees
}
