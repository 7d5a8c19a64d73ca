// Package routing implements the per-cell routing table: one entry per
// tree (keyed by the tree's lookup UUID), owned physically by the Packet
// Engine and mutated only by CA-originated Entry/Delete messages.
package routing

import (
	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
)

// Entry is the forwarding state for one tree. Invariant: Parent is a
// member of the cell's ports or is the port-0 self-loop; ChildMask is a
// subset of the cell's ports; if MaySend is false, outgoing application
// lookups on this tree must drop.
type Entry struct {
	TreeUUID  names.TreeUUID
	InUse     bool
	Parent    names.PortNumber
	ChildMask mask.Mask
	MaySend   bool
	MayRecv   bool
}

// NewEntry builds an entry with no children and send/recv both disabled;
// callers enable them per the tree's GVM evaluation.
func NewEntry(treeUUID names.TreeUUID, parent names.PortNumber) Entry {
	return Entry{
		TreeUUID: treeUUID,
		InUse:    true,
		Parent:   parent,
	}
}

// WithChildMask returns a copy with ChildMask replaced, enforcing the
// invariant that the parent port is never also a child.
func (e Entry) WithChildMask(m mask.Mask) Entry {
	e.ChildMask = m.AllBut(e.Parent.No())
	return e
}

// AddChild returns a copy with the given port added to the child mask
// (never the parent port — spec.md invariant 3).
func (e Entry) AddChild(p names.PortNumber) Entry {
	if p.No() == e.Parent.No() {
		return e
	}
	e.ChildMask = e.ChildMask.Set(p.No())
	return e
}

// RemoveChild returns a copy with the given port cleared from the child
// mask.
func (e Entry) RemoveChild(p names.PortNo) Entry {
	e.ChildMask = e.ChildMask.Clear(p)
	return e
}

// ChangeChild moves a child-mask bit from one port to another, used by
// Traph.ChangeChild during failover repair.
func (e Entry) ChangeChild(from, to names.PortNo) Entry {
	e.ChildMask = e.ChildMask.Clear(from).Set(to)
	if to == e.Parent.No() {
		e.ChildMask = e.ChildMask.Clear(to)
	}
	return e
}

// WithParent returns a copy with a new parent port, clearing that port
// from the child mask if present (invariant 3).
func (e Entry) WithParent(p names.PortNumber) Entry {
	e.Parent = p
	e.ChildMask = e.ChildMask.AllBut(p.No())
	return e
}

// EnableSend / DisableSend / EnableRecv / DisableRecv / ClearChildren
// correspond to the GVM-driven entry edits spec.md §4.9.3 performs when
// stacking a tree: clear_children if !xtnd, enable/disable_send by send,
// enable/disable_receive by recv.
func (e Entry) EnableSend() Entry  { e.MaySend = true; return e }
func (e Entry) DisableSend() Entry { e.MaySend = false; return e }
func (e Entry) EnableRecv() Entry  { e.MayRecv = true; return e }
func (e Entry) DisableRecv() Entry { e.MayRecv = false; return e }
func (e Entry) ClearChildren() Entry {
	e.ChildMask = mask.Empty()
	return e
}
