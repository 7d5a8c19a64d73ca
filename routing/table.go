package routing

import (
	"sync"

	"github.com/earthcomputing/cellfabric/names"
)

// Table holds entries indexed by a tree's lookup UUID (AIT byte
// stripped). It is physically owned and mutated by the Packet Engine;
// the Cell Agent only ever reaches it through Upsert/Delete calls driven
// by Entry/Delete messages (spec.md §5 shared-resource policy).
type Table struct {
	mu         sync.RWMutex
	entries    map[names.TreeUUID]Entry
	controlKey names.TreeUUID
}

// NewTable creates an empty table. controlKey is the lookup key of the
// cell's Control tree, the fallback target for lookup misses so control
// traffic is never dropped (spec.md §4.3).
func NewTable(controlKey names.TreeUUID) *Table {
	return &Table{
		entries:    make(map[names.TreeUUID]Entry),
		controlKey: controlKey,
	}
}

// Upsert installs or replaces an entry, keyed by its lookup UUID.
func (t *Table) Upsert(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.TreeUUID.ForLookup()] = e
}

// Delete removes the entry for the given lookup key, if any.
func (t *Table) Delete(key names.TreeUUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key.ForLookup())
}

// Lookup returns the entry for key, falling back to the Control tree
// entry on a miss. ok is false only if even the Control tree has no
// entry yet (during cell startup).
func (t *Table) Lookup(key names.TreeUUID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[key.ForLookup()]; ok {
		return e, true
	}
	e, ok := t.entries[t.controlKey.ForLookup()]
	return e, ok
}

// SetControlKey replaces the Lookup fallback target. Used once, by
// cmd/cell, after the Cell Agent that owns this table's Packet Engine
// has generated its own Control tree identity -- a construction-order
// seam, since the Table must exist before the Packet Engine before
// Cmodel before the Cell Agent, but the real key isn't known until the
// Cell Agent has been built.
func (t *Table) SetControlKey(key names.TreeUUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.controlKey = key
}

// ControlKey returns the lookup key of the Control tree, letting callers
// tell a genuine Control-tree packet apart from one that merely fell
// back to it on a lookup miss (spec.md §4.7 step 2).
func (t *Table) ControlKey() names.TreeUUID { return t.controlKey.ForLookup() }

// Get returns the raw entry without Control-tree fallback, used by
// internal rerouting logic that must know whether a specific tree is
// actually installed.
func (t *Table) Get(key names.TreeUUID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key.ForLookup()]
	return e, ok
}

// All returns a snapshot copy of every installed entry, for reroute and
// diagnostics.
func (t *Table) All() map[names.TreeUUID]Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[names.TreeUUID]Entry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Reroute moves every entry whose parent is brokenPort to newParent, and
// rewrites every entry's child mask that contains brokenPort to use
// newParent instead. It returns the set of lookup keys that were
// modified so the caller (Packet Engine) can retransmit queued snake
// packets and know which stacked trees moved.
//
// Per spec.md §9 Open Question 3, this rewrites *every* tree's entry
// (base tree and every stacked tree alike) whose parent or child-mask
// references the broken port -- not just the base tree's entry.
// TestRerouteRewritesParentAndChildMask in table_test.go covers the
// scenario that would fail under the narrower "base tree only" reading.
func (t *Table) Reroute(brokenPort, newParent names.PortNumber) []names.TreeUUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var touched []names.TreeUUID
	for key, e := range t.entries {
		changed := false
		if e.Parent.No() == brokenPort.No() {
			e = e.WithParent(newParent)
			changed = true
		}
		if e.ChildMask.Has(brokenPort.No()) {
			e = e.ChangeChild(brokenPort.No(), newParent.No())
			changed = true
		}
		if changed {
			t.entries[key] = e
			touched = append(touched, key)
		}
	}
	return touched
}
