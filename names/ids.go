package names

import (
	"fmt"

	"github.com/google/uuid"
)

// PortNo is a raw, unvalidated port number. Port 0 denotes "this cell"
// (the self-loop used as a universal child in masks).
type PortNo uint8

// PortNumber is a PortNo validated against a cell's port count.
type PortNumber struct {
	no PortNo
}

// PortNumberError reports port_no > n_ports at construction time.
type PortNumberError struct {
	Max    PortNo
	Actual PortNo
}

func (e *PortNumberError) Error() string {
	return fmt.Sprintf("port number %d exceeds max %d", e.Actual, e.Max)
}

// NewPortNumber validates no against the cell's port count nPorts
// (inclusive of port 0 as the self-loop).
func NewPortNumber(no PortNo, nPorts PortNo) (PortNumber, error) {
	if no > nPorts {
		return PortNumber{}, &PortNumberError{Max: nPorts, Actual: no}
	}
	return PortNumber{no: no}, nil
}

// No returns the validated port number.
func (p PortNumber) No() PortNo { return p.no }

func (p PortNumber) String() string { return fmt.Sprintf("port %d", p.no) }

// IsSelf reports whether this is the port-0 self-loop.
func (p PortNumber) IsSelf() bool { return p.no == 0 }

// CellID is the stable per-cell identifier: a short human name plus a
// UUID for global uniqueness.
type CellID struct {
	Name string
	UUID uuid.UUID
}

// NewCellID creates a fresh CellID with a random UUID.
func NewCellID(name string) CellID {
	return CellID{Name: name, UUID: uuid.New()}
}

func (c CellID) String() string { return c.Name }

// Equal compares CellIDs by UUID (names may collide in tests/mesh
// generation, UUIDs never do).
func (c CellID) Equal(o CellID) bool { return c.UUID == o.UUID }

// OriginatorID identifies the external application that created a tree;
// used as the permission key for a cell's name_tree_map.
type OriginatorID struct {
	Name string
	UUID uuid.UUID
}

func NewOriginatorID(name string) OriginatorID {
	return OriginatorID{Name: name, UUID: uuid.New()}
}

func (o OriginatorID) String() string { return o.Name }
func (o OriginatorID) Equal(p OriginatorID) bool { return o.UUID == p.UUID }

// TreeID names a tree: a human-readable name plus the AIT-bearing UUID
// that underlies routing lookups.
type TreeID struct {
	Name string
	id   TreeUUID
}

// NewTreeID creates a TreeID with a fresh random identity.
func NewTreeID(name string) TreeID {
	return TreeID{Name: name, id: NewTreeUUID()}
}

// TreeIDFromUUID wraps an existing identity (e.g. received over the
// wire) under the given name.
func TreeIDFromUUID(name string, id TreeUUID) TreeID {
	return TreeID{Name: name, id: id}
}

func (t TreeID) String() string { return t.Name }

// UUID returns the underlying AIT-bearing identity.
func (t TreeID) UUID() TreeUUID { return t.id }

// ForLookup returns the lookup key for the routing table: the base
// identity with the AIT byte stripped.
func (t TreeID) ForLookup() TreeUUID { return t.id.ForLookup() }

// Equal compares the base identity, ignoring AIT state/flags but not the
// root-port byte (two TreeIDs at different root ports are different
// PortTreeIDs, see ToPortTreeID).
func (t TreeID) Equal(o TreeID) bool {
	return t.id.ForLookup() == o.id.ForLookup()
}

// ToPortTreeID specializes this TreeID to a root port, yielding a
// PortTreeID.
func (t TreeID) ToPortTreeID(root PortNumber) PortTreeID {
	return PortTreeID{TreeID: TreeID{Name: t.Name, id: t.id.SetPortNumber(root.No())}}
}

// PortTreeID is a TreeID specialized to a root-port number: a tree may
// have multiple port trees, one per root port selected during discovery.
type PortTreeID struct {
	TreeID
}

// RootPort returns the root port this port-tree is rooted at.
func (p PortTreeID) RootPort() PortNo { return p.id.RootPortNo() }

// BaseTreeID projects back down to the plain TreeID (root port byte
// zeroed).
func (p PortTreeID) BaseTreeID() TreeID {
	return TreeID{Name: p.Name, id: p.id.RemovePortNo()}
}

// Equal compares PortTreeIDs including the root-port discriminant.
func (p PortTreeID) Equal(o PortTreeID) bool {
	return p.id.ForLookup() == o.id.ForLookup() && p.id[1] == o.id[1]
}
