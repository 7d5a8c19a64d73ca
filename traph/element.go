// Package traph implements the per-base-tree topology aggregate a Cell
// Agent owns: TraphElement (one per port), PortTree (a tree view rooted
// at a specific outgoing port), and StackedTree (a GVM-derived tree built
// on top of a base tree). All mutation here is single-writer: only the
// Cell Agent actor ever calls these methods (spec.md §5).
package traph

import (
	"fmt"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
)

// ElementState is a TraphElement's role with respect to its base tree's
// shortest-path spanning structure.
type ElementState int

const (
	Unknown ElementState = iota
	Parent
	Child
	Pruned
	Broken
)

func (s ElementState) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Parent:
		return "Parent"
	case Child:
		return "Child"
	case Pruned:
		return "Pruned"
	case Broken:
		return "Broken"
	default:
		return fmt.Sprintf("ElementState(%d)", int(s))
	}
}

// Element is one TraphElement: the knowledge this cell has of one of its
// ports with respect to one base tree.
type Element struct {
	Port      names.PortNumber
	Connected bool
	IsBroken  bool
	State     ElementState
	Hops      uint16
	Path      names.PortNo // root port on which the shortest known path leaves this cell
}

func newElement(port names.PortNumber) *Element {
	return &Element{Port: port, State: Unknown}
}

// Mask returns the single-port mask for this element's port, a
// convenience used when assembling child masks.
func (e *Element) Mask() mask.Mask { return mask.New(e.Port.No()) }
