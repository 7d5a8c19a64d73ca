package traph

import (
	"github.com/earthcomputing/cellfabric/gvm"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/routing"
)

// PortTree is a view of a base tree rooted at a specific outgoing port,
// created on demand when the same tree is reached via a new root port
// (spec.md §3/§4.4).
type PortTree struct {
	ID    names.PortTreeID
	Root  names.PortNumber
	Hops  uint16
	Entry routing.Entry
}

// StackedTree is a tree derived from a parent tree (which may itself be
// a base tree's port-tree or another stacked tree) by a GVM equation.
// Invariant: BaseTreeID equals the base tree ID of ParentPortTreeID.
type StackedTree struct {
	PortTreeID       names.PortTreeID
	BaseTreeID       names.TreeID
	ParentPortTreeID names.PortTreeID
	Equation         gvm.Equation
	Compiled         *gvm.Compiled
	Entry            routing.Entry
}
