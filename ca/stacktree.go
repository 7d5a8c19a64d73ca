package ca

import (
	"github.com/Arceliar/phony"

	"github.com/earthcomputing/cellfabric/gvm"
	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/routing"
	"github.com/earthcomputing/cellfabric/traph"
)

// StackTreeRequest is the application-facing trigger for beginning a
// new stack-tree handshake (spec.md §4.9.3), normally reached via
// AppStackTreeMsg but also usable directly by cmd/cell wiring.
func (ca *CellAgent) StackTreeRequest(parent names.TreeID, newTreeName string, eq gvm.Equation) error {
	var outcome error
	phony.Block(ca, func() {
		outcome = ca.beginStackTree(parent, newTreeName, eq, 0)
	})
	return outcome
}

func (ca *CellAgent) beginStackTree(parent names.TreeID, newTreeName string, eq gvm.Equation, borderSender names.PortNo) error {
	tr, ok := ca.traphFor(parent)
	if !ok {
		return errNoTraph(parent.Name)
	}
	parentElem, ok := tr.ParentElement()
	var rootPort names.PortNumber
	if ok {
		rootPort = parentElem.Port
	}
	parentPT := parent.ToPortTreeID(rootPort)

	newTree := names.NewTreeID(newTreeName)
	newPT := newTree.ToPortTreeID(rootPort)

	ca.stackProgress[newPT] = &stackTreeProgress{
		parentPortTreeID: parentPT,
		borderSender:     borderSender,
	}

	msg := StackTree{
		SenderName:       ca.id.Name,
		SenderUUID:       ca.id.UUID,
		AllowedTree:      toWireTreeID(parent),
		NewPortTreeID:    toWirePortTreeID(newPT),
		ParentPortTreeID: toWirePortTreeID(parentPT),
		GVM:              eq,
	}
	return ca.applyStackTree(0, msg)
}

// handleStackTree applies a StackTree request received from a neighbor
// through applyStackTree (which beginStackTree also calls directly),
// installing the new tree's entry and, when the equation's xtnd clause
// holds, flooding the request on every port except the arrival port and
// port 0; the parent port-tree's child mask is not consulted
// (spec.md §4.9.3).
func (ca *CellAgent) handleStackTree(fromPort names.PortNo, m StackTree) {
	_ = ca.applyStackTree(fromPort, m)
}

func (ca *CellAgent) applyStackTree(fromPort names.PortNo, m StackTree) error {
	parentPT := m.ParentPortTreeID.toPortTreeID()
	baseID := parentPT.BaseTreeID()
	tr, ok := ca.traphFor(baseID)
	if !ok {
		return errNoTraph(baseID.Name)
	}

	compiled, err := m.GVM.Compile()
	if err != nil {
		return errStackTree(err.Error())
	}
	parentElem, hasParent := tr.ParentElement()
	hops := 0
	if hasParent {
		hops = int(parentElem.Hops)
	}
	env := gvm.Env{"hops": hops, "n_children": 0}
	result, err := compiled.Eval(env)
	if err != nil {
		return errStackTree(err.Error())
	}

	newPT := m.NewPortTreeID.toPortTreeID()
	parentPort := names.PortNumber{}
	if hasParent {
		parentPort = parentElem.Port
	}
	entry := routing.NewEntry(newPT.UUID(), parentPort)
	if result.Send {
		entry = entry.EnableSend()
	}
	if result.Recv {
		entry = entry.EnableRecv()
	}

	st := &traph.StackedTree{
		PortTreeID:       newPT,
		BaseTreeID:       baseID,
		ParentPortTreeID: parentPT,
		Equation:         m.GVM,
		Compiled:         compiled,
		Entry:            entry,
	}
	tr.StackTree(st)
	ca.cm.Entry(ca, entry)

	ca.nameTreeMu.Lock()
	ca.treeNameMap[newPT.Name] = newPT.TreeID
	if progress, ok := ca.stackProgress[newPT]; ok && progress.borderSender != 0 {
		if originator, ok := ca.borderOriginators[progress.borderSender]; ok {
			if ca.nameTreeMap[originator] == nil {
				ca.nameTreeMap[originator] = make(map[string]names.TreeID)
			}
			ca.nameTreeMap[originator][newPT.Name] = newPT.TreeID
		}
	}
	ca.nameTreeMu.Unlock()

	if result.Xtnd {
		childMask := mask.All(ca.nPorts).AllBut(fromPort).AllBut(0)
		fwd := m
		fwd.NewPortTreeID = toWirePortTreeID(newPT)
		if childMask.Count() > 0 {
			ca.send(baseID.UUID(), childMask, KindStackTree, fwd)
			return nil // StackTreeD joins back up once children reply
		}
	}

	// Leaf of the xtnd frontier (or xtnd=false): reply immediately,
	// unless this cell is itself the originator (fromPort 0 -- there is
	// no neighbor to reply to, the progress record resolves directly).
	if fromPort != 0 {
		d := StackTreeD{PortTreeID: m.NewPortTreeID, Join: true}
		ca.send(baseID.UUID(), mask.New(fromPort), KindStackTreeD, d)
	} else if progress, ok := ca.stackProgress[newPT]; ok {
		progress.joined = true
	}
	return nil
}

func (ca *CellAgent) handleStackTreeD(fromPort names.PortNo, m StackTreeD) {
	newPT := m.PortTreeID.toPortTreeID()
	progress, tracked := ca.stackProgress[newPT]
	if !tracked {
		// Interior cell with no outstanding progress record: find the
		// underlying base traph this stacked tree rides on and relay
		// the join upward via its parent port.
		for baseID, tr := range ca.traphs {
			if _, owns := tr.StackedTreeByID(newPT); !owns {
				continue
			}
			parentElem, ok := tr.ParentElement()
			if !ok {
				return
			}
			ca.send(baseID.UUID(), mask.New(parentElem.Port.No()), KindStackTreeD, m)
			return
		}
		return
	}
	if !m.Join {
		return
	}
	progress.joined = true
	if progress.borderSender != 0 {
		nameMsg := AppTreeNameMsg{Name: newPT.Name, PortTreeID: toWirePortTreeID(newPT)}
		ca.send(newPT.UUID(), mask.New(progress.borderSender), KindAppTreeName, nameMsg)
	}
}
