package ca

import (
	"fmt"

	"github.com/Arceliar/phony"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
)

// DeleteTreeRequest begins an application-initiated tree deletion
// (spec.md §4.9.5): never legal for the base (my_tree) or the
// always-present Control/Connected trees.
func (ca *CellAgent) DeleteTreeRequest(tree names.TreeID) error {
	var outcome error
	phony.Block(ca, func() { outcome = ca.deleteTree(tree) })
	return outcome
}

func (ca *CellAgent) handleAppEnvelope(port names.PortNo, env *envelope) {
	switch env.Kind {
	case KindAppInterapplication:
		var m AppInterapplicationMsg
		if decodeBody(env.Body, &m) != nil {
			return
		}
		treeID := m.Tree.toTreeID()
		if err := ca.authorizeOriginatorTree(port, treeID); err != nil {
			ca.recordProtocolError(err)
			return
		}
		if !ca.maySendOnTree(treeID) {
			ca.recordProtocolError(errMayNotSend(treeID.Name))
			return
		}
		ca.cm.BytesFromCA(ca, treeID.UUID(), false, false, mask.DefaultUser(ca.nPorts), m.Payload)

	case KindAppDeleteTree:
		var m AppDeleteTreeMsg
		if decodeBody(env.Body, &m) != nil {
			return
		}
		treeID := m.Tree.toTreeID()
		if err := ca.authorizeOriginatorTree(port, treeID); err != nil {
			ca.recordProtocolError(err)
			return
		}
		if err := ca.deleteTree(treeID); err != nil {
			ca.recordProtocolError(err)
		}

	case KindAppManifest:
		var m AppManifestMsg
		_ = decodeBody(env.Body, &m)
		// VM/Container deployment is an out-of-scope external
		// collaborator (spec.md §1 Non-goals); the manifest is accepted
		// and otherwise dropped.

	case KindAppStackTree:
		var m AppStackTreeMsg
		if decodeBody(env.Body, &m) != nil {
			return
		}
		parentTree := m.ParentTree.toTreeID()
		if err := ca.authorizeOriginatorTree(port, parentTree); err != nil {
			ca.recordProtocolError(err)
			return
		}
		if err := ca.beginStackTree(parentTree, m.NewTreeName, m.GVM, port); err != nil {
			ca.recordProtocolError(err)
		}

	case KindAppQuery:
		ca.recordProtocolError(errNotImplemented("AppQuery"))

	case KindAppTreeName:
		// Illegal from the application direction: the CA only ever
		// sends this one, never receives it. Dropped.
	}
}

// authorizeOriginatorTree enforces the OriginatorID authorization map of
// spec.md §4.9.5: an app-plane request for tree must be one that
// tree's originator has actually been granted, via a prior
// AppStackTreeMsg naming it under that originator's border port. port 0
// and the always-present base/Control/Connected trees bypass the map --
// they are this cell's own operations, not an originator-scoped grant.
func (ca *CellAgent) authorizeOriginatorTree(port names.PortNo, tree names.TreeID) error {
	if port == 0 || tree.Equal(ca.myTreeID) || tree.Equal(ca.controlTreeID) || tree.Equal(ca.connectedTreeID) {
		return nil
	}
	originator, ok := ca.borderOriginators[port]
	if !ok {
		return errBorder(fmt.Sprintf("port %d is not a border port", port))
	}
	ca.nameTreeMu.Lock()
	defer ca.nameTreeMu.Unlock()
	// ca.nameTreeMap[originator] may be nil if this originator has never
	// stacked a tree; reading a nil map is safe and simply never matches.
	if id, ok := ca.nameTreeMap[originator][tree.Name]; !ok || !id.Equal(tree) {
		return errTreeNotAllowed(tree.Name)
	}
	return nil
}

// maySendOnTree reports whether this cell's locally-cached GVM decision
// permits sending on tree. The base tree and the always-present
// Control/Connected trees are always sendable; a stacked tree defers to
// the send-clause result latched in its routing entry at creation time.
func (ca *CellAgent) maySendOnTree(tree names.TreeID) bool {
	if tree.Equal(ca.myTreeID) || tree.Equal(ca.controlTreeID) || tree.Equal(ca.connectedTreeID) {
		return true
	}
	for _, tr := range ca.traphs {
		for ptID, st := range tr.AllStackedTrees() {
			if ptID.TreeID.Equal(tree) {
				return st.Entry.MaySend
			}
		}
	}
	return false
}

// deleteTree removes a stacked tree this cell originated or is relaying
// through, notifying its parent so the deletion propagates up to the
// tree's own root (spec.md §4.9.5). The base and Control/Connected trees
// can never be named here.
func (ca *CellAgent) deleteTree(tree names.TreeID) error {
	if tree.Equal(ca.myTreeID) || tree.Equal(ca.controlTreeID) || tree.Equal(ca.connectedTreeID) {
		return errMayNotDelete(tree.Name)
	}
	for baseID, tr := range ca.traphs {
		for ptID := range tr.AllStackedTrees() {
			if !ptID.TreeID.Equal(tree) {
				continue
			}
			tr.DeleteTree(ptID)
			ca.cm.Delete(ca, tree.ForLookup())
			if parentElem, ok := tr.ParentElement(); ok {
				ca.send(baseID.UUID(), mask.New(parentElem.Port.No()), KindDeleteTree, DeleteTree{
					PortTreeID: toWirePortTreeID(ptID),
				})
			}
			return nil
		}
	}
	return errNoTraph(tree.Name)
}

func (ca *CellAgent) handleDeleteTree(m DeleteTree) {
	_ = ca.deleteTree(m.PortTreeID.toPortTreeID().TreeID)
}
