package ca

import (
	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/traph"
)

// beginFailover starts repair for baseID after its parent port broke
// (spec.md §4.9.4). It returns early when tr.IsOneHop() reports true,
// i.e. while the traph still holds a Parent element with hops == 0.
// handlePortDisconnected calls it only after MarkBroken has moved the
// broken parent's element to Broken, so on that path IsOneHop reports
// false and every such traph, one hop from the root or not, attempts
// FindNewParentPort.
func (ca *CellAgent) beginFailover(baseID names.TreeID, tr *traph.Traph, broken names.PortNo) {
	if tr.IsOneHop() {
		return
	}
	for ptID := range tr.AllStackedTrees() {
		ca.tryFindNewParent(baseID, tr, ptID, broken)
	}
	// The base tree's own root port-tree is rooted at port 0 in our
	// encoding; attempt it too.
	ca.tryFindNewParent(baseID, tr, baseID.ToPortTreeID(ca.portNumber(0)), broken)
}

func (ca *CellAgent) tryFindNewParent(baseID names.TreeID, tr *traph.Traph, ptID names.PortTreeID, broken names.PortNo) {
	newParent, ok := tr.FindNewParentPort(ptID, mask.New(broken))
	if !ok {
		ca.failoverBrokenPort[ptID] = broken
		ca.send(ca.controlTreeID.UUID(), mask.All(ca.nPorts), KindFailover, Failover{
			SenderName:   ca.id.Name,
			SenderUUID:   ca.id.UUID,
			RwPortTreeID: toWirePortTreeID(ptID),
			LwPortTreeID: toWirePortTreeID(ptID),
			BrokenPath:   []names.PortNo{broken},
		})
		return
	}
	tr.AddTriedPort(ptID, newParent)
	ca.failoverBrokenPort[ptID] = broken
	ca.send(baseID.UUID(), mask.New(newParent.No()), KindFailover, Failover{
		SenderName:   ca.id.Name,
		SenderUUID:   ca.id.UUID,
		RwPortTreeID: toWirePortTreeID(ptID),
		LwPortTreeID: toWirePortTreeID(ptID),
		BrokenPath:   []names.PortNo{broken},
	})
}

// handleFailover processes a Failover request received from a neighbor
// asking this cell to become (or forward toward) the new parent for
// rwPortTreeID (spec.md §4.9.4). If this cell already owns rwPortTreeID
// it repairs locally and replies; otherwise it remembers the reply path
// and recurses toward the root via its own FindNewParentPort.
func (ca *CellAgent) handleFailover(fromPort names.PortNo, m Failover) {
	rw := m.RwPortTreeID.toPortTreeID()
	baseID := rw.BaseTreeID()
	tr, ok := ca.traphFor(baseID)
	if !ok {
		ca.sendFailoverD(baseID, m.RwPortTreeID, fromPort, FailoverFailure, 0)
		return
	}

	if _, owns := tr.OwnPortTree(rw); owns {
		entries := tr.AddChild(rw, ca.portNumber(fromPort))
		for _, e := range entries {
			ca.cm.Entry(ca, e)
		}
		if len(m.BrokenPath) > 0 {
			ca.cm.Reroute(ca, ca.portNumber(m.BrokenPath[0]), ca.portNumber(fromPort))
		}
		ca.sendFailoverD(baseID, m.RwPortTreeID, fromPort, FailoverSuccess, 0)
		return
	}

	ca.failoverReplyPorts[rw] = fromPort
	broken := mask.Empty()
	for _, p := range m.BrokenPath {
		broken = broken.Set(p)
	}
	newParent, ok := tr.FindNewParentPort(rw, broken)
	if !ok {
		ca.sendFailoverD(baseID, m.RwPortTreeID, fromPort, FailoverFailure, 0)
		return
	}
	tr.AddTriedPort(rw, newParent)
	ca.send(baseID.UUID(), mask.New(newParent.No()), KindFailover, m)
}

func (ca *CellAgent) sendFailoverD(baseID names.TreeID, rw wirePortTreeID, toPort names.PortNo, result FailoverResult, nPackets int) {
	ca.send(baseID.UUID(), mask.New(toPort), KindFailoverD, FailoverD{
		RwPortTreeID: rw,
		Result:       result,
		NoPackets:    nPackets,
	})
}

// handleFailoverD closes out a Failover episode (spec.md §4.9.4): the
// leafward endpoint (the cell that first lost its parent) tells the PE
// to reroute cached traffic on success, or raises a PartitionError on
// failure; every other cell along the repair path relays the result via
// its remembered reply port, retrying FindNewParentPort on failure.
func (ca *CellAgent) handleFailoverD(fromPort names.PortNo, m FailoverD) {
	rw := m.RwPortTreeID.toPortTreeID()
	baseID := rw.BaseTreeID()
	tr, ok := ca.traphFor(baseID)
	if !ok {
		return
	}

	replyPort, isInterior := ca.failoverReplyPorts[rw]
	if !isInterior {
		if m.Result == FailoverSuccess {
			if broken, ok := ca.failoverBrokenPort[rw]; ok {
				ca.cm.Reroute(ca, ca.portNumber(broken), ca.portNumber(fromPort))
				delete(ca.failoverBrokenPort, rw)
			}
			tr.ClearTriedPorts(rw)
		} else {
			ca.partitions = append(ca.partitions, &PartitionError{Tree: baseID.Name})
		}
		return
	}

	delete(ca.failoverReplyPorts, rw)
	if m.Result == FailoverSuccess {
		tr.ClearTriedPorts(rw)
		ca.send(baseID.UUID(), mask.New(replyPort), KindFailoverD, m)
		return
	}

	newParent, ok := tr.FindNewParentPort(rw, mask.Empty())
	if !ok {
		ca.send(baseID.UUID(), mask.New(replyPort), KindFailoverD, m)
		return
	}
	tr.AddTriedPort(rw, newParent)
	ca.failoverReplyPorts[rw] = replyPort
	ca.send(baseID.UUID(), mask.New(newParent.No()), KindFailover, Failover{
		SenderName:   ca.id.Name,
		SenderUUID:   ca.id.UUID,
		RwPortTreeID: m.RwPortTreeID,
		LwPortTreeID: m.RwPortTreeID,
	})
}
