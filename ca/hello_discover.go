package ca

import (
	"fmt"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/traph"
)

// PortConnected is the external entry point a Port driver calls once a
// link comes up (spec.md §4.9.1).
func (ca *CellAgent) PortConnected(p names.PortNo, isBorder bool) {
	ca.Act(nil, func() { ca.handlePortConnected(p, isBorder) })
}

func (ca *CellAgent) handlePortConnected(p names.PortNo, isBorder bool) {
	if isBorder {
		ca.borderPorts[p] = true
		if _, ok := ca.borderOriginators[p]; !ok {
			// Border connections carry no authenticated OriginatorID in
			// this build (spec.md §1 non-goal: no neighbor crypto), so a
			// synthetic per-cell-per-port identity stands in for it --
			// the plain map-lookup authorization spec.md §4.9.5 requires
			// doesn't depend on that identity being verifiable, only
			// stable for the lifetime of the connection.
			ca.borderOriginators[p] = names.NewOriginatorID(fmt.Sprintf("%s:border%d", ca.id.Name, p))
		}
		ca.maybeSendBaseTreeToNoc()
		return
	}

	hello := Hello{CellName: ca.id.Name, CellUUID: ca.id.UUID, Port: p}
	ca.send(ca.connectedTreeID.UUID(), mask.New(p), KindHello, hello)

	pn := ca.portNumber(p)
	myPT := ca.myTreeID.ToPortTreeID(pn)
	disc := Discover{
		PortTreeID:   toWirePortTreeID(myPT),
		CellOfOrigin: ca.id.Name,
		Hops:         0,
		Path:         p,
	}
	ca.send(ca.myTreeID.UUID(), mask.New(p), KindDiscover, disc)

	// Late-connect catch-up: replay every Discover already flooded on
	// other ports so the new neighbor learns trees it missed.
	for _, sd := range ca.savedDiscovers {
		ca.send(sd.msg.PortTreeID.toPortTreeID().BaseTreeID().UUID(), mask.New(p), KindDiscover, sd.msg)
	}
}

func (ca *CellAgent) handleHello(port names.PortNo, m Hello) {
	ca.neighbors[port] = neighborInfo{cellName: m.CellName, cellUUID: m.CellUUID, port: m.Port}
}

// handlePortDisconnected marks every traph's element at port broken and
// kicks off Failover for any base tree whose parent ran through it
// (spec.md §4.9.4).
func (ca *CellAgent) handlePortDisconnected(port names.PortNo) {
	delete(ca.neighbors, port)
	for baseID, tr := range ca.traphs {
		wasParent := false
		if e, ok := tr.Element(port); ok && e.State == traph.Parent {
			wasParent = true
		}
		tr.MarkBroken(port)
		if wasParent {
			ca.beginFailover(baseID, tr, port)
		}
	}
}

// handleDiscover implements the quench/flood/ack cycle of spec.md
// §4.9.2. QuenchSimple suppresses re-flooding once the base tree is
// known at all, via any root port; QuenchRootPort suppresses only the
// exact (tree, root-port) port-tree, allowing the same base tree to be
// learned again via a different root port.
func (ca *CellAgent) handleDiscover(fromPort names.PortNo, m Discover) {
	ptID := m.PortTreeID.toPortTreeID()
	baseID := ptID.BaseTreeID()
	tr := ca.traphForOrCreate(baseID)

	_, alreadyOwnThisPortTree := tr.OwnPortTree(ptID)
	seen := alreadyOwnThisPortTree
	if ca.quench == QuenchSimple && !seen {
		seen = tr.HasParent()
	}

	if seen {
		ack := DiscoverD{PortTreeID: m.PortTreeID, Kind: DiscoverDSubsequent}
		ca.send(baseID.UUID(), mask.New(fromPort), KindDiscoverD, ack)
		return
	}

	// Flood onward before this base tree has a routing entry of its own:
	// the lookup miss rides the Control tree's full-broadcast child mask
	// (spec.md §4.7 step 2), which is exactly the physical flood Discover
	// needs. Installing the real (still childless) entry first would
	// mask it down to nothing.
	pn := ca.portNumber(fromPort)
	forwardMask := mask.All(ca.nPorts).AllBut(fromPort).AllBut(0)
	fwd := Discover{
		PortTreeID:   m.PortTreeID,
		CellOfOrigin: m.CellOfOrigin,
		Hops:         m.Hops + 1,
		Path:         fromPort,
	}
	if forwardMask.Count() > 0 {
		ca.send(baseID.UUID(), forwardMask, KindDiscover, fwd)
	}
	ca.savedDiscovers = append(ca.savedDiscovers, savedDiscover{msg: fwd, from: fromPort})

	entry, _ := tr.UpdateElement(pn, traph.Parent, mask.Empty(), m.Hops, m.Path)
	tr.AddPortTree(&traph.PortTree{ID: ptID, Root: pn, Hops: m.Hops, Entry: entry})
	ca.cm.Entry(ca, entry)
	if entries, err := tr.SetParent(pn, ptID); err == nil {
		for _, e := range entries {
			ca.cm.Entry(ca, e)
		}
	}

	ack := DiscoverD{PortTreeID: m.PortTreeID, Kind: DiscoverDFirst}
	ca.send(baseID.UUID(), mask.New(fromPort), KindDiscoverD, ack)
}

func (ca *CellAgent) handleDiscoverD(fromPort names.PortNo, m DiscoverD) {
	baseID := m.PortTreeID.toPortTreeID().BaseTreeID()
	ca.discoverDCount[baseID]++
	if baseID.Equal(ca.myTreeID) {
		ca.maybeSendBaseTreeToNoc()
	}
}
