// Package pe implements the Packet Engine: the per-cell routing table
// owner and forwarding loop. It is the single writer of its routing
// table and snake cache, structured as a phony.Inbox actor, the same
// shape the teacher gives its `state` actor (router/router.go,
// router/state_snek.go).
package pe

import (
	"github.com/Arceliar/phony"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	"github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/routing"
)

// PortSender is the narrow capability the Packet Engine needs from a
// Port: enqueue a packet for transmission, observing that port's own
// backpressure.
type PortSender interface {
	Send(p packet.Packet) bool
}

// CmodelSink receives the Packet Engine's outputs bound for Cmodel:
// reassembled-bound packets arriving from a port, link status changes,
// and snake-cache deliveries (spec.md §4.7 "Outputs ... to Cmodel").
type CmodelSink interface {
	DeliverFromPort(p names.PortNo, pkt packet.Packet)
	ReportStatus(p names.PortNo, isBorder bool, status port.Status)
	DeliverSnake(p names.PortNo, count int, pkt packet.Packet)
}

type snakeEntry struct {
	treeUUID names.TreeUUID
	seqNo    uint16
	payload  []byte
	pkt      packet.Packet
}

// Engine is the Packet Engine actor.
type Engine struct {
	*phony.Inbox

	table  *routing.Table
	nPorts names.PortNo
	ports  map[names.PortNo]PortSender
	cm     CmodelSink

	snakeCache map[names.PortNo][]snakeEntry
	dropped    uint64

	tunnels   map[names.PortNo]string
	tunnelsUp map[names.PortNo]bool
}

// New creates a Packet Engine bound to table and ready to drive ports
// once they're attached via AttachPort.
func New(table *routing.Table, nPorts names.PortNo, cm CmodelSink) *Engine {
	return &Engine{
		Inbox:      new(phony.Inbox),
		table:      table,
		nPorts:     nPorts,
		ports:      make(map[names.PortNo]PortSender),
		cm:         cm,
		snakeCache: make(map[names.PortNo][]snakeEntry),
	}
}

// SetCmodelSink completes cyclic construction (the Packet Engine and
// Cmodel each hold a reference to the other, the same seam
// cmodel.Bridge.SetCA closes on the other side).
func (e *Engine) SetCmodelSink(from phony.Actor, cm CmodelSink) {
	e.Act(from, func() { e.cm = cm })
}

// AttachPort registers the sender for a physical port number. Must only
// be called before the engine is handed live traffic (startup wiring),
// or from within the actor via Act if done concurrently with traffic.
func (e *Engine) AttachPort(from phony.Actor, no names.PortNo, sender PortSender) {
	e.Act(from, func() { e.ports[no] = sender })
}

// Entry installs or replaces a routing-table entry, driven by the Cell
// Agent via Cmodel (spec.md §4.7 "From Cmodel: Entry(e)").
func (e *Engine) Entry(from phony.Actor, entry routing.Entry) {
	e.Act(from, func() { e.table.Upsert(entry) })
}

// Delete removes a routing-table entry by lookup key.
func (e *Engine) Delete(from phony.Actor, key names.TreeUUID) {
	e.Act(from, func() { e.table.Delete(key) })
}

// Reroute moves every entry whose parent is broken to newParent,
// rewrites child masks accordingly, and retransmits any cached snake
// packets queued against the broken port onto newParent.
func (e *Engine) Reroute(from phony.Actor, broken, newParent names.PortNumber) {
	e.Act(from, func() {
		e.table.Reroute(broken, newParent)
		cached := e.snakeCache[broken.No()]
		delete(e.snakeCache, broken.No())
		sender, ok := e.ports[newParent.No()]
		if !ok {
			return
		}
		for _, c := range cached {
			sender.Send(c.pkt)
		}
	})
}

// PacketFromCmodel handles a CA-originated packet arriving with an
// explicit user mask (spec.md §4.7 "From Cmodel: ... Packet(mask,
// pkt)"); the local cell is the logical inbound port (0, the
// self-loop), so no reflection trimming or echo-back applies.
func (e *Engine) PacketFromCmodel(from phony.Actor, userMask mask.Mask, pkt packet.Packet) {
	e.Act(from, func() { e.forward(0, pkt, userMask) })
}

// PacketFromPort handles a packet that arrived on physical port p from a
// neighbor cell (spec.md §4.7 "From Ports: Packet(port, pkt)").
func (e *Engine) PacketFromPort(from phony.Actor, p names.PortNo, pkt packet.Packet) {
	e.Act(from, func() { e.forward(p, pkt, mask.All(e.nPorts)) })
}

// Status forwards a port's status change to Cmodel verbatim.
func (e *Engine) Status(from phony.Actor, p names.PortNo, isBorder bool, status port.Status) {
	e.Act(from, func() {
		if e.cm != nil {
			e.cm.ReportStatus(p, isBorder, status)
		}
	})
}

// Dropped reports the cumulative drop count (may-not-send misses and
// per-port backpressure rejections), for diagnostics/tests.
func (e *Engine) Dropped() uint64 {
	var n uint64
	phony.Block(e, func() { n = e.dropped })
	return n
}

// forward runs the step 1-5 algorithm of spec.md §4.7 plus the AIT
// bit-exact state transitions. Must only be called from inside the
// actor.
func (e *Engine) forward(inPort names.PortNo, pkt packet.Packet, userMask mask.Mask) {
	lookupKey := pkt.TreeUUID.ForLookup()
	entry, ok := e.table.Lookup(lookupKey)
	if !ok {
		e.dropped++
		return
	}
	isControl := entry.TreeUUID.ForLookup() == e.table.ControlKey()
	if !entry.MaySend && !isControl {
		e.dropped++
		return
	}

	switch pkt.TreeUUID.AITState() {
	case names.Tick:
		// Terminal sink: the tick completes delivery at this cell.
		return
	case names.AitD:
		// Route back along the incoming path to the AIT originator,
		// i.e. rootward via this tree's current parent port.
		e.sendTo(entry.Parent.No(), pkt)
		return
	}

	outPkt, echoBack, requeue := e.advanceAIT(pkt)
	if echoBack {
		e.sendTo(inPort, outPkt)
		if !requeue {
			return
		}
	}

	outSet := entry.ChildMask.And(userMask)
	if outSet.Has(inPort) && entry.Parent.No() != inPort {
		outSet = outSet.Clear(inPort)
	}
	for _, p := range outSet.PortNos() {
		sender, ok := e.ports[p]
		if !ok || !sender.Send(outPkt) {
			e.dropped++
			continue
		}
		if outPkt.TreeUUID.IsSnake() {
			e.snakeCache[p] = append(e.snakeCache[p], snakeEntry{
				treeUUID: outPkt.TreeUUID,
				seqNo:    outPkt.SequenceNo,
				payload:  outPkt.Payload,
				pkt:      outPkt,
			})
		}
	}
}

// advanceAIT applies the per-packet AIT state transition and reports
// whether the advanced packet must be echoed back on the inbound port
// and, if so, whether forwarding onward should also proceed (Tock only).
func (e *Engine) advanceAIT(pkt packet.Packet) (out packet.Packet, echoBack, requeue bool) {
	out = pkt
	switch pkt.TreeUUID.AITState() {
	case names.Normal, names.Entl:
		return out, false, false
	case names.Ait:
		if next, err := pkt.TreeUUID.Next(); err == nil {
			out.TreeUUID = next
		}
		return out, false, false
	case names.Teck, names.Tack:
		if next, err := pkt.TreeUUID.Next(); err == nil {
			out.TreeUUID = next
		}
		return out, true, false
	case names.Tock:
		if next, err := pkt.TreeUUID.Next(); err == nil {
			out.TreeUUID = next
		}
		return out, true, true
	default:
		return out, false, false
	}
}

func (e *Engine) sendTo(p names.PortNo, pkt packet.Packet) {
	sender, ok := e.ports[p]
	if !ok || !sender.Send(pkt) {
		e.dropped++
	}
}

// TunnelPort records a VM/Container tunnel-port binding forwarded
// verbatim from Cmodel. The VM/Container "Noc" application skeleton
// itself is an out-of-scope external collaborator (spec.md §1
// Non-goals); the Packet Engine only remembers the binding for
// diagnostics, it never acts on it.
func (e *Engine) TunnelPort(from phony.Actor, p names.PortNo, vmID string) {
	e.Act(from, func() {
		if e.tunnels == nil {
			e.tunnels = make(map[names.PortNo]string)
		}
		e.tunnels[p] = vmID
	})
}

// TunnelUp records that a previously bound tunnel port has come up.
func (e *Engine) TunnelUp(from phony.Actor, p names.PortNo) {
	e.Act(from, func() {
		if e.tunnelsUp == nil {
			e.tunnelsUp = make(map[names.PortNo]bool)
		}
		e.tunnelsUp[p] = true
	})
}

// DeliverFromPort is called by a Port's reader pump (outside the actor)
// to hand an inbound packet to the engine for forwarding; every inbound
// packet is also handed to Cmodel, whatever its routing entry says.
// Mirrors spec.md §4.7's "Packet(port, pkt)" inbound path.
func (e *Engine) DeliverFromPort(from phony.Actor, p names.PortNo, pkt packet.Packet) {
	e.Act(from, func() {
		e.forward(p, pkt, mask.All(e.nPorts))
		if e.cm != nil {
			e.cm.DeliverFromPort(p, pkt)
		}
	})
}

// SnakeD clears any cached snake entries for (port) once the peer
// confirms delivery, per spec.md §4.7 step 5, decrementing the
// outstanding snake counter reported to Cmodel.
func (e *Engine) SnakeD(from phony.Actor, p names.PortNo, pkt packet.Packet) {
	e.Act(from, func() {
		cached := e.snakeCache[p]
		kept := cached[:0]
		for _, c := range cached {
			if c.treeUUID.ForLookup() == pkt.TreeUUID.ForLookup() && c.seqNo == pkt.SequenceNo {
				continue
			}
			kept = append(kept, c)
		}
		e.snakeCache[p] = kept
		if e.cm != nil {
			e.cm.DeliverSnake(p, len(kept), pkt)
		}
	})
}
