// Package cmodel implements the bidirectional serialize/assemble bridge
// between the Cell Agent and the Packet Engine: CA-originated byte
// messages are packetized and handed to PE; PE-originated packets are
// reassembled and handed back to CA as typed byte messages. Structured
// as a phony.Inbox actor, matching the teacher's `state` actor shape
// (router/router.go). Calls from the CA side and from the PE side are
// queued on that one phony inbox and run in arrival order; there is no
// select and no priority between the two directions.
package cmodel

import (
	"go.uber.org/atomic"

	"github.com/Arceliar/phony"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/routing"
)

// PEPort is the narrow capability set Cmodel needs from the Packet
// Engine.
type PEPort interface {
	Entry(from phony.Actor, e routing.Entry)
	Delete(from phony.Actor, key names.TreeUUID)
	PacketFromCmodel(from phony.Actor, userMask mask.Mask, pkt packet.Packet)
	Reroute(from phony.Actor, broken, newParent names.PortNumber)
	Status(from phony.Actor, p names.PortNo, isBorder bool, status portpkg.Status)
	TunnelPort(from phony.Actor, p names.PortNo, vmID string)
	TunnelUp(from phony.Actor, p names.PortNo)
}

// CASink is the narrow capability set Cmodel needs from the Cell Agent:
// delivery of a reassembled application/control message and of a
// verbatim-forwarded port status change.
type CASink interface {
	DeliverBytes(port names.PortNo, isAit bool, uuid names.TreeUUID, bytes []byte)
	DeliverStatus(port names.PortNo, isBorder bool, status portpkg.Status)
}

// Bridge is the Cmodel actor.
type Bridge struct {
	*phony.Inbox

	pe PEPort
	ca CASink

	nextMsgID  atomic.Uint64
	assemblers map[uint64]*packet.Assembler
}

// New creates a Bridge wired to pe and ca. ca may be nil until the Cell
// Agent finishes its own construction (cyclic wiring), and set later via
// SetCA.
func New(pe PEPort, ca CASink) *Bridge {
	return &Bridge{
		Inbox:      new(phony.Inbox),
		pe:         pe,
		ca:         ca,
		assemblers: make(map[uint64]*packet.Assembler),
	}
}

// SetCA completes cyclic construction (Cmodel and CellAgent each hold a
// reference to the other).
func (b *Bridge) SetCA(from phony.Actor, ca CASink) {
	b.Act(from, func() { b.ca = ca })
}

// BytesFromCA is the CA→PE path: set the uuid's AIT/Snake bits, packetize
// the payload, and forward each fragment to PE (spec.md §4.8).
func (b *Bridge) BytesFromCA(from phony.Actor, treeUUID names.TreeUUID, isAit, isSnake bool, userMask mask.Mask, payload []byte) {
	b.Act(from, func() {
		u := treeUUID
		if isAit {
			u = u.MakeAitSend()
		}
		if isSnake {
			u = u.MakeSnake(false)
		}
		msgID := b.nextMsgID.Inc()
		pkts, err := packet.Packetize(u, msgID, payload)
		if err != nil {
			return
		}
		for _, p := range pkts {
			b.pe.PacketFromCmodel(b, userMask, p)
		}
	})
}

// Entry forwards a routing-table upsert verbatim to PE.
func (b *Bridge) Entry(from phony.Actor, e routing.Entry) {
	b.Act(from, func() { b.pe.Entry(b, e) })
}

// Delete forwards a routing-table delete verbatim to PE.
func (b *Bridge) Delete(from phony.Actor, key names.TreeUUID) {
	b.Act(from, func() { b.pe.Delete(b, key) })
}

// Reroute forwards a reroute instruction verbatim to PE.
func (b *Bridge) Reroute(from phony.Actor, broken, newParent names.PortNumber) {
	b.Act(from, func() { b.pe.Reroute(b, broken, newParent) })
}

// StatusToPE forwards a CA-observed status change verbatim to PE.
func (b *Bridge) StatusToPE(from phony.Actor, p names.PortNo, isBorder bool, status portpkg.Status) {
	b.Act(from, func() { b.pe.Status(b, p, isBorder, status) })
}

// TunnelPort forwards a VM/Container tunnel-port binding verbatim to PE.
// The VM/Container application skeleton itself is an out-of-scope
// external collaborator (spec.md §1 Non-goals); Cmodel neither
// interprets nor blocks on it.
func (b *Bridge) TunnelPort(from phony.Actor, p names.PortNo, vmID string) {
	b.Act(from, func() { b.pe.TunnelPort(b, p, vmID) })
}

// TunnelUp forwards a tunnel-up notification verbatim to PE.
func (b *Bridge) TunnelUp(from phony.Actor, p names.PortNo) {
	b.Act(from, func() { b.pe.TunnelUp(b, p) })
}

// PacketFromPE is the PE→CA path: assemble packets per unique-msg-id; on
// completion, hand the reassembled payload to CA as Bytes(port, is_ait,
// uuid, bytes) (spec.md §4.8).
func (b *Bridge) PacketFromPE(from phony.Actor, p names.PortNo, pkt packet.Packet) {
	b.Act(from, func() {
		asm, ok := b.assemblers[pkt.UniqueMsgID]
		if !ok {
			asm = packet.NewAssembler(pkt.UniqueMsgID)
			b.assemblers[pkt.UniqueMsgID] = asm
		}
		done, all, err := asm.Add(pkt)
		if err != nil {
			delete(b.assemblers, pkt.UniqueMsgID)
			return
		}
		if !done {
			return
		}
		delete(b.assemblers, pkt.UniqueMsgID)
		payload, err := packet.Unpacketize(all)
		if err != nil {
			return
		}
		isAit := pkt.TreeUUID.AITState().IsAitBearing()
		if b.ca != nil {
			b.ca.DeliverBytes(p, isAit, pkt.TreeUUID, payload)
		}
	})
}

// StatusFromPE forwards a PE-observed port status verbatim to CA.
func (b *Bridge) StatusFromPE(from phony.Actor, p names.PortNo, isBorder bool, status portpkg.Status) {
	b.Act(from, func() {
		if b.ca != nil {
			b.ca.DeliverStatus(p, isBorder, status)
		}
	})
}

// DeliverFromPort, ReportStatus and DeliverSnake satisfy
// pe.CmodelSink -- PE calls these from inside its own Act closure with
// no actor identity of its own to hand Bridge, so they dispatch onto
// Bridge's actor with from=nil rather than requiring the caller to
// supply one (mirroring DeliverFromPort/StatusFromPE's pattern).
func (b *Bridge) DeliverFromPort(p names.PortNo, pkt packet.Packet) {
	b.PacketFromPE(nil, p, pkt)
}

func (b *Bridge) ReportStatus(p names.PortNo, isBorder bool, status portpkg.Status) {
	b.StatusFromPE(nil, p, isBorder, status)
}

// DeliverSnake receives a Snake-tree acknowledgement's remaining cache
// count (spec.md §4.7 step 5) and discards it. No CASink method yet consumes this --
// the Cell Agent's failover repair (ca.handleFailoverD) only needs
// PE's Reroute/Status path, not a push notification of the decrementing
// count -- so this is a deliberate no-op rather than an invented CA
// callback; DESIGN.md records the gap.
func (b *Bridge) DeliverSnake(p names.PortNo, count int, pkt packet.Packet) {}
