package cmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Arceliar/phony"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/routing"
)

type fakePE struct {
	mu           chan struct{}
	gotPackets   []packet.Packet
	gotEntries   []routing.Entry
	gotDeletes   []names.TreeUUID
	gotReroutes  [][2]names.PortNumber
	gotStatus    int
	gotTunnel    []string
	gotTunnelUps int
}

func newFakePE() *fakePE { return &fakePE{mu: make(chan struct{}, 1)} }

func (f *fakePE) Entry(from phony.Actor, e routing.Entry) { f.gotEntries = append(f.gotEntries, e) }
func (f *fakePE) Delete(from phony.Actor, key names.TreeUUID) {
	f.gotDeletes = append(f.gotDeletes, key)
}
func (f *fakePE) PacketFromCmodel(from phony.Actor, userMask mask.Mask, pkt packet.Packet) {
	f.gotPackets = append(f.gotPackets, pkt)
}
func (f *fakePE) Reroute(from phony.Actor, broken, newParent names.PortNumber) {
	f.gotReroutes = append(f.gotReroutes, [2]names.PortNumber{broken, newParent})
}
func (f *fakePE) Status(from phony.Actor, p names.PortNo, isBorder bool, status portpkg.Status) {
	f.gotStatus++
}
func (f *fakePE) TunnelPort(from phony.Actor, p names.PortNo, vmID string) {
	f.gotTunnel = append(f.gotTunnel, vmID)
}
func (f *fakePE) TunnelUp(from phony.Actor, p names.PortNo) { f.gotTunnelUps++ }

type fakeCA struct {
	delivered []struct {
		port  names.PortNo
		isAit bool
		uuid  names.TreeUUID
		bytes []byte
	}
	statusCount int
}

func (f *fakeCA) DeliverBytes(port names.PortNo, isAit bool, uuid names.TreeUUID, bytes []byte) {
	f.delivered = append(f.delivered, struct {
		port  names.PortNo
		isAit bool
		uuid  names.TreeUUID
		bytes []byte
	}{port, isAit, uuid, bytes})
}
func (f *fakeCA) DeliverStatus(port names.PortNo, isBorder bool, status portpkg.Status) {
	f.statusCount++
}

func settle() { time.Sleep(20 * time.Millisecond) }

func TestBytesFromCAPacketizesAndForwards(t *testing.T) {
	pe := newFakePE()
	b := New(pe, nil)
	treeID := names.NewTreeID("my_tree")

	payload := make([]byte, 500)
	b.BytesFromCA(nil, treeID.UUID(), false, false, mask.All(4), payload)
	settle()
	phony.Block(b, func() {})

	require.Len(t, pe.gotPackets, 3) // ceil(500/216) = 3
}

func TestPacketFromPEReassemblesAndDelivers(t *testing.T) {
	pe := newFakePE()
	ca := &fakeCA{}
	b := New(pe, ca)
	treeID := names.NewTreeID("my_tree")

	data := []byte("hello world, this is a reassembly test")
	pkts, err := packet.Packetize(treeID.UUID(), 7, data)
	require.NoError(t, err)

	for _, p := range pkts {
		b.PacketFromPE(nil, 1, p)
	}
	settle()
	phony.Block(b, func() {})

	require.Len(t, ca.delivered, 1)
	assert.Equal(t, data, ca.delivered[0].bytes)
	assert.False(t, ca.delivered[0].isAit)
}

func TestEntryDeleteRerouteForwardVerbatim(t *testing.T) {
	pe := newFakePE()
	b := New(pe, nil)
	treeID := names.NewTreeID("my_tree")
	parent, err := names.NewPortNumber(1, 4)
	require.NoError(t, err)
	entry := routing.NewEntry(treeID.UUID(), parent)

	b.Entry(nil, entry)
	b.Delete(nil, treeID.ForLookup())
	newParent, err := names.NewPortNumber(2, 4)
	require.NoError(t, err)
	b.Reroute(nil, parent, newParent)
	settle()
	phony.Block(b, func() {})

	assert.Len(t, pe.gotEntries, 1)
	assert.Len(t, pe.gotDeletes, 1)
	assert.Len(t, pe.gotReroutes, 1)
}

func TestTunnelPortAndUpForwardVerbatim(t *testing.T) {
	pe := newFakePE()
	b := New(pe, nil)
	b.TunnelPort(nil, 3, "vm-1")
	b.TunnelUp(nil, 3)
	settle()
	phony.Block(b, func() {})

	assert.Equal(t, []string{"vm-1"}, pe.gotTunnel)
	assert.Equal(t, 1, pe.gotTunnelUps)
}
