package pe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/routing"
)

type fakeSender struct {
	mu  sync.Mutex
	got []packet.Packet
}

func (f *fakeSender) Send(p packet.Packet) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
	return true
}

func (f *fakeSender) packets() []packet.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]packet.Packet, len(f.got))
	copy(out, f.got)
	return out
}

type fakeCmodel struct {
	mu       sync.Mutex
	fromPort []packet.Packet
}

func (f *fakeCmodel) DeliverFromPort(p names.PortNo, pkt packet.Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromPort = append(f.fromPort, pkt)
}
func (f *fakeCmodel) ReportStatus(names.PortNo, bool, portpkg.Status)     {}
func (f *fakeCmodel) DeliverSnake(names.PortNo, int, packet.Packet)      {}

func pn(t *testing.T, n names.PortNo, max names.PortNo) names.PortNumber {
	t.Helper()
	p, err := names.NewPortNumber(n, max)
	require.NoError(t, err)
	return p
}

func settle() { time.Sleep(20 * time.Millisecond) }

func TestForwardFansOutToChildMaskMinusInboundPort(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())

	treeID := names.NewTreeID("my_tree")
	parent := pn(t, 1, 4)
	entry := routing.NewEntry(treeID.UUID(), parent).
		WithChildMask(mask.Make([]names.PortNo{2, 3})).
		EnableSend().EnableRecv()
	table.Upsert(entry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s2, s3 := &fakeSender{}, &fakeSender{}
	e.AttachPort(nil, 2, s2)
	e.AttachPort(nil, 3, s3)

	pkt := packet.Packet{TreeUUID: treeID.UUID(), UniqueMsgID: 1, Count: 1, IsLast: true, Payload: []byte("x")}
	e.PacketFromPort(nil, 1, pkt)
	settle()

	assert.Len(t, s2.packets(), 1)
	assert.Len(t, s3.packets(), 1)
}

func TestForwardDropsWhenMaySendFalseAndNotControl(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())
	treeID := names.NewTreeID("my_tree")
	parent := pn(t, 1, 4)
	entry := routing.NewEntry(treeID.UUID(), parent).WithChildMask(mask.Make([]names.PortNo{2}))
	table.Upsert(entry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s2 := &fakeSender{}
	e.AttachPort(nil, 2, s2)

	pkt := packet.Packet{TreeUUID: treeID.UUID(), Count: 1, IsLast: true}
	e.PacketFromPort(nil, 1, pkt)
	settle()

	assert.Empty(t, s2.packets())
	assert.Equal(t, uint64(1), e.Dropped())
}

func TestLookupMissFallsBackToControlAndMaySends(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())
	controlEntry := routing.NewEntry(controlID.UUID(), pn(t, 0, 4)).
		WithChildMask(mask.Make([]names.PortNo{1, 2})).EnableSend()
	table.Upsert(controlEntry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s1, s2 := &fakeSender{}, &fakeSender{}
	e.AttachPort(nil, 1, s1)
	e.AttachPort(nil, 2, s2)

	unknown := names.NewTreeID("never_installed")
	pkt := packet.Packet{TreeUUID: unknown.UUID(), Count: 1, IsLast: true}
	e.PacketFromPort(nil, 3, pkt)
	settle()

	assert.Len(t, s1.packets(), 1)
	assert.Len(t, s2.packets(), 1)
}

func TestAitTeckEchoesBackWithoutForwarding(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())
	treeID := names.NewTreeID("my_tree")
	parent := pn(t, 1, 4)
	entry := routing.NewEntry(treeID.UUID(), parent).
		WithChildMask(mask.Make([]names.PortNo{2})).EnableSend()
	table.Upsert(entry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s1, s2 := &fakeSender{}, &fakeSender{}
	e.AttachPort(nil, 1, s1)
	e.AttachPort(nil, 2, s2)

	teck := treeID.UUID().MakeAitSend()
	teck, err := teck.Next() // Ait -> Teck
	require.NoError(t, err)
	pkt := packet.Packet{TreeUUID: teck, Count: 1, IsLast: true}
	e.PacketFromPort(nil, 1, pkt)
	settle()

	require.Len(t, s1.packets(), 1)
	assert.Equal(t, names.Tack, s1.packets()[0].TreeUUID.AITState())
	assert.Empty(t, s2.packets())
}

func TestTockEchoesBackAndForwardsOnward(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())
	treeID := names.NewTreeID("my_tree")
	parent := pn(t, 1, 4)
	entry := routing.NewEntry(treeID.UUID(), parent).
		WithChildMask(mask.Make([]names.PortNo{2})).EnableSend()
	table.Upsert(entry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s1, s2 := &fakeSender{}, &fakeSender{}
	e.AttachPort(nil, 1, s1)
	e.AttachPort(nil, 2, s2)

	ait := treeID.UUID().MakeAitSend()
	teck, err := ait.Next()
	require.NoError(t, err)
	tack, err := teck.Next()
	require.NoError(t, err)
	tock, err := tack.Next()
	require.NoError(t, err)
	pkt := packet.Packet{TreeUUID: tock, Count: 1, IsLast: true}
	e.PacketFromPort(nil, 1, pkt)
	settle()

	require.Len(t, s1.packets(), 1)
	assert.Equal(t, names.Tick, s1.packets()[0].TreeUUID.AITState())
	require.Len(t, s2.packets(), 1)
	assert.Equal(t, names.Tick, s2.packets()[0].TreeUUID.AITState())
}

func TestTickIsTerminalSink(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())
	treeID := names.NewTreeID("my_tree")
	parent := pn(t, 1, 4)
	entry := routing.NewEntry(treeID.UUID(), parent).
		WithChildMask(mask.Make([]names.PortNo{2})).EnableSend()
	table.Upsert(entry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s2 := &fakeSender{}
	e.AttachPort(nil, 2, s2)

	ait := treeID.UUID().MakeAitSend()
	teck, err := ait.Next()
	require.NoError(t, err)
	tack, err := teck.Next()
	require.NoError(t, err)
	tock, err := tack.Next()
	require.NoError(t, err)
	tick, err := tock.Next()
	require.NoError(t, err)
	pkt := packet.Packet{TreeUUID: tick, Count: 1, IsLast: true}
	e.PacketFromPort(nil, 1, pkt)
	settle()

	assert.Empty(t, s2.packets())
}

func TestRerouteRetransmitsCachedSnakePackets(t *testing.T) {
	controlID := names.NewTreeID("control")
	table := routing.NewTable(controlID.ForLookup())
	treeID := names.NewTreeID("my_tree")
	parent := pn(t, 1, 4)
	entry := routing.NewEntry(treeID.UUID(), parent).
		WithChildMask(mask.Make([]names.PortNo{2})).EnableSend()
	table.Upsert(entry)

	cm := &fakeCmodel{}
	e := New(table, 4, cm)
	s2, s3 := &fakeSender{}, &fakeSender{}
	e.AttachPort(nil, 2, s2)
	e.AttachPort(nil, 3, s3)

	snakeUUID := treeID.UUID().MakeSnake(false)
	pkt := packet.Packet{TreeUUID: snakeUUID, Count: 1, IsLast: true}
	e.PacketFromPort(nil, 1, pkt)
	settle()
	require.Len(t, s2.packets(), 1)

	e.Reroute(nil, pn(t, 2, 4), pn(t, 3, 4))
	settle()

	assert.Len(t, s3.packets(), 1)
}
