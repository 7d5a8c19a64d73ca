package port

import (
	"net"
	"testing"
	"time"

	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOQueueOrderingAndCapacity(t *testing.T) {
	q := NewFIFOQueue[int](2)
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.False(t, q.Push(3))

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, q.Push(3))
}

func TestLIFOQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewLIFOQueue[int](2)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, uint64(1), q.Dropped())

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestInteriorPortRoundTrip(t *testing.T) {
	connA, connB := net.Pipe()
	recvd := make(chan packet.Packet, 1)

	pa := NewInteriorPort(1, NewStreamTransport(connA), 8, nil)
	pb := NewInteriorPort(1, NewStreamTransport(connB), 8, func(p packet.Packet) { recvd <- p })
	defer pa.Close()
	defer pb.Close()

	sent := packet.Packet{TreeUUID: names.NewTreeUUID(), UniqueMsgID: 42, SequenceNo: 0, Count: 1, IsLast: true, Payload: []byte("hello")}
	require.True(t, pa.Send(sent))

	select {
	case got := <-recvd:
		assert.Equal(t, sent.UniqueMsgID, got.UniqueMsgID)
		assert.Equal(t, sent.Payload, got.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}

	st := pa.Status()
	assert.Equal(t, uint64(1), st.Sent)
	assert.True(t, st.HasLastPkt)
}

func TestInteriorPortSendAfterCloseMarksBroken(t *testing.T) {
	connA, connB := net.Pipe()
	pa := NewInteriorPort(1, NewStreamTransport(connA), 8, nil)
	pb := NewInteriorPort(1, NewStreamTransport(connB), 8, nil)
	defer pb.Close()

	require.NoError(t, pa.Close())
	time.Sleep(20 * time.Millisecond)
	ok := pb.Send(packet.Packet{Count: 1})
	// pb's reader pump saw EOF from the closed peer and marked the port
	// broken, so Send refuses the packet.
	assert.True(t, pb.Status().Broken)
	assert.False(t, ok)
}

func TestBorderPortIsBorder(t *testing.T) {
	connA, connB := net.Pipe()
	defer connB.Close()
	bp := NewBorderPort(2, NewStreamTransport(connA), 4, nil)
	defer bp.Close()
	assert.True(t, bp.IsBorder())
	assert.Equal(t, names.PortNo(2), bp.No())
}
