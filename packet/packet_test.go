package packet

import (
	"testing"

	"github.com/earthcomputing/cellfabric/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketizeUnpacketizeRoundTrip10KB(t *testing.T) {
	data := make([]byte, 10*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	tree := names.NewTreeUUID()
	pkts, err := Packetize(tree, 42, data)
	require.NoError(t, err)
	assert.Equal(t, 48, len(pkts)) // ceil(10240/216) = 48, spec.md S4

	got, err := Unpacketize(pkts)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestUnpacketizeOutOfOrderIsFine(t *testing.T) {
	tree := names.NewTreeUUID()
	data := make([]byte, 1000)
	pkts, err := Packetize(tree, 1, data)
	require.NoError(t, err)
	reversed := make([]Packet, len(pkts))
	for i, p := range pkts {
		reversed[len(pkts)-1-i] = p
	}
	got, err := Unpacketize(reversed)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestUnpacketizeMismatchedMsgID(t *testing.T) {
	tree := names.NewTreeUUID()
	a, _ := Packetize(tree, 1, []byte("hello"))
	b, _ := Packetize(tree, 2, []byte("world"))
	_, err := Unpacketize(append(a, b...))
	require.Error(t, err)
	var reErr *ReassemblyError
	assert.ErrorAs(t, err, &reErr)
}

func TestAssemblerIdempotentDuplicates(t *testing.T) {
	tree := names.NewTreeUUID()
	pkts, _ := Packetize(tree, 7, make([]byte, 1000))
	asm := NewAssembler(7)
	var done bool
	var all []Packet
	for _, p := range pkts {
		var err error
		done, all, err = asm.Add(p)
		require.NoError(t, err)
		// re-add the same fragment; must be idempotent
		done2, _, err2 := asm.Add(p)
		require.NoError(t, err2)
		assert.Equal(t, done, done2)
	}
	assert.True(t, done)
	got, err := Unpacketize(all)
	require.NoError(t, err)
	assert.Len(t, got, 1000)
}

func TestAssemblerRejectsOverflowSequence(t *testing.T) {
	asm := NewAssembler(1)
	_, _, err := asm.Add(Packet{UniqueMsgID: 1, SequenceNo: 5, Count: 2})
	require.Error(t, err)
}

func TestWireMarshalUnmarshalRoundTrip(t *testing.T) {
	tree := names.NewTreeUUID().MakeAitSend()
	p := Packet{
		TreeUUID:    tree,
		UniqueMsgID: 99,
		SequenceNo:  3,
		Count:       10,
		IsLast:      false,
		Rootward:    true,
		Payload:     []byte("payload-bytes"),
	}
	buf := make([]byte, MaxFrameSize)
	n, err := p.MarshalBinary(buf)
	require.NoError(t, err)

	var got Packet
	m, err := got.UnmarshalBinary(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, n, m)
	assert.Equal(t, p.TreeUUID, got.TreeUUID)
	assert.Equal(t, p.UniqueMsgID, got.UniqueMsgID)
	assert.Equal(t, p.SequenceNo, got.SequenceNo)
	assert.Equal(t, p.Count, got.Count)
	assert.Equal(t, p.IsLast, got.IsLast)
	assert.Equal(t, p.Rootward, got.Rootward)
	assert.Equal(t, p.Payload, got.Payload)
}
