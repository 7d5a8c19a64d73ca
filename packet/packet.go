// Package packet implements the fixed-size wire frame, its
// fragmentation/reassembly (Packetizer/PacketAssembler), and the buffer
// pooling pattern borrowed from the teacher's frameBufferPool
// (router/state_snek.go _bootstrapNow / router/router.go).
package packet

import (
	"fmt"
	"sync"

	"github.com/earthcomputing/cellfabric/names"
)

// PayloadMax bounds the payload bytes carried by a single packet; a
// message is split into at most 256 packets (spec.md §3).
const PayloadMax = 216

// MaxPacketsPerMessage is the hard ceiling on fragment count
// (sequence_no/count are carried in a uint16 header field but spec.md
// pins the protocol limit at 256).
const MaxPacketsPerMessage = 256

// Flags bits packed into the wire header's flag byte.
const (
	FlagLast     uint8 = 1 << 0
	FlagRootward uint8 = 1 << 1 // clear = leafward
)

// Packet is one fixed-size frame: tree identity (with AIT state bits in
// byte 0, root port in byte 1), a message id shared by every fragment of
// one message, this fragment's sequence number, the total fragment
// count, and the payload.
type Packet struct {
	TreeUUID    names.TreeUUID
	UniqueMsgID uint64
	SequenceNo  uint16
	Count       uint16
	IsLast      bool
	Rootward    bool
	Payload     []byte
}

func (p Packet) String() string {
	return fmt.Sprintf("pkt(tree=%s msg=%d seq=%d/%d last=%v len=%d)",
		p.TreeUUID, p.UniqueMsgID, p.SequenceNo, p.Count, p.IsLast, len(p.Payload))
}

var payloadBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, PayloadMax)
		return &b
	},
}

// GetPayloadBuf borrows a PayloadMax-sized scratch buffer from the pool;
// callers must PutPayloadBuf it back once done, mirroring the teacher's
// frameBufferPool usage pattern.
func GetPayloadBuf() *[]byte { return payloadBufPool.Get().(*[]byte) }

// PutPayloadBuf returns a scratch buffer to the pool.
func PutPayloadBuf(b *[]byte) { payloadBufPool.Put(b) }
