package packet

import (
	"fmt"

	"github.com/earthcomputing/cellfabric/names"
)

// ReassemblyError reports a failure to unpacketize: a duplicate last
// fragment, a fragment beyond the declared count, or a set of fragments
// that doesn't add up to a contiguous, count-complete sequence.
type ReassemblyError struct {
	Reason string
}

func (e *ReassemblyError) Error() string { return "reassembly: " + e.Reason }

// Packetize fragments bytes into ceil(len/PayloadMax) packets sharing
// uniqueMsgID, each carrying treeUUID (including whatever AIT bits the
// caller has already set on it — the first packet carries the AIT flag
// for the whole message, matching spec.md §4.6).
func Packetize(treeUUID names.TreeUUID, uniqueMsgID uint64, data []byte) ([]Packet, error) {
	if len(data) == 0 {
		return []Packet{{
			TreeUUID:    treeUUID,
			UniqueMsgID: uniqueMsgID,
			SequenceNo:  0,
			Count:       1,
			IsLast:      true,
			Payload:     nil,
		}}, nil
	}
	count := (len(data) + PayloadMax - 1) / PayloadMax
	if count > MaxPacketsPerMessage {
		return nil, fmt.Errorf("packetize: %d bytes needs %d packets, exceeds max %d", len(data), count, MaxPacketsPerMessage)
	}
	pkts := make([]Packet, 0, count)
	for i := 0; i < count; i++ {
		start := i * PayloadMax
		end := start + PayloadMax
		if end > len(data) {
			end = len(data)
		}
		payload := make([]byte, end-start)
		copy(payload, data[start:end])
		pkts = append(pkts, Packet{
			TreeUUID:    treeUUID,
			UniqueMsgID: uniqueMsgID,
			SequenceNo:  uint16(i),
			Count:       uint16(count),
			IsLast:      i == count-1,
			Payload:     payload,
		})
	}
	return pkts, nil
}

// Unpacketize requires a contiguous, count-complete sequence of packets
// sharing one unique_msg_id and reassembles the original byte array.
// Packets need not arrive in order; Unpacketize sorts by sequence number
// first.
func Unpacketize(packets []Packet) ([]byte, error) {
	if len(packets) == 0 {
		return nil, &ReassemblyError{Reason: "empty packet set"}
	}
	msgID := packets[0].UniqueMsgID
	count := packets[0].Count
	bySeq := make(map[uint16]Packet, len(packets))
	for _, p := range packets {
		if p.UniqueMsgID != msgID {
			return nil, &ReassemblyError{Reason: "mismatched unique_msg_id"}
		}
		if p.Count != count {
			return nil, &ReassemblyError{Reason: "mismatched count"}
		}
		if p.SequenceNo >= count {
			return nil, &ReassemblyError{Reason: "sequence number overflows declared count"}
		}
		if existing, dup := bySeq[p.SequenceNo]; dup && existing.IsLast != p.IsLast {
			return nil, &ReassemblyError{Reason: "duplicate last-packet mismatch"}
		}
		bySeq[p.SequenceNo] = p
	}
	if uint16(len(bySeq)) != count {
		return nil, &ReassemblyError{Reason: "incomplete sequence"}
	}
	var out []byte
	for seq := uint16(0); seq < count; seq++ {
		p, ok := bySeq[seq]
		if !ok {
			return nil, &ReassemblyError{Reason: "missing fragment"}
		}
		if seq == count-1 && !p.IsLast {
			return nil, &ReassemblyError{Reason: "final fragment not marked last"}
		}
		if seq != count-1 && p.IsLast {
			return nil, &ReassemblyError{Reason: "non-final fragment marked last"}
		}
		out = append(out, p.Payload...)
	}
	return out, nil
}
