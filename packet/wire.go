package packet

import (
	"encoding/binary"
	"fmt"
)

// headerSize is tree_uuid(16) + unique_msg_id(8) + sequence_no(2) +
// count(2) + size(2) + flags(1) = 31 bytes (spec.md §6 wire packet).
const headerSize = 16 + 8 + 2 + 2 + 2 + 1

// MaxFrameSize is the fixed total wire length (PACKET_MAX): header plus
// the largest payload a fragment can carry.
const MaxFrameSize = headerSize + PayloadMax

// MarshalBinary encodes a packet into the fixed PACKET_MAX-length wire
// format. buf must be at least MaxFrameSize bytes; it returns the number
// of bytes encoded, header plus payload (size field gives the valid
// payload length for the final packet, per spec.md §6).
func (p Packet) MarshalBinary(buf []byte) (int, error) {
	if len(buf) < headerSize+len(p.Payload) {
		return 0, fmt.Errorf("marshal: buffer too small (%d < %d)", len(buf), headerSize+len(p.Payload))
	}
	copy(buf[0:16], p.TreeUUID[:])
	binary.BigEndian.PutUint64(buf[16:24], p.UniqueMsgID)
	binary.BigEndian.PutUint16(buf[24:26], p.SequenceNo)
	binary.BigEndian.PutUint16(buf[26:28], p.Count)
	binary.BigEndian.PutUint16(buf[28:30], uint16(len(p.Payload)))
	var flags uint8
	if p.IsLast {
		flags |= FlagLast
	}
	if p.Rootward {
		flags |= FlagRootward
	}
	buf[30] = flags
	n := copy(buf[headerSize:], p.Payload)
	return headerSize + n, nil
}

// UnmarshalBinary decodes a wire frame previously produced by
// MarshalBinary.
func (p *Packet) UnmarshalBinary(buf []byte) (int, error) {
	if len(buf) < headerSize {
		return 0, fmt.Errorf("unmarshal: buffer shorter than header (%d < %d)", len(buf), headerSize)
	}
	copy(p.TreeUUID[:], buf[0:16])
	p.UniqueMsgID = binary.BigEndian.Uint64(buf[16:24])
	p.SequenceNo = binary.BigEndian.Uint16(buf[24:26])
	p.Count = binary.BigEndian.Uint16(buf[26:28])
	size := binary.BigEndian.Uint16(buf[28:30])
	flags := buf[30]
	p.IsLast = flags&FlagLast != 0
	p.Rootward = flags&FlagRootward != 0
	if len(buf) < headerSize+int(size) {
		return 0, fmt.Errorf("unmarshal: buffer shorter than declared payload size")
	}
	p.Payload = append([]byte(nil), buf[headerSize:headerSize+int(size)]...)
	return headerSize + int(size), nil
}
