package port

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/earthcomputing/cellfabric/packet"
)

// lengthPrefixed frames an io.ReadWriteCloser with a 2-byte big-endian
// length prefix, the simplest workable encoding for PACKET_MAX-bounded
// frames (packet.MaxFrameSize always fits in a uint16), grounded on the
// teacher's TCP stream framing in router/router.go.
type lengthPrefixed struct {
	rw io.ReadWriteCloser
}

// NewStreamTransport wraps a byte stream (a net.Conn, for example) as a
// Port transport.
func NewStreamTransport(rw io.ReadWriteCloser) transport { return &lengthPrefixed{rw: rw} }

func (t *lengthPrefixed) ReadFrame() ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(t.rw, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if int(n) > packet.MaxFrameSize {
		return nil, fmt.Errorf("transport: frame length %d exceeds max %d", n, packet.MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.rw, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *lengthPrefixed) WriteFrame(frame []byte) error {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(frame)))
	if _, err := t.rw.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.rw.Write(frame)
	return err
}

func (t *lengthPrefixed) Close() error { return t.rw.Close() }
