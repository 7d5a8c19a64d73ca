package names

import (
	"fmt"

	"github.com/google/uuid"
)

// TreeUUID wraps a 16-byte UUID whose first two bytes are reserved as a
// routing discriminant: byte 0 packs the AIT state (low 4 bits), a
// time-direction flag and a snake flag; byte 1 carries the root port
// number of the port-tree this UUID denotes (0 for a bare TreeID). The
// remaining 14 bytes are the tree's stable identity.
//
// Consumers outside this package must never read the raw bytes; they go
// through the typed accessors below.
type TreeUUID [16]byte

const (
	aitStateMask  = 0x0F
	timeDirBit    = 0x10
	snakeBit      = 0x20
)

// NewTreeUUID generates a fresh identity with AIT state Normal, no flags,
// and root port 0.
func NewTreeUUID() TreeUUID {
	var t TreeUUID
	u := uuid.New()
	copy(t[:], u[:])
	t[0] = 0
	t[1] = 0
	return t
}

func (t TreeUUID) String() string {
	return uuid.UUID(t).String()
}

// AITState returns the packed AIT state.
func (t TreeUUID) AITState() AITState {
	return AITState(t[0] & aitStateMask)
}

// TimeReversed reports whether the time-direction flag is set (packet is
// travelling back toward the AIT originator).
func (t TreeUUID) TimeReversed() bool {
	return t[0]&timeDirBit != 0
}

// IsSnake reports whether the snake-cache flag is set.
func (t TreeUUID) IsSnake() bool {
	return t[0]&snakeBit != 0
}

// RootPortNo returns the root-port discriminant in byte 1.
func (t TreeUUID) RootPortNo() PortNo {
	return PortNo(t[1])
}

func (t TreeUUID) withState(s AITState) TreeUUID {
	n := t
	n[0] = (n[0] &^ aitStateMask) | uint8(s)&aitStateMask
	return n
}

// ForLookup strips the AIT byte so routing-table lookups use the base
// identity (plus root port, which remains part of the key).
func (t TreeUUID) ForLookup() TreeUUID {
	n := t
	n[0] = 0
	return n
}

// SetPortNumber projects a TreeID into a PortTreeID rooted at the given
// port.
func (t TreeUUID) SetPortNumber(p PortNo) TreeUUID {
	n := t
	n[1] = uint8(p)
	return n
}

// RemovePortNo projects a PortTreeID back down to its base TreeID.
func (t TreeUUID) RemovePortNo() TreeUUID {
	n := t
	n[1] = 0
	return n
}

// MakeNormal resets state to Normal, clearing flags.
func (t TreeUUID) MakeNormal() TreeUUID {
	n := t.withState(Normal)
	n[0] &^= timeDirBit | snakeBit
	return n
}

// MakeEntl marks an entangled (always-forward) packet.
func (t TreeUUID) MakeEntl() TreeUUID {
	return t.withState(Entl)
}

// MakeAitSend starts an AIT hand-off: state becomes Ait, forward
// direction; the snake flag is left as it was.
func (t TreeUUID) MakeAitSend() TreeUUID {
	n := t.withState(Ait)
	n[0] &^= timeDirBit
	return n
}

// MakeAitReply flips the time-direction bit so the AIT chain runs
// backwards, used once the forward chain reaches Tick and the
// acknowledgement must travel back to the originator.
func (t TreeUUID) MakeAitReply() TreeUUID {
	n := t
	n[0] |= timeDirBit
	return n
}

// MakeSnake sets the snake-cache flag (pending cache) or, with d=true,
// marks it SnakeD (delivered, cache may be cleared).
func (t TreeUUID) MakeSnake(d bool) TreeUUID {
	n := t
	n[0] |= snakeBit
	if d {
		n = n.withState(SnakeD)
	}
	return n
}

// TimeReverse toggles the time-direction flag without touching state.
func (t TreeUUID) TimeReverse() TreeUUID {
	n := t
	n[0] ^= timeDirBit
	return n
}

// Next advances the AIT state machine, honoring the time-direction flag
// (forward chain if not reversed, backward chain if reversed).
func (t TreeUUID) Next() (TreeUUID, error) {
	cur := t.AITState()
	var next AITState
	var err error
	if t.TimeReversed() {
		next, err = cur.Prev()
	} else {
		next, err = cur.Next()
	}
	if err != nil {
		return t, fmt.Errorf("%s.next: %w", t, err)
	}
	return t.withState(next), nil
}
