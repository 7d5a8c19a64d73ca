// Package names implements the stable identifiers of the cell fabric:
// CellID, PortNo/PortNumber, TreeID, PortTreeID, OriginatorID, and the
// AIT-state-carrying UUID that underlies TreeID/PortTreeID.
package names

import "fmt"

// AITState is the packet-level acknowledged in-band transfer state,
// stored in byte 0 of a tree UUID. Forward transitions on send run
// Ait -> Teck -> Tack -> Tock -> Tick; a reverse-direction packet runs the
// same chain backwards for acknowledgement.
type AITState uint8

const (
	Normal AITState = iota
	Entl
	Ait
	Teck
	Tack
	Tock
	Tick
	AitD
	SnakeD
)

func (s AITState) String() string {
	switch s {
	case Normal:
		return "Normal"
	case Entl:
		return "Entl"
	case Ait:
		return "Ait"
	case Teck:
		return "Teck"
	case Tack:
		return "Tack"
	case Tock:
		return "Tock"
	case Tick:
		return "Tick"
	case AitD:
		return "AitD"
	case SnakeD:
		return "SnakeD"
	default:
		return fmt.Sprintf("AITState(%d)", uint8(s))
	}
}

// AitStateError reports an illegal AIT state transition, e.g. calling
// Next on AitD.
type AitStateError struct {
	From AITState
	Op   string
}

func (e *AitStateError) Error() string {
	return fmt.Sprintf("illegal AIT transition: %s on state %s", e.Op, e.From)
}

var forwardChain = [...]AITState{Ait, Teck, Tack, Tock, Tick}

// Next advances the AIT state machine one step forward (toward Tick). It
// wraps Tick back to Normal. Normal and Entl are idle states that don't
// advance. AitD has no forward successor and returns an error.
func (s AITState) Next() (AITState, error) {
	switch s {
	case Normal, Entl:
		return s, nil
	case AitD:
		return s, &AitStateError{From: s, Op: "next"}
	case Tick:
		return Normal, nil
	}
	for i, st := range forwardChain {
		if st == s && i+1 < len(forwardChain) {
			return forwardChain[i+1], nil
		}
	}
	return s, &AitStateError{From: s, Op: "next"}
}

// Prev runs the AIT chain backwards, used when time_reverse is set on a
// packet travelling back toward the AIT originator for acknowledgement.
func (s AITState) Prev() (AITState, error) {
	switch s {
	case Normal, Entl:
		return s, nil
	case AitD:
		return s, &AitStateError{From: s, Op: "prev"}
	}
	for i, st := range forwardChain {
		if st == s {
			if i == 0 {
				return s, &AitStateError{From: s, Op: "prev"}
			}
			return forwardChain[i-1], nil
		}
	}
	return s, &AitStateError{From: s, Op: "prev"}
}

// IsAitBearing reports whether this state carries an in-flight AIT
// handoff (as opposed to Normal/Entl traffic).
func (s AITState) IsAitBearing() bool {
	switch s {
	case Ait, Teck, Tack, Tock, Tick, AitD:
		return true
	default:
		return false
	}
}
