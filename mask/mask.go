// Package mask implements the per-cell port bit-vector used throughout
// the routing fabric: routing-table child sets, tenant/user port
// restrictions, and discover/stack-tree flood masks.
package mask

import (
	"math/bits"

	"github.com/earthcomputing/cellfabric/names"
)

// MaxPorts bounds the number of physical ports a cell may have (port
// numbers are carried in a single byte, see names.TreeUUID).
const MaxPorts = 255

// Mask is a bit-vector over port numbers 0..MaxPorts. Bit i set means
// port i is a member. All operations are total: they never panic on a
// well-formed Mask value (the zero value is the empty mask).
type Mask struct {
	bits uint64
	hi   [4]uint64 // bits 64..319; port numbers address only bits up to MaxPorts
}

// New returns a mask containing exactly the given port.
func New(port names.PortNo) Mask {
	var m Mask
	m.set(uint(port))
	return m
}

// Empty is the mask with no ports set.
func Empty() Mask { return Mask{} }

// All returns the mask with every port 0..nPorts set (BASE_TENANT_MASK
// when nPorts is the cell's full port count).
func All(nPorts names.PortNo) Mask {
	var m Mask
	for p := names.PortNo(0); p <= nPorts; p++ {
		m.set(uint(p))
	}
	return m
}

// DefaultUser returns All(nPorts) with port 0 cleared (DEFAULT_USER_MASK:
// every port except the self-loop).
func DefaultUser(nPorts names.PortNo) Mask {
	return All(nPorts).AllBut(0)
}

func (m *Mask) set(p uint) {
	if p < 64 {
		m.bits |= 1 << p
	} else {
		idx := (p - 64) / 64
		off := (p - 64) % 64
		if int(idx) < len(m.hi) {
			m.hi[idx] |= 1 << off
		}
	}
}

func (m *Mask) clear(p uint) {
	if p < 64 {
		m.bits &^= 1 << p
	} else {
		idx := (p - 64) / 64
		off := (p - 64) % 64
		if int(idx) < len(m.hi) {
			m.hi[idx] &^= 1 << off
		}
	}
}

func (m Mask) get(p uint) bool {
	if p < 64 {
		return m.bits&(1<<p) != 0
	}
	idx := (p - 64) / 64
	off := (p - 64) % 64
	if int(idx) >= len(m.hi) {
		return false
	}
	return m.hi[idx]&(1<<off) != 0
}

// Has reports whether port is a member of the mask.
func (m Mask) Has(port names.PortNo) bool { return m.get(uint(port)) }

// Set returns a copy of m with port added.
func (m Mask) Set(port names.PortNo) Mask {
	n := m
	n.set(uint(port))
	return n
}

// Clear returns a copy of m with port removed.
func (m Mask) Clear(port names.PortNo) Mask {
	n := m
	n.clear(uint(port))
	return n
}

// And returns the bitwise intersection.
func (m Mask) And(o Mask) Mask {
	n := Mask{bits: m.bits & o.bits}
	for i := range n.hi {
		n.hi[i] = m.hi[i] & o.hi[i]
	}
	return n
}

// Or returns the bitwise union.
func (m Mask) Or(o Mask) Mask {
	n := Mask{bits: m.bits | o.bits}
	for i := range n.hi {
		n.hi[i] = m.hi[i] | o.hi[i]
	}
	return n
}

// Not returns the bitwise complement of all 320 stored bits, including
// the bits above MaxPorts that no port number addresses; Count and Equal
// see those bits too.
func (m Mask) Not() Mask {
	n := Mask{bits: ^m.bits}
	for i := range n.hi {
		n.hi[i] = ^m.hi[i]
	}
	return n
}

// AllBut returns a copy of m with port removed (alias for Clear, named
// to match spec.md's all_but).
func (m Mask) AllBut(port names.PortNo) Mask { return m.Clear(port) }

// PortNos returns the set of member port numbers in stable ascending
// order.
func (m Mask) PortNos() []names.PortNo {
	var out []names.PortNo
	for p := uint(0); p <= uint(MaxPorts); p++ {
		if m.get(p) {
			out = append(out, names.PortNo(p))
		}
	}
	return out
}

// Make folds a set of port numbers with Or, the inverse of PortNos.
func Make(ports []names.PortNo) Mask {
	var m Mask
	for _, p := range ports {
		m.set(uint(p))
	}
	return m
}

// Count returns the number of member ports.
func (m Mask) Count() int {
	n := bits.OnesCount64(m.bits)
	for _, w := range m.hi {
		n += bits.OnesCount64(w)
	}
	return n
}

// Equal reports whether two masks have identical membership.
func (m Mask) Equal(o Mask) bool {
	if m.bits != o.bits {
		return false
	}
	return m.hi == o.hi
}
