package port

import (
	"fmt"
	"sync"

	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	"go.uber.org/atomic"
)

// Status is the read-only snapshot of a port's link-level counters,
// exposed to the Cell Agent for failover decisions and to the
// visualizer (spec.md §4.7 "Port.Status").
type Status struct {
	Connected   bool
	Broken      bool
	Sent        uint64
	Recd        uint64
	LastPacket  packet.Packet
	HasLastPkt  bool
}

// FailoverInfo carries what a Cell Agent needs to replay a port's most
// recent in-flight packet onto a new parent port after a break.
type FailoverInfo struct {
	Sent       uint64
	Recd       uint64
	LastPacket packet.Packet
	HasLastPkt bool
}

// Port is the boundary between the Packet Engine / Cmodel bridge and the
// raw byte transport of a single link, interior (cell-to-cell) or border
// (cell-to-application). Every Port runs its own reader and writer pump
// goroutine, grounded on the teacher's per-peer reader()/writer() split
// (router/router.go).
type Port interface {
	No() names.PortNo
	IsBorder() bool
	// Send enqueues a packet for transmission, observing backpressure;
	// it returns false if the port's outbound queue is saturated.
	Send(p packet.Packet) bool
	// Status returns a snapshot of this port's counters.
	Status() Status
	// Failover returns the replay state needed when this port's traph
	// role is handed to a new parent port.
	Failover() FailoverInfo
	// Close tears down the pump goroutines and underlying transport.
	Close() error
}

// transport is the minimal frame-oriented link a Port pumps frames over;
// a net.Conn or any io.ReadWriteCloser satisfies it once wrapped by
// NewStreamTransport, mirroring the teacher's peer.go abstraction over
// its wire connection.
type transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
}

// base holds the fields and pump machinery shared by InteriorPort and
// BorderPort.
type base struct {
	no        names.PortNo
	tr        transport
	outbound  *FIFOQueue[packet.Packet]
	inbound   func(packet.Packet) // delivered to Cmodel/PE on receipt
	connected atomic.Bool
	broken    atomic.Bool
	sent      atomic.Uint64
	recd      atomic.Uint64

	mu         sync.Mutex
	lastPacket packet.Packet
	hasLast    bool

	done chan struct{}
	once sync.Once
}

func newBase(no names.PortNo, tr transport, outboundCapacity int, inbound func(packet.Packet)) *base {
	b := &base{
		no:       no,
		tr:       tr,
		outbound: NewFIFOQueue[packet.Packet](outboundCapacity),
		inbound:  inbound,
		done:     make(chan struct{}),
	}
	b.connected.Store(true)
	return b
}

func (b *base) No() names.PortNo { return b.no }

func (b *base) Send(p packet.Packet) bool {
	if b.broken.Load() {
		return false
	}
	ok := b.outbound.Push(p)
	if ok {
		b.mu.Lock()
		b.lastPacket = p
		b.hasLast = true
		b.mu.Unlock()
	}
	return ok
}

func (b *base) Status() Status {
	b.mu.Lock()
	last, has := b.lastPacket, b.hasLast
	b.mu.Unlock()
	return Status{
		Connected:  b.connected.Load(),
		Broken:     b.broken.Load(),
		Sent:       b.sent.Load(),
		Recd:       b.recd.Load(),
		LastPacket: last,
		HasLastPkt: has,
	}
}

func (b *base) Failover() FailoverInfo {
	b.mu.Lock()
	last, has := b.lastPacket, b.hasLast
	b.mu.Unlock()
	return FailoverInfo{Sent: b.sent.Load(), Recd: b.recd.Load(), LastPacket: last, HasLastPkt: has}
}

func (b *base) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		err = b.tr.Close()
	})
	return err
}

// writer pumps queued packets out over the transport, a single
// goroutine per port so wire writes are never interleaved
// (router/router.go peer.writer()).
func (b *base) writer() {
	for {
		select {
		case <-b.done:
			return
		case <-b.outbound.Wait():
			for {
				p, ok := b.outbound.Pop()
				if !ok {
					break
				}
				buf := make([]byte, packet.MaxFrameSize)
				n, err := p.MarshalBinary(buf)
				if err != nil {
					b.broken.Store(true)
					return
				}
				if err := b.tr.WriteFrame(buf[:n]); err != nil {
					b.broken.Store(true)
					b.connected.Store(false)
					return
				}
				b.sent.Add(1)
			}
		}
	}
}

// reader pumps frames off the transport and hands decoded packets to
// inbound, one goroutine per port (router/router.go peer.reader()).
func (b *base) reader() {
	for {
		select {
		case <-b.done:
			return
		default:
		}
		frame, err := b.tr.ReadFrame()
		if err != nil {
			b.broken.Store(true)
			b.connected.Store(false)
			return
		}
		var p packet.Packet
		if _, err := p.UnmarshalBinary(frame); err != nil {
			continue
		}
		b.recd.Add(1)
		if b.inbound != nil {
			b.inbound(p)
		}
	}
}

func (b *base) start() {
	go b.reader()
	go b.writer()
}

// InteriorPort is a cell-to-cell link carrying tree traffic. It has no
// AIT handling of its own (spec.md §4.7): a Teck/Tack/Tock frame is
// handed to the Packet Engine (via inbound) like any other frame, and the
// PE performs the forward/backward state transition and the echo (see
// (*pe.Engine).advanceAIT).
type InteriorPort struct {
	*base
}

// NewInteriorPort creates an interior port and starts its pump
// goroutines.
func NewInteriorPort(no names.PortNo, tr transport, outboundCapacity int, inbound func(packet.Packet)) *InteriorPort {
	ip := &InteriorPort{base: newBase(no, tr, outboundCapacity, inbound)}
	ip.start()
	return ip
}

func (*InteriorPort) IsBorder() bool { return false }

// BorderPort is a cell-to-application link: an interior discovery/tree
// protocol never crosses it, only AppInterapplicationMsg/AppManifestMsg/
// AppStackTreeMsg/AppDeleteTreeMsg/AppQueryMsg traffic (spec.md §4.9.5).
type BorderPort struct {
	*base
}

// NewBorderPort creates a border port and starts its pump goroutines.
func NewBorderPort(no names.PortNo, tr transport, outboundCapacity int, inbound func(packet.Packet)) *BorderPort {
	bp := &BorderPort{base: newBase(no, tr, outboundCapacity, inbound)}
	bp.start()
	return bp
}

func (*BorderPort) IsBorder() bool { return true }

var _ Port = (*InteriorPort)(nil)
var _ Port = (*BorderPort)(nil)

func (s Status) String() string {
	return fmt.Sprintf("status(connected=%v broken=%v sent=%d recd=%d)", s.Connected, s.Broken, s.Sent, s.Recd)
}
