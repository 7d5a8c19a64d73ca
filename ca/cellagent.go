package ca

import (
	"sync"

	"github.com/Arceliar/phony"

	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/routing"
	"github.com/earthcomputing/cellfabric/traph"
)

// QuenchPolicy selects how aggressively Discover flooding is suppressed
// (spec.md §4.9.2).
type QuenchPolicy int

const (
	QuenchSimple QuenchPolicy = iota
	QuenchRootPort
)

// CmodelOut is the narrow capability set the Cell Agent needs from
// Cmodel (satisfied by *cmodel.Bridge).
type CmodelOut interface {
	BytesFromCA(from phony.Actor, treeUUID names.TreeUUID, isAit, isSnake bool, userMask mask.Mask, payload []byte)
	Entry(from phony.Actor, e routing.Entry)
	Delete(from phony.Actor, key names.TreeUUID)
	Reroute(from phony.Actor, broken, newParent names.PortNumber)
	TunnelPort(from phony.Actor, p names.PortNo, vmID string)
	TunnelUp(from phony.Actor, p names.PortNo)
}

type neighborInfo struct {
	cellName string
	cellUUID [16]byte
	port     names.PortNo
}

type savedDiscover struct {
	msg  Discover
	from names.PortNo
}

type stackTreeProgress struct {
	parentPortTreeID names.PortTreeID
	borderSender     names.PortNo
	joined           bool
}

// CellAgent is the per-cell protocol actor: discovery, tree stacking,
// failover, and application-plane dispatch. It is the single writer of
// every traph and name map it owns (spec.md §5); all mutation happens
// inside Act closures.
type CellAgent struct {
	*phony.Inbox

	id      names.CellID
	nPorts  names.PortNo
	quench  QuenchPolicy
	discoverQuiescenceFactor float64

	cm CmodelOut

	myTreeID        names.TreeID
	connectedTreeID names.TreeID
	controlTreeID   names.TreeID

	traphs map[names.TreeID]*traph.Traph

	neighbors         map[names.PortNo]neighborInfo
	borderPorts       map[names.PortNo]bool
	borderOriginators map[names.PortNo]names.OriginatorID

	discoverDCount map[names.TreeID]int
	savedDiscovers []savedDiscover
	sentToNoc      bool

	// nameTreeMu guards both maps so a display/replay goroutine outside
	// the actor can take a consistent snapshot without routing through
	// Act (spec.md §5). nameTreeMap is the per-originator authorization
	// set (OriginatorID -> tree name -> TreeID), populated whenever a
	// border-port originator names a new stacked tree (applyStackTree)
	// and consulted by the app-dispatch path (spec.md §4.9.5); treeNameMap
	// -- the plain name->TreeID lookup with no originator scoping -- is
	// a separate, cell-wide lookup for diagnostics.
	nameTreeMu  sync.Mutex
	nameTreeMap map[names.OriginatorID]map[string]names.TreeID
	treeNameMap map[string]names.TreeID

	failoverReplyPorts  map[names.PortTreeID]names.PortNo
	failoverBrokenPort  map[names.PortTreeID]names.PortNo
	stackProgress       map[names.PortTreeID]*stackTreeProgress

	partitions     []*PartitionError
	protocolErrors []*ProtocolError
}

// New creates a Cell Agent, pre-populating the Control and Connected
// trees (always present, never deleted) and an empty traph for its own
// my_tree.
func New(id names.CellID, nPorts names.PortNo, cm CmodelOut, quench QuenchPolicy, discoverQuiescenceFactor float64) *CellAgent {
	ca := &CellAgent{
		Inbox:  new(phony.Inbox),
		id:     id,
		nPorts: nPorts,
		quench: quench,
		discoverQuiescenceFactor: discoverQuiescenceFactor,
		cm:     cm,

		myTreeID:        names.NewTreeID("my_tree"),
		connectedTreeID: names.NewTreeID("connected"),
		controlTreeID:   names.NewTreeID("control"),

		traphs:             make(map[names.TreeID]*traph.Traph),
		neighbors:          make(map[names.PortNo]neighborInfo),
		borderPorts:        make(map[names.PortNo]bool),
		borderOriginators:  make(map[names.PortNo]names.OriginatorID),
		discoverDCount:     make(map[names.TreeID]int),
		nameTreeMap:        make(map[names.OriginatorID]map[string]names.TreeID),
		treeNameMap:        make(map[string]names.TreeID),
		failoverReplyPorts: make(map[names.PortTreeID]names.PortNo),
		failoverBrokenPort: make(map[names.PortTreeID]names.PortNo),
		stackProgress:      make(map[names.PortTreeID]*stackTreeProgress),
	}
	ca.traphs[ca.myTreeID] = traph.New(ca.myTreeID, nPorts)
	ca.traphs[ca.connectedTreeID] = traph.New(ca.connectedTreeID, nPorts)
	ca.traphs[ca.controlTreeID] = traph.New(ca.controlTreeID, nPorts)
	return ca
}

// MyTreeID returns this cell's own spanning-tree identity.
func (ca *CellAgent) MyTreeID() names.TreeID { return ca.myTreeID }

// ControlTreeID returns this cell's Control tree identity, fixed at
// construction and never mutated, so it is safe to read without routing
// through Act. cmd/cell needs it to set the routing.Table's Lookup
// fallback key, which must exist before the Cell Agent itself does.
func (ca *CellAgent) ControlTreeID() names.TreeID { return ca.controlTreeID }

// Partitions returns every fatal failover-repair failure recorded so
// far (spec.md §7 PartitionError), for a trace sink or test to inspect.
func (ca *CellAgent) Partitions() []*PartitionError {
	var out []*PartitionError
	phony.Block(ca, func() { out = append(out, ca.partitions...) })
	return out
}

// ProtocolErrors returns every recoverable protocol error recorded so
// far (spec.md §7): the offending message was logged and dropped, the
// worker continued. A trace sink or test inspects this the same way
// Partitions exposes fatal failover failures.
func (ca *CellAgent) ProtocolErrors() []*ProtocolError {
	var out []*ProtocolError
	phony.Block(ca, func() { out = append(out, ca.protocolErrors...) })
	return out
}

// DiscoverDCount reports how many DiscoverD acknowledgements this cell
// has received for tree, a test/trace hook onto discovery quiescence.
func (ca *CellAgent) DiscoverDCount(tree names.TreeID) int {
	var n int
	phony.Block(ca, func() { n = ca.discoverDCount[tree] })
	return n
}

// NeighborCount reports how many ports have completed the Hello
// handshake.
func (ca *CellAgent) NeighborCount() int {
	var n int
	phony.Block(ca, func() { n = len(ca.neighbors) })
	return n
}

func (ca *CellAgent) portNumber(p names.PortNo) names.PortNumber {
	pn, _ := names.NewPortNumber(p, ca.nPorts)
	return pn
}

func (ca *CellAgent) send(treeUUID names.TreeUUID, m mask.Mask, kind Kind, body interface{}) {
	buf, err := encode(kind, body)
	if err != nil {
		return
	}
	ca.cm.BytesFromCA(ca, treeUUID, false, false, m, buf)
}

func (ca *CellAgent) traphFor(id names.TreeID) (*traph.Traph, bool) {
	tr, ok := ca.traphs[id]
	return tr, ok
}

func (ca *CellAgent) traphForOrCreate(id names.TreeID) *traph.Traph {
	tr, ok := ca.traphs[id]
	if !ok {
		tr = traph.New(id, ca.nPorts)
		ca.traphs[id] = tr
	}
	return tr
}

// isDiscoverDone reports whether discovery has converged enough to
// announce the base tree to the Noc (spec.md §4.9.2 item 4): the
// DiscoverD count on my_tree's port-tree exceeds
// discover_quiescence_factor * len(neighbors).
func (ca *CellAgent) isDiscoverDone() bool {
	if len(ca.neighbors) == 0 {
		return false
	}
	count := ca.discoverDCount[ca.myTreeID]
	return float64(count) > ca.discoverQuiescenceFactor*float64(len(ca.neighbors))
}

func (ca *CellAgent) maybeSendBaseTreeToNoc() {
	if ca.sentToNoc || !ca.isDiscoverDone() {
		return
	}
	for p := range ca.borderPorts {
		nameMsg := AppTreeNameMsg{Name: ca.myTreeID.Name, PortTreeID: toWirePortTreeID(ca.myTreeID.ToPortTreeID(ca.portNumber(0)))}
		ca.send(ca.myTreeID.UUID(), mask.New(p), KindAppTreeName, nameMsg)
		ca.sentToNoc = true
		return
	}
}

// DeliverStatus implements cmodel.CASink: a verbatim-forwarded port
// status change, used to notice link-down and drive Failover.
func (ca *CellAgent) DeliverStatus(port names.PortNo, isBorder bool, status portpkg.Status) {
	ca.Act(nil, func() {
		if !status.Connected || status.Broken {
			ca.handlePortDisconnected(port)
		}
	})
}

// DeliverBytes implements cmodel.CASink: a reassembled message arriving
// from Cmodel, decoded and dispatched by envelope kind.
func (ca *CellAgent) DeliverBytes(port names.PortNo, isAit bool, uuid names.TreeUUID, bytes []byte) {
	ca.Act(nil, func() { ca.dispatch(port, uuid, bytes) })
}

func (ca *CellAgent) dispatch(port names.PortNo, uuid names.TreeUUID, bytes []byte) {
	env, err := decodeEnvelope(bytes)
	if err != nil {
		return
	}
	switch env.Kind {
	case KindHello:
		var m Hello
		if decodeBody(env.Body, &m) == nil {
			ca.handleHello(port, m)
		}
	case KindDiscover:
		var m Discover
		if decodeBody(env.Body, &m) == nil {
			ca.handleDiscover(port, m)
		}
	case KindDiscoverD:
		var m DiscoverD
		if decodeBody(env.Body, &m) == nil {
			ca.handleDiscoverD(port, m)
		}
	case KindStackTree:
		var m StackTree
		if decodeBody(env.Body, &m) == nil {
			ca.handleStackTree(port, m)
		}
	case KindStackTreeD:
		var m StackTreeD
		if decodeBody(env.Body, &m) == nil {
			ca.handleStackTreeD(port, m)
		}
	case KindFailover:
		var m Failover
		if decodeBody(env.Body, &m) == nil {
			ca.handleFailover(port, m)
		}
	case KindFailoverD:
		var m FailoverD
		if decodeBody(env.Body, &m) == nil {
			ca.handleFailoverD(port, m)
		}
	case KindDeleteTree:
		var m DeleteTree
		if decodeBody(env.Body, &m) == nil {
			ca.handleDeleteTree(m)
		}
	case KindAppInterapplication, KindAppDeleteTree, KindAppManifest, KindAppStackTree, KindAppQuery, KindAppTreeName:
		ca.handleAppEnvelope(port, env)
	}
}
