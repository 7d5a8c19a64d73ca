// Package ca implements the Cell Agent: neighbor discovery, spanning
// tree construction and stacking, failover repair, and application-plane
// dispatch (spec.md §4.9). It is structured as a phony.Inbox actor, the
// single writer of every traph and name map it owns (spec.md §5), and
// its wire messages are marshaled with go.dedis.ch/protobuf, the same
// reflection-based typed-message encoder dedis-onet uses for its own
// network envelope (network/encoding.go).
package ca

import (
	"fmt"

	"go.dedis.ch/protobuf"

	"github.com/earthcomputing/cellfabric/gvm"
	"github.com/earthcomputing/cellfabric/mask"
	"github.com/earthcomputing/cellfabric/names"
)

// Kind discriminates the wire envelope's body, the Go equivalent of the
// original's tagged enum (CaToCaMsg variants).
type Kind uint8

const (
	KindHello Kind = iota
	KindDiscover
	KindDiscoverD
	KindStackTree
	KindStackTreeD
	KindFailover
	KindFailoverD
	KindDeleteTree
	KindAppInterapplication
	KindAppDeleteTree
	KindAppManifest
	KindAppStackTree
	KindAppQuery
	KindAppTreeName
)

func (k Kind) String() string {
	names := [...]string{
		"Hello", "Discover", "DiscoverD", "StackTree", "StackTreeD",
		"Failover", "FailoverD", "DeleteTree", "AppInterapplication",
		"AppDeleteTree", "AppManifest", "AppStackTree", "AppQuery", "AppTreeName",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// envelope is the wire frame carried as the payload of a Bytes message
// through Cmodel: a kind tag plus the protobuf-encoded body.
type envelope struct {
	Kind Kind
	Body []byte
}

func encode(kind Kind, body interface{}) ([]byte, error) {
	b, err := protobuf.Encode(body)
	if err != nil {
		return nil, fmt.Errorf("ca: encode %s: %w", kind, err)
	}
	return protobuf.Encode(&envelope{Kind: kind, Body: b})
}

func decodeEnvelope(buf []byte) (*envelope, error) {
	var e envelope
	if err := protobuf.Decode(buf, &e); err != nil {
		return nil, fmt.Errorf("ca: decode envelope: %w", err)
	}
	return &e, nil
}

func decodeBody(buf []byte, v interface{}) error { return protobuf.Decode(buf, v) }

// wirePortTreeID is the fully-exported representation of a
// names.PortTreeID suitable for reflection-based encoding (PortTreeID
// itself embeds a struct with an unexported identity field).
type wirePortTreeID struct {
	Name string
	UUID names.TreeUUID
}

func toWirePortTreeID(id names.PortTreeID) wirePortTreeID {
	return wirePortTreeID{Name: id.Name, UUID: id.UUID()}
}

func (w wirePortTreeID) toPortTreeID() names.PortTreeID {
	return names.PortTreeID{TreeID: names.TreeIDFromUUID(w.Name, w.UUID)}
}

type wireTreeID struct {
	Name string
	UUID names.TreeUUID
}

func toWireTreeID(id names.TreeID) wireTreeID {
	return wireTreeID{Name: id.Name, UUID: id.UUID()}
}

func (w wireTreeID) toTreeID() names.TreeID {
	return names.TreeIDFromUUID(w.Name, w.UUID)
}

// Hello carries the sender's cell identity to its new neighbor on port
// (spec.md §4.9.1).
type Hello struct {
	CellName string
	CellUUID [16]byte
	Port     names.PortNo
}

// DiscoverDKind distinguishes the closure reply from ordinary pruning
// acknowledgement (spec.md §4.9.2).
type DiscoverDKind uint8

const (
	DiscoverDFirst DiscoverDKind = iota
	DiscoverDSubsequent
)

// Discover floods tree membership toward every neighbor (spec.md §4.9.2).
type Discover struct {
	PortTreeID   wirePortTreeID
	CellOfOrigin string
	Hops         uint16
	Path         names.PortNo
}

// DiscoverD acknowledges a Discover. The receiver (handleDiscoverD) only
// counts it toward the base tree's quiescence check: it sends no closure
// reply toward its own parent, does not mark the sender's port as a
// child, does not prune, and treats First and Subsequent alike.
type DiscoverD struct {
	PortTreeID wirePortTreeID
	Kind       DiscoverDKind
}

// StackTree requests a new tree be stacked on parentPortTreeID (spec.md
// §4.9.3).
type StackTree struct {
	SenderName    string
	SenderUUID    [16]byte
	AllowedTree   wireTreeID
	NewPortTreeID wirePortTreeID
	ParentPortTreeID wirePortTreeID
	GVM           gvm.Equation
}

// StackTreeD replies to StackTree, joined up the subtree as each level
// of children reports in.
type StackTreeD struct {
	PortTreeID wirePortTreeID
	Join       bool
}

// Failover asks a neighbor to become the new parent for rwPortTreeID
// (spec.md §4.9.4).
type Failover struct {
	SenderName        string
	SenderUUID        [16]byte
	RwPortTreeID      wirePortTreeID
	LwPortTreeID      wirePortTreeID
	BrokenPath        []names.PortNo
	BrokenPortTreeIDs []wirePortTreeID
}

// FailoverResult is the outcome carried by FailoverD.
type FailoverResult uint8

const (
	FailoverSuccess FailoverResult = iota
	FailoverFailure
)

// FailoverD replies to Failover, propagating success/failure back
// leafward.
type FailoverD struct {
	RwPortTreeID wirePortTreeID
	Result       FailoverResult
	NoPackets    int
}

// DeleteTree asks the receiver to delete a stacked tree (never the base
// "black" tree).
type DeleteTree struct {
	PortTreeID wirePortTreeID
}

// AppInterapplicationMsg multicasts application payload on a named tree.
type AppInterapplicationMsg struct {
	Tree    wireTreeID
	Payload []byte
}

// AppDeleteTreeMsg asks this cell to delete a tree it originated.
type AppDeleteTreeMsg struct {
	Tree wireTreeID
}

// AppManifestMsg requests VM/Container deployment, an out-of-scope
// external collaborator (spec.md §1 Non-goals); the CA decodes the
// message and drops it, with no authorization check and no forwarding.
type AppManifestMsg struct {
	Manifest []byte
}

// AppStackTreeMsg begins a new stack-tree handshake from the
// application side.
type AppStackTreeMsg struct {
	ParentTree  wireTreeID
	NewTreeName string
	GVM         gvm.Equation
}

// AppQueryMsg's feature is explicitly unimplemented (spec.md §4.9.5);
// receiving one records a NotImplemented protocol error.
type AppQueryMsg struct {
	Query []byte
}

// AppTreeNameMsg is illegal when received from the application
// direction; it is only ever sent by the CA toward the application.
type AppTreeNameMsg struct {
	Name       string
	PortTreeID wirePortTreeID
}

func maskToWire(m mask.Mask) []names.PortNo { return m.PortNos() }
func maskFromWire(ports []names.PortNo) mask.Mask { return mask.Make(ports) }
