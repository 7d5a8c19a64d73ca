package ca

import (
	"errors"
	"fmt"
)

// ProtocolError is the recoverable error taxonomy of spec.md §7: logged
// via the trace sink, the offending message dropped, the worker
// continues.
type ProtocolError struct {
	Kind string
	Msg  string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func errBorder(msg string) error        { return &ProtocolError{Kind: "Border", Msg: msg} }
func errSender(msg string) error        { return &ProtocolError{Kind: "Sender", Msg: msg} }
func errTreeNameMap(msg string) error   { return &ProtocolError{Kind: "TreeNameMap", Msg: msg} }
func errNameMap(msg string) error       { return &ProtocolError{Kind: "NameMap", Msg: msg} }
func errMayNotSend(tree string) error   { return &ProtocolError{Kind: "MayNotSend", Msg: tree} }
func errMayNotDelete(tree string) error { return &ProtocolError{Kind: "MayNotDelete", Msg: tree} }
func errTreeNotAllowed(tree string) error {
	return &ProtocolError{Kind: "TreeNotAllowed", Msg: tree}
}
func errNoTraph(tree string) error     { return &ProtocolError{Kind: "NoTraph", Msg: tree} }
func errBaseTree(msg string) error     { return &ProtocolError{Kind: "BaseTree", Msg: msg} }
func errFailoverPort(msg string) error { return &ProtocolError{Kind: "FailoverPort", Msg: msg} }
func errStackTree(msg string) error    { return &ProtocolError{Kind: "StackTree", Msg: msg} }
func errNotImplemented(feature string) error {
	return &ProtocolError{Kind: "NotImplemented", Msg: feature}
}

// recordProtocolError appends err to this cell's recoverable-error
// ledger (spec.md §7: logged, the message dropped, the worker
// continues) if it is a *ProtocolError. Must only be called from inside
// the actor.
func (ca *CellAgent) recordProtocolError(err error) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		ca.protocolErrors = append(ca.protocolErrors, pe)
	}
}

// PartitionError is the one topology error that is fatal for a tree: no
// path exists between the leafward and rootward failover endpoints. It
// is logged and no further failover attempts are made for that tree
// (spec.md §7).
type PartitionError struct {
	Tree string
}

func (e *PartitionError) Error() string { return fmt.Sprintf("Partition: no path repairing %s", e.Tree) }
