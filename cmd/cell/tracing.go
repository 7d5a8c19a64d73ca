package main

import (
	"github.com/earthcomputing/cellfabric/cmodel"
	"github.com/earthcomputing/cellfabric/names"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/replay"
	"github.com/earthcomputing/cellfabric/trace"
)

// tracingCASink sits between Cmodel and the Cell Agent, recording every
// inbound DeliverBytes/DeliverStatus call as a replay.DispatchFormat/
// StatusFormat trace record before forwarding it unchanged, so a later
// replay.Harness run against the same cell's trace file reproduces this
// run's Cell Agent state exactly (spec.md §9 "Replay determinism").
type tracingCASink struct {
	ca   cmodel.CASink
	sink *trace.Sink
}

var _ cmodel.CASink = (*tracingCASink)(nil)

func (t *tracingCASink) DeliverBytes(port names.PortNo, isAit bool, uuid names.TreeUUID, bytes []byte) {
	t.sink.Emit(replay.DispatchFormat, trace.Params{TraceType: trace.Trace, Module: "cmd/cell", Function: "DeliverBytes"},
		replay.Dispatch{Port: port, IsAit: isAit, UUID: uuid, Bytes: bytes})
	t.ca.DeliverBytes(port, isAit, uuid, bytes)
}

func (t *tracingCASink) DeliverStatus(port names.PortNo, isBorder bool, status portpkg.Status) {
	t.sink.Emit(replay.StatusFormat, trace.Params{TraceType: trace.Trace, Module: "cmd/cell", Function: "DeliverStatus"},
		replay.StatusEvent{Port: port, IsBorder: isBorder, Status: status})
	t.ca.DeliverStatus(port, isBorder, status)
}
