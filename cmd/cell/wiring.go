package main

import (
	"fmt"
	"net"
	"sort"

	"go.uber.org/zap"

	"github.com/earthcomputing/cellfabric/ca"
	"github.com/earthcomputing/cellfabric/cmodel"
	"github.com/earthcomputing/cellfabric/config"
	"github.com/earthcomputing/cellfabric/mesh"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/packet"
	"github.com/earthcomputing/cellfabric/pe"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/routing"
	"github.com/earthcomputing/cellfabric/trace"
)

// cell bundles one NalCell-equivalent's actors and supporting state: the
// Cell Agent, Cmodel bridge, Packet Engine, its live ports, and the
// trace sink a replay would read back (original_source
// userspace/cellagent/src/nalcell.rs's NalCell struct, minus the
// ECNL/VM-tunnel fields -- those reach an out-of-scope external
// collaborator, spec.md §1 Non-goals).
type cell struct {
	id       names.CellID
	isBorder bool
	nPorts   names.PortNo

	table  *routing.Table
	engine *pe.Engine
	bridge *cmodel.Bridge
	agent  *ca.CellAgent
	sink   *trace.Sink

	ports map[names.PortNo]portpkg.Port
}

// fabric is every cell in the running topology, keyed by cell name.
type fabric struct {
	cells map[string]*cell
	topo  *mesh.Topology
}

// translateQuench maps the config-layer string enum onto ca's int enum
// (kept as two separate types so package config never imports package
// ca, spec.md §6 "Configuration").
func translateQuench(q config.Quench) ca.QuenchPolicy {
	if q == config.QuenchRootPort {
		return ca.QuenchRootPort
	}
	return ca.QuenchSimple
}

// portCounts resolves each cell's physical port count: cfg.NumPortsPerCell
// as the fabric-wide default, cfg.CellPortExceptions overriding per cell,
// and widened (never narrowed) to whatever the topology's own edges and
// border assignments actually require -- a misconfigured "too few ports"
// value must not silently drop a link (spec.md §7 "Configuration errors").
func portCounts(cfg *config.Config, topo *mesh.Topology) map[string]names.PortNo {
	counts := make(map[string]names.PortNo, topo.NumCells)
	def := cfg.NumPortsPerCell
	if def <= 0 {
		def = cfg.MaxNumPhysPortsPerCell
	}
	for i := 0; i < topo.NumCells; i++ {
		name := mesh.CellName(i)
		n := def
		if override, ok := cfg.CellPortExceptions[name]; ok {
			n = override
		}
		counts[name] = names.PortNo(n)
	}
	grow := func(name string, p int) {
		if names.PortNo(p) > counts[name] {
			counts[name] = names.PortNo(p)
		}
	}
	for _, e := range topo.Edges {
		grow(e.CellA, e.PortA)
		grow(e.CellB, e.PortB)
	}
	for name, ports := range cfg.BorderCellPorts {
		for _, p := range ports {
			grow(name, p)
		}
	}
	return counts
}

// borderPortSet resolves which physical ports on a cell face an
// application rather than a neighbor cell.
func borderPortSet(cfg *config.Config, name string) map[names.PortNo]bool {
	out := make(map[names.PortNo]bool)
	for _, p := range cfg.BorderCellPorts[name] {
		out[names.PortNo(p)] = true
	}
	return out
}

// buildFabric constructs every cell's actor chain (table -> Packet
// Engine -> Cmodel bridge -> Cell Agent, cyclic references closed via
// SetCmodelSink/SetCA) and wires every topology edge as an in-process
// link, the Go-native equivalent of nalcell.rs's per-port channel pairs:
// each physical link here is a net.Pipe() wrapped as a length-prefixed
// transport (port.NewStreamTransport) instead of a crossbeam channel,
// since the Packet Engine and Cell Agent already communicate by typed
// Go method call rather than by message passing.
func buildFabric(cfg *config.Config, topo *mesh.Topology, outputDir string, logger *zap.Logger) (*fabric, error) {
	counts := portCounts(cfg, topo)
	quench := translateQuench(cfg.Quench)

	f := &fabric{cells: make(map[string]*cell, topo.NumCells), topo: topo}

	for i := 0; i < topo.NumCells; i++ {
		name := mesh.CellName(i)
		borders := borderPortSet(cfg, name)

		c, err := newCell(name, counts[name], len(borders) > 0, quench, cfg, outputDir, logger)
		if err != nil {
			return nil, err
		}
		f.cells[name] = c

		for p := range borders {
			c.agent.PortConnected(p, true)
		}
	}

	for _, e := range topo.Edges {
		if err := f.link(e); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// newCell builds one cell's full actor chain -- routing table, Packet
// Engine, Cmodel bridge, Cell Agent, and trace sink -- closing the
// PE<->Cmodel<->CA cyclic references via SetCmodelSink/SetCA, the same
// two-phase construction nalcell.rs performs with its crossbeam channel
// pairs before CellAgent::new.
func newCell(name string, nPorts names.PortNo, isBorder bool, quench ca.QuenchPolicy, cfg *config.Config, outputDir string, logger *zap.Logger) (*cell, error) {
	id := names.NewCellID(name)
	table := routing.NewTable(names.TreeUUID{})
	engine := pe.New(table, nPorts, nil)
	bridge := cmodel.New(engine, nil)
	engine.SetCmodelSink(nil, bridge)
	agent := ca.New(id, nPorts, bridge, quench, cfg.DiscoverQuiescenceFactor)
	table.SetControlKey(agent.ControlTreeID().UUID().ForLookup())

	sink, err := trace.New(trace.Config{
		OutputDir:  outputDir,
		OutputFile: cfg.OutputFileName,
		CellID:     name,
		Repo:       "cellfabric",
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("cell %s: trace sink: %w", name, err)
	}
	bridge.SetCA(nil, &tracingCASink{ca: agent, sink: sink})

	return &cell{
		id:       id,
		isBorder: isBorder,
		nPorts:   nPorts,
		table:    table,
		engine:   engine,
		bridge:   bridge,
		agent:    agent,
		sink:     sink,
		ports:    make(map[names.PortNo]portpkg.Port),
	}, nil
}

// link realizes one mesh edge as a pair of in-process ports joined by a
// net.Pipe(), attaches each side to its cell's Packet Engine, and
// notifies both Cell Agents that their port has come up -- the
// in-process stand-in for the original's physical/ECNL link discovery.
func (f *fabric) link(e config.Edge) error {
	a, ok := f.cells[e.CellA]
	if !ok {
		return fmt.Errorf("edge references unknown cell %s", e.CellA)
	}
	b, ok := f.cells[e.CellB]
	if !ok {
		return fmt.Errorf("edge references unknown cell %s", e.CellB)
	}

	connA, connB := net.Pipe()
	portA := names.PortNo(e.PortA)
	portB := names.PortNo(e.PortB)

	portOnA := portpkg.NewInteriorPort(portA, portpkg.NewStreamTransport(connA), outboundQueueDepth,
		func(pkt packet.Packet) { a.engine.DeliverFromPort(nil, portA, pkt) })
	portOnB := portpkg.NewInteriorPort(portB, portpkg.NewStreamTransport(connB), outboundQueueDepth,
		func(pkt packet.Packet) { b.engine.DeliverFromPort(nil, portB, pkt) })

	a.ports[portA] = portOnA
	b.ports[portB] = portOnB
	a.engine.AttachPort(nil, portA, portOnA)
	b.engine.AttachPort(nil, portB, portOnB)

	a.agent.PortConnected(portA, false)
	b.agent.PortConnected(portB, false)
	return nil
}

// breakEdge severs one already-linked edge to exercise failover
// (config.Config's auto_break, spec.md §6): it closes both ports' pump
// goroutines and reports the break to each side's Packet Engine itself,
// since a port's reader and writer pumps only mark the port broken on an
// I/O error and never report a Status to the Packet Engine; without this
// call the reporting path (Engine.Status -> Cmodel -> CA.DeliverStatus)
// would not run.
func (f *fabric) breakEdge(e config.Edge) error {
	a, ok := f.cells[e.CellA]
	if !ok {
		return fmt.Errorf("auto_break references unknown cell %s", e.CellA)
	}
	b, ok := f.cells[e.CellB]
	if !ok {
		return fmt.Errorf("auto_break references unknown cell %s", e.CellB)
	}
	portA := names.PortNo(e.PortA)
	portB := names.PortNo(e.PortB)

	pa, ok := a.ports[portA]
	if !ok {
		return fmt.Errorf("auto_break: %s has no port %d", e.CellA, e.PortA)
	}
	pb, ok := b.ports[portB]
	if !ok {
		return fmt.Errorf("auto_break: %s has no port %d", e.CellB, e.PortB)
	}

	_ = pa.Close()
	_ = pb.Close()
	broken := portpkg.Status{Connected: false, Broken: true}
	a.engine.Status(nil, portA, false, broken)
	b.engine.Status(nil, portB, false, broken)
	return nil
}

// outboundQueueDepth bounds each port's outbound FIFO; grounded on the
// teacher's TrafficBuffer constant (router/router.go), sized down since a
// simulated mesh link has far lower fan-out than a live pinecone peer.
const outboundQueueDepth = 256

// sortedCellNames returns every cell name in a fabric, sorted, so
// startup/shutdown logging is deterministic across runs.
func (f *fabric) sortedCellNames() []string {
	out := make([]string, 0, len(f.cells))
	for name := range f.cells {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// close tears down every cell's ports and trace sink.
func (f *fabric) close() {
	for _, name := range f.sortedCellNames() {
		c := f.cells[name]
		for _, p := range c.ports {
			_ = p.Close()
		}
		_ = c.sink.Close()
	}
}
