// Command cell runs a single-process simulation of the cell fabric
// described by a config file: it builds every cell's Cell Agent /
// Cmodel / Packet Engine chain, wires the mesh topology as in-process
// links, and optionally serves the visualizer HTTP API and/or replays a
// single cell's trace file instead of starting the fabric live.
// Grounded on original_source/userspace/cellagent/src/nalcell.rs (the
// NalCell construction sequence) and actix_server/src/main.rs (the
// visualizer process' own flag/server wiring), following the teacher's
// main.go idiom of a stdlib flag parse followed by a zap.NewProduction
// logger (dbehnke-allstar-nexus/main.go).
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/earthcomputing/cellfabric/config"
	"github.com/earthcomputing/cellfabric/mesh"
	"github.com/earthcomputing/cellfabric/names"
	"github.com/earthcomputing/cellfabric/replay"
	"github.com/earthcomputing/cellfabric/visualizer"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the fabric config file")
	httpAddr := flag.String("http", "", "address to serve the visualizer HTTP API on (empty disables it)")
	flag.Parse()
	if flag.NArg() > 0 {
		*configPath = flag.Arg(0)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("cell: %v", err)
	}

	outputDir := cfg.OutputDirName
	if outputDir == "" {
		outputDir = "."
	}

	if cfg.Replay.CellID != "" {
		if err := runReplay(cfg, outputDir, logger); err != nil {
			log.Fatalf("cell: replay: %v", err)
		}
		return
	}

	var topo *mesh.Topology
	if cfg.NumCells > 0 {
		topo = mesh.FromConfig(cfg)
	} else {
		topo = mesh.Generate(cfg.NRows, cfg.NCols)
	}
	if topo.NumCells == 0 {
		log.Fatalf("cell: config produced an empty topology (set num_cells, or nrows/ncols)")
	}

	fab, err := buildFabric(cfg, topo, outputDir, logger)
	if err != nil {
		log.Fatalf("cell: build fabric: %v", err)
	}
	defer fab.close()

	log.Printf("cell: %d cells, %d links", topo.NumCells, len(topo.Edges))
	for _, name := range fab.sortedCellNames() {
		c := fab.cells[name]
		log.Printf("cell: %s (border=%v, ports=%d)", name, c.isBorder, c.nPorts)
	}

	if cfg.AutoBreak != nil {
		if err := fab.breakEdge(*cfg.AutoBreak); err != nil {
			log.Printf("cell: auto_break %+v: %v", *cfg.AutoBreak, err)
		} else {
			log.Printf("cell: auto_break severed %s:%d <-> %s:%d",
				cfg.AutoBreak.CellA, cfg.AutoBreak.PortA, cfg.AutoBreak.CellB, cfg.AutoBreak.PortB)
		}
	}

	var srv *http.Server
	if *httpAddr != "" {
		store := visualizer.NewStore()
		srv = &http.Server{Addr: *httpAddr, Handler: visualizer.Mux(store, "")}
		go func() {
			log.Printf("cell: visualizer http listening on %s", *httpAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("cell: visualizer http: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Print("cell: shutting down")
	if srv != nil {
		_ = srv.Close()
	}
}

// runReplay feeds cfg.Replay.TraceFile into a freshly constructed cell
// matching cfg.Replay.CellID's own port count/exception entry, rebuilding
// its protocol state deterministically instead of joining the live mesh
// (spec.md §9 "Replay determinism").
func runReplay(cfg *config.Config, outputDir string, logger *zap.Logger) error {
	nPorts := cfg.NumPortsPerCell
	if override, ok := cfg.CellPortExceptions[cfg.Replay.CellID]; ok {
		nPorts = override
	}
	if nPorts <= 0 {
		nPorts = cfg.MaxNumPhysPortsPerCell
	}
	_, isBorder := cfg.BorderCellPorts[cfg.Replay.CellID]

	c, err := newCell(cfg.Replay.CellID, names.PortNo(nPorts), isBorder,
		translateQuench(cfg.Quench), cfg, outputDir, logger)
	if err != nil {
		return err
	}
	defer func() { _ = c.sink.Close() }()

	n, err := replay.NewHarness(c.agent).ReplayFile(cfg.Replay.TraceFile)
	if err != nil {
		return err
	}
	log.Printf("cell: replayed %d records into %s", n, cfg.Replay.CellID)
	return nil
}
