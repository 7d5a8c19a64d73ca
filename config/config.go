// Package config defines the JSON configuration schema of spec.md §6
// and a minimal loader. Configuration loading is an explicit
// external-collaborator non-goal (spec.md §1): this package does not
// validate the schema, support hot reload, or resolve a deployment
// blueprint — it only decodes the file cmd/cell is handed on argv[1]
// into the shape every other package expects.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Quench selects the Discover re-flood suppression policy (spec.md
// §4.9.2), mirrored by ca.QuenchPolicy; cmd/cell translates between the
// two so this package does not import ca.
type Quench string

const (
	QuenchSimple   Quench = "Simple"
	QuenchRootPort Quench = "RootPort"
)

// Edge names one link in an explicit topology or the one link
// auto_break severs at startup to exercise failover, as a JSON object
// with cell_a, port_a, cell_b and port_b fields (original_source/cellagent/src/
// config.rs's `Edge`, constructed by the mesh generator when num_cells
// is 0).
type Edge struct {
	CellA string `json:"cell_a"`
	PortA int    `json:"port_a"`
	CellB string `json:"cell_b"`
	PortB int    `json:"port_b"`
}

// TraceOptions and DebugOptions gate per-subsystem trace/debug record
// emission (original_source/cellagent/src/config.rs). Every field
// defaults to false (quiet) when absent from the config file.
type TraceOptions struct {
	All  bool `json:"all"`
	CA   bool `json:"ca"`
	CM   bool `json:"cm"`
	PE   bool `json:"pe"`
	Port bool `json:"port"`
	Link bool `json:"link"`
}

type DebugOptions struct {
	All           bool `json:"all"`
	FlowControl   bool `json:"flow_control"`
	Discover      bool `json:"discover"`
	DiscoverD     bool `json:"discoverd"`
	Hello         bool `json:"hello"`
	StackTree     bool `json:"stack_tree"`
	TraphEntry    bool `json:"traph_entry"`
	SavedDiscover bool `json:"saved_discover"`
	SavedStack    bool `json:"saved_stack"`
}

// Replay carries the optional replay-on-startup directive (spec.md §9
// "Replay determinism"): if CellID is non-empty, cmd/cell feeds
// TraceFile into a replay.Harness for that cell instead of starting it
// live.
type Replay struct {
	CellID    string `json:"cell_id,omitempty"`
	TraceFile string `json:"trace_file,omitempty"`
}

// Config is the full JSON document of spec.md §6. Generated topologies
// (NumCells == 0) are expanded by package mesh from NRows/NCols;
// explicit topologies are given directly via EdgeList/Geometry.
type Config struct {
	MaxNumPhysPortsPerCell   int    `json:"max_num_phys_ports_per_cell"`
	MinNumBorderCells        int    `json:"min_num_border_cells"`
	Quench                   Quench `json:"quench"`
	ContinueOnError          bool   `json:"continue_on_error"`
	AutoBreak                *Edge  `json:"auto_break,omitempty"`
	DiscoverQuiescenceFactor float64 `json:"discover_quiescence_factor"`

	OutputDirName  string `json:"output_dir_name"`
	OutputFileName string `json:"output_file_name"`

	KafkaServer string `json:"kafka_server,omitempty"`
	KafkaTopic  string `json:"kafka_topic,omitempty"`

	NumCells        int            `json:"num_cells"`
	NumPortsPerCell int            `json:"num_ports_per_cell"`
	NRows           int            `json:"nrows,omitempty"`
	NCols           int            `json:"ncols,omitempty"`

	CellPortExceptions map[string]int    `json:"cell_port_exceptions"`
	BorderCellPorts    map[string][]int  `json:"border_cell_ports"`
	CellConfig         map[string]string `json:"cell_config"`

	EdgeList []Edge      `json:"edge_list"`
	Geometry [][2]int    `json:"geometry"`

	TraceOptions TraceOptions `json:"trace_options"`
	DebugOptions DebugOptions `json:"debug_options"`
	Replay       Replay       `json:"replay"`
}

// DefaultConfigPath is used when argv[1] is absent, matching the
// original's fall back (spec.md §6 "Environment").
const DefaultConfigPath = "configs/10cell_config.json"

// Load reads and decodes the config file at path. No defaulting or
// validation beyond valid JSON is performed -- cmd/cell is responsible
// for checking the fields it actually needs (spec.md §7 "Configuration
// errors ... fatal at startup").
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}
