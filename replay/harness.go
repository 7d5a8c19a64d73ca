// Package replay implements the per-cell deterministic re-run harness
// of spec.md §9 "Replay determinism": feeding a single cell's trace
// file back into that cell's own Cell Agent, in order, to rebuild its
// state without re-running live discovery. This is distinct from (and
// simpler than) the visualizer's own global replay
// (original_source/actix_server/src/replay.rs), which dispatches trace
// records into in-memory display snapshots rather than a live actor —
// that half is modeled by package visualizer.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/earthcomputing/cellfabric/cmodel"
	"github.com/earthcomputing/cellfabric/names"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/trace"
)

// DispatchFormat is the trace record format a live Cell Agent emits
// (through cmd/cell's tracingCASink) for every inbound DeliverBytes
// call; it is the only format this harness understands, mirroring how
// the original visualizer replay only recognizes a fixed set of
// formats and silently ignores the rest.
const DispatchFormat = "ca_dispatch"

// StatusFormat is the trace record format for an inbound DeliverStatus
// call (a port connect/disconnect/break).
const StatusFormat = "ca_port_status"

// Dispatch is the JSON body of a DispatchFormat record: the exact
// arguments DeliverBytes received, so replay can hand them back
// unchanged.
type Dispatch struct {
	Port  names.PortNo    `json:"port"`
	IsAit bool            `json:"is_ait"`
	UUID  names.TreeUUID  `json:"uuid"`
	Bytes []byte          `json:"bytes"`
}

// StatusEvent is the JSON body of a StatusFormat record.
type StatusEvent struct {
	Port     names.PortNo   `json:"port"`
	IsBorder bool           `json:"is_border"`
	Status   portpkg.Status `json:"status"`
}

// Harness replays a trace file into a live cmodel.CASink (almost always
// a *ca.CellAgent), in file order, so the cell's traphs and name maps
// converge exactly as they did the first time.
type Harness struct {
	sink cmodel.CASink
}

// NewHarness wraps the Cell Agent (or any CASink) replay will drive.
func NewHarness(sink cmodel.CASink) *Harness {
	return &Harness{sink: sink}
}

// ReplayFile reads path line by line, each line a JSON-encoded
// trace.Record, and re-delivers every DispatchFormat/StatusFormat
// record to the wrapped sink. It returns the number of records
// replayed. Unrecognized formats are skipped, matching the original's
// `_ => ()` fallthrough; a malformed line is an error (spec.md §7
// "Configuration errors" -- a corrupt trace file is as fatal to replay
// as a bad config file is to a live start).
func (h *Harness) ReplayFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("replay: open %s: %w", path, err)
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec trace.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return n, fmt.Errorf("replay: %s:%d: decode record: %w", path, lineNo, err)
		}
		switch rec.Header.Format {
		case DispatchFormat:
			var d Dispatch
			if err := json.Unmarshal(rec.Body, &d); err != nil {
				return n, fmt.Errorf("replay: %s:%d: decode dispatch body: %w", path, lineNo, err)
			}
			h.sink.DeliverBytes(d.Port, d.IsAit, d.UUID, d.Bytes)
			n++
		case StatusFormat:
			var s StatusEvent
			if err := json.Unmarshal(rec.Body, &s); err != nil {
				return n, fmt.Errorf("replay: %s:%d: decode status body: %w", path, lineNo, err)
			}
			h.sink.DeliverStatus(s.Port, s.IsBorder, s.Status)
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("replay: %s: scan: %w", path, err)
	}
	return n, nil
}
