// Package trace implements the cross-cutting trace event sink (spec.md
// §6 "Trace event sink"): a single emit(kind, params, body) entry point
// (Sink.Emit) appends a JSON {header, body} record to the per-process and
// per-cell trace files and, optionally, POSTs it to a visualizer server.
// Its only caller in this tree is cmd/cell's tracingCASink, which records
// the Cell Agent's inbound DeliverBytes/DeliverStatus calls; Cmodel, the
// Packet Engine and the ports emit no records. This is
// distinct from operational logging (package-level go.uber.org/zap
// loggers); trace records are the wire-format replay log, not process
// diagnostics.
package trace

import "encoding/json"

// Type is the header's trace_type discriminant.
type Type string

const (
	Trace Type = "Trace"
	Debug Type = "Debug"
)

// Header is the fixed envelope spec.md §6 requires on every record.
type Header struct {
	Epoch     int64    `json:"epoch"`
	ThreadID  uint64   `json:"thread_id"`
	EventID   []uint64 `json:"event_id"`
	TraceType Type     `json:"trace_type"`
	Module    string   `json:"module"`
	Line      int      `json:"line"`
	Function  string   `json:"function"`
	Format    string   `json:"format"`
	Repo      string   `json:"repo"`
}

// Record is one {header, body} trace-log line. Body is kept as raw JSON
// so Record can be decoded generically by replay and the visualizer
// before being dispatched by Header.Format to a type-specific body.
type Record struct {
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// Params is the caller-supplied half of emit(kind, params, body): the
// header fields the sink cannot infer on its own. EventID, when nil, is
// assigned the sink's next sequence number; a caller continuing a causal
// chain (e.g. a reply record) passes the parent's EventID plus its own
// link.
type Params struct {
	TraceType Type
	Module    string
	Line      int
	Function  string
	EventID   []uint64
}
