package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/earthcomputing/cellfabric/port"
)

// Sink is the per-process trace event sink (spec.md §6). Emit is
// non-blocking: records are pushed onto a bounded LIFOQueue (the same
// drop-oldest queue package port uses for best-effort traffic) and
// written/POSTed by a single background goroutine, so a stalled disk or
// unreachable server never backs up a Cell Agent's actor loop.
type Sink struct {
	repo   string
	thread uint64

	seq atomic.Uint64

	globalFile *os.File
	cellFile   *os.File

	serverURL  string
	httpClient *http.Client

	disabledMu      sync.Mutex
	disabledFormats map[string]bool

	queue *port.LIFOQueue[Record]
	done  chan struct{}

	logger *zap.Logger
}

// Config carries the per-process/per-cell naming spec.md §6 describes:
// records are appended to <OutputDir>/<OutputFile>.json and to
// <OutputDir>/<OutputFile>-<CellID>.json, and optionally POSTed to
// ${ServerURL}/<format>.
type Config struct {
	OutputDir  string
	OutputFile string
	CellID     string
	ServerURL  string // empty disables the HTTP sink entirely
	Repo       string
	ThreadID   uint64
	QueueDepth int // 0 defaults to 4096
	Logger     *zap.Logger
}

// New opens (creating if necessary) the global and per-cell trace files
// and starts the background writer goroutine. Logger may be nil, in
// which case trace-sink-internal diagnostics (file/HTTP errors) are
// discarded, matching the teacher pack's nil-logger-falls-back-to-Nop
// convention (grounded on dbehnke-allstar-nexus's NewDownloader).
func New(cfg Config) (*Sink, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4096
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: create output dir: %w", err)
	}
	globalPath := filepath.Join(cfg.OutputDir, cfg.OutputFile+".json")
	globalFile, err := os.OpenFile(globalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trace: open global trace file: %w", err)
	}
	cellPath := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s-%s.json", cfg.OutputFile, cfg.CellID))
	cellFile, err := os.OpenFile(cellPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		globalFile.Close()
		return nil, fmt.Errorf("trace: open per-cell trace file: %w", err)
	}

	s := &Sink{
		repo:            cfg.Repo,
		thread:          cfg.ThreadID,
		globalFile:      globalFile,
		cellFile:        cellFile,
		serverURL:       cfg.ServerURL,
		httpClient:      &http.Client{Timeout: 5 * time.Second},
		disabledFormats: make(map[string]bool),
		queue:           port.NewLIFOQueue[Record](cfg.QueueDepth),
		done:            make(chan struct{}),
		logger:          logger,
	}
	go s.run()
	return s, nil
}

// Emit is the emit(kind, params, body) entry point: kind is the
// header's format field (and the visualizer's dispatch key, e.g.
// "ca_process_hello_msg"). It never blocks the caller and never returns
// an error — a full queue silently drops the oldest pending record
// (port.LIFOQueue.Dropped reports how many).
func (s *Sink) Emit(kind string, p Params, body interface{}) {
	if s == nil {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		s.logger.Warn("trace: marshal body failed", zap.String("format", kind), zap.Error(err))
		return
	}
	eventID := p.EventID
	if eventID == nil {
		eventID = []uint64{s.seq.Add(1)}
	}
	rec := Record{
		Header: Header{
			Epoch:     time.Now().UnixNano(),
			ThreadID:  s.thread,
			EventID:   eventID,
			TraceType: p.TraceType,
			Module:    p.Module,
			Line:      p.Line,
			Function:  p.Function,
			Format:    kind,
			Repo:      s.repo,
		},
		Body: raw,
	}
	s.queue.Push(rec)
}

// Dropped reports how many records were discarded for queue overflow.
func (s *Sink) Dropped() uint64 { return s.queue.Dropped() }

// Close stops the background writer and closes both trace files. Any
// records still queued are flushed first.
func (s *Sink) Close() error {
	close(s.done)
	for {
		rec, ok := s.queue.Pop()
		if !ok {
			break
		}
		s.write(rec)
	}
	errG := s.globalFile.Close()
	errC := s.cellFile.Close()
	if errG != nil {
		return errG
	}
	return errC
}

func (s *Sink) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.queue.Wait():
			for {
				rec, ok := s.queue.Pop()
				if !ok {
					break
				}
				s.write(rec)
			}
		}
	}
}

func (s *Sink) write(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line = append(line, '\n')

	// I/O errors are logged and dropped rather than retried in place
	// (spec.md §7): the next Emit call's write is the de facto retry, and
	// a failing disk must never stall the actor goroutine that called
	// Emit.
	if _, err := s.globalFile.Write(line); err != nil {
		s.logger.Warn("trace: write global trace file failed", zap.Error(err))
	}
	if _, err := s.cellFile.Write(line); err != nil {
		s.logger.Warn("trace: write per-cell trace file failed", zap.Error(err))
	}

	s.post(rec, line)
}

// post sends rec to ${ServerURL}/<format>. A 404 permanently disables
// that format for the remaining lifetime of the process (spec.md §7);
// any other failure is logged and simply not retried for this record.
func (s *Sink) post(rec Record, line []byte) {
	if s.serverURL == "" {
		return
	}
	s.disabledMu.Lock()
	disabled := s.disabledFormats[rec.Header.Format]
	s.disabledMu.Unlock()
	if disabled {
		return
	}

	url := s.serverURL + "/" + rec.Header.Format
	resp, err := s.httpClient.Post(url, "application/json", bytes.NewReader(line))
	if err != nil {
		s.logger.Warn("trace: post failed", zap.String("format", rec.Header.Format), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		s.disabledMu.Lock()
		s.disabledFormats[rec.Header.Format] = true
		s.disabledMu.Unlock()
		s.logger.Warn("trace: server 404'd format, disabling", zap.String("format", rec.Header.Format))
	}
}
