package visualizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/earthcomputing/cellfabric/trace"
)

// cellStartBody is the body of border_cell_start / interior_cell_start
// trace records (original_source geometry.rs's Body).
type cellStartBody struct {
	CellID   struct{ Name string } `json:"cell_id"`
	Location [2]int                `json:"location"`
}

// helloBody is the body of ca_process_hello_msg records
// (original_source hello.rs's Body).
type helloBody struct {
	CellID struct{ Name string } `json:"cell_id"`
	PortNo int                   `json:"port_no"`
	Msg    struct {
		Payload struct {
			CellID struct{ Name string } `json:"cell_id"`
			PortNo int                   `json:"port_no"`
		} `json:"payload"`
	} `json:"msg"`
}

// stackTreeDBody is the body of ca_process_stack_treed_msg records
// (original_source stacktreed.rs's Body).
type stackTreeDBody struct {
	CellID struct{ Name string } `json:"cell_id"`
	PortNo int                   `json:"port_no"`
	Msg    struct {
		Payload struct {
			PortTreeID struct{ Name string } `json:"port_tree_id"`
		} `json:"payload"`
	} `json:"msg"`
}

// Mux builds the http.ServeMux of spec.md §6's "Visualizer/analyzer
// HTTP API". indexHTML is served verbatim at GET / (empty string
// serves nothing but 200 OK, since index.html itself is out of scope
// per spec.md §1).
func Mux(store *Store, indexHTML string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(indexHTML))
	})

	mux.HandleFunc("/border_cell_start", postRecord(store, cellStart(true)))
	mux.HandleFunc("/interior_cell_start", postRecord(store, cellStart(false)))
	mux.HandleFunc("/ca_process_hello_msg", postRecord(store, processHello))
	mux.HandleFunc("/ca_process_discoverd_msg", postRecord(store, func(*Store, json.RawMessage) error { return nil }))
	mux.HandleFunc("/ca_process_stack_treed_msg", postRecord(store, processStackTreeD))

	mux.HandleFunc("/geometry", getJSON(func() interface{} { return store.geometrySnapshot() }))
	mux.HandleFunc("/topology", getJSON(func() interface{} { return store.topologySnapshot() }))
	mux.HandleFunc("/stack_treed", getJSON(func() interface{} { return store.stackedTreeSnapshot() }))

	mux.HandleFunc("/replay", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filename := r.FormValue("filename")
		if filename == "" {
			http.Error(w, "missing filename", http.StatusBadRequest)
			return
		}
		store.Reset()
		n, err := replayIntoStore(store, filename)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "replayed %d records from %s", n, filename)
	})

	mux.HandleFunc("/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		store.Reset()
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// replayIntoStore re-injects every line of a trace file into store by
// dispatching on header.format, exactly mirroring
// original_source/actix_server/src/replay.rs's match over
// "border_cell_start" / "interior_cell_start" / "ca_process_hello_msg" /
// "ca_process_stack_treed_msg" (an unrecognized format is a no-op, same
// as the original's `_ => ()`). This is the visualizer's own replay,
// driving its in-memory snapshots -- not package replay's Harness, which
// drives a live Cell Agent instead (spec.md §9 supplemented feature 8).
func replayIntoStore(store *Store, filename string) (int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec trace.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return n, fmt.Errorf("decode record: %w", err)
		}
		var dispatchErr error
		switch rec.Header.Format {
		case "border_cell_start":
			dispatchErr = cellStart(true)(store, rec.Body)
		case "interior_cell_start":
			dispatchErr = cellStart(false)(store, rec.Body)
		case "ca_process_hello_msg":
			dispatchErr = processHello(store, rec.Body)
		case "ca_process_stack_treed_msg":
			dispatchErr = processStackTreeD(store, rec.Body)
		default:
			continue
		}
		if dispatchErr != nil {
			return n, dispatchErr
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, nil
}

func getJSON(snapshot func() interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, snapshot())
	}
}

// postRecord decodes the posted trace.Record envelope (the visualizer
// receives whole {header, body} documents, same as the replay file
// lines) and hands the body to fn.
func postRecord(store *Store, fn func(*Store, json.RawMessage) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var rec trace.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fn(store, rec.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func cellStart(isBorder bool) func(*Store, json.RawMessage) error {
	return func(store *Store, raw json.RawMessage) error {
		var body cellStartBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		store.setGeometry(body.CellID.Name, Location{Row: body.Location[0], Col: body.Location[1], IsBorder: isBorder})
		return nil
	}
}

func processHello(store *Store, raw json.RawMessage) error {
	var body helloBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}
	store.setNeighbor(body.CellID.Name, body.PortNo, Neighbor{
		CellName: body.Msg.Payload.CellID.Name,
		Port:     body.Msg.Payload.PortNo,
	})
	return nil
}

func processStackTreeD(store *Store, raw json.RawMessage) error {
	var body stackTreeDBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return err
	}
	store.addTreeLink(body.CellID.Name, body.Msg.Payload.PortTreeID.Name, TreeLink{Port: body.PortNo, Role: "Child"})
	return nil
}
