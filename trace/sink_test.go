package trace

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestEmitWritesGlobalAndPerCellFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{OutputDir: dir, OutputFile: "out", CellID: "cell7", Repo: "cellfabric", ThreadID: 1})
	require.NoError(t, err)
	defer s.Close()

	s.Emit("border_cell_start", Params{TraceType: Trace, Module: "ca"}, map[string]any{"cell_id": "cell7"})

	globalPath := filepath.Join(dir, "out.json")
	cellPath := filepath.Join(dir, "out-cell7.json")
	waitFor(t, func() bool {
		return countLines(t, globalPath) == 1 && countLines(t, cellPath) == 1
	})

	data, err := os.ReadFile(globalPath)
	require.NoError(t, err)
	var rec Record
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &rec))
	require.Equal(t, "border_cell_start", rec.Header.Format)
	require.Equal(t, Trace, rec.Header.TraceType)
	require.NotEmpty(t, rec.Header.EventID)
}

func TestEmitPostsToServerAndDisablesOn404(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	s, err := New(Config{OutputDir: dir, OutputFile: "out", CellID: "c1", ServerURL: srv.URL})
	require.NoError(t, err)
	defer s.Close()

	s.Emit("geometry", Params{}, map[string]any{"a": 1})
	waitFor(t, func() bool { return hits == 1 })

	s.Emit("geometry", Params{}, map[string]any{"a": 2})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, hits, "format must be disabled after the first 404")
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{OutputDir: dir, OutputFile: "out", CellID: "c1", QueueDepth: 2})
	require.NoError(t, err)
	defer s.Close()

	// Fill well past capacity before the writer goroutine can drain it;
	// Dropped() should reflect at least one overflow.
	for i := 0; i < 50; i++ {
		s.queue.Push(Record{})
	}
	require.True(t, s.Dropped() > 0)
}
