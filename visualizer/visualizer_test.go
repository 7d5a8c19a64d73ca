package visualizer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earthcomputing/cellfabric/trace"
)

func postJSON(t *testing.T, mux http.Handler, path string, rec trace.Record) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(rec)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(body)))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestBorderCellStartPopulatesGeometry(t *testing.T) {
	store := NewStore()
	mux := Mux(store, "")

	body, _ := json.Marshal(cellStartBody{
		CellID:   struct{ Name string }{Name: "C0"},
		Location: [2]int{1, 2},
	})
	rr := postJSON(t, mux, "/border_cell_start", trace.Record{Header: trace.Header{Format: "border_cell_start"}, Body: body})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/geometry", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var snap geometrySnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Equal(t, Location{Row: 1, Col: 2, IsBorder: true}, snap.Geometry["C0"])
}

func TestResetClearsStore(t *testing.T) {
	store := NewStore()
	store.setGeometry("C0", Location{Row: 1, Col: 1})
	mux := Mux(store, "")

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/reset", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, store.geometrySnapshot().Geometry)
}

func TestReplayDispatchesRecognizedFormatsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.json")

	writeLine := func(f *os.File, format string, body interface{}) {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rec := trace.Record{Header: trace.Header{Format: format}, Body: raw}
		line, err := json.Marshal(rec)
		require.NoError(t, err)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	writeLine(f, "interior_cell_start", cellStartBody{CellID: struct{ Name string }{Name: "C1"}, Location: [2]int{0, 0}})
	writeLine(f, "some_unrelated_format", map[string]int{"x": 1})
	require.NoError(t, f.Close())

	store := NewStore()
	n, err := replayIntoStore(store, path)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, store.geometrySnapshot().Geometry, "C1")
}
