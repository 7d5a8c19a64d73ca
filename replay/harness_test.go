package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/earthcomputing/cellfabric/names"
	portpkg "github.com/earthcomputing/cellfabric/port"
	"github.com/earthcomputing/cellfabric/trace"
)

type recordingSink struct {
	bytesCalls  []Dispatch
	statusCalls []StatusEvent
}

func (s *recordingSink) DeliverBytes(port names.PortNo, isAit bool, uuid names.TreeUUID, bytes []byte) {
	s.bytesCalls = append(s.bytesCalls, Dispatch{Port: port, IsAit: isAit, UUID: uuid, Bytes: bytes})
}

func (s *recordingSink) DeliverStatus(port names.PortNo, isBorder bool, status portpkg.Status) {
	s.statusCalls = append(s.statusCalls, StatusEvent{Port: port, IsBorder: isBorder, Status: status})
}

func writeRecord(t *testing.T, f *os.File, format string, body interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := trace.Record{Header: trace.Header{Format: format}, Body: raw}
	line, err := json.Marshal(rec)
	require.NoError(t, err)
	_, err = f.Write(append(line, '\n'))
	require.NoError(t, err)
}

func TestReplayFileDispatchesKnownFormats(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cell0.json")
	f, err := os.Create(path)
	require.NoError(t, err)

	writeRecord(t, f, DispatchFormat, Dispatch{Port: 3, Bytes: []byte("hi")})
	writeRecord(t, f, StatusFormat, StatusEvent{Port: 3, Status: portpkg.Status{Connected: true}})
	writeRecord(t, f, "unrelated_format", map[string]int{"x": 1})
	require.NoError(t, f.Close())

	sink := &recordingSink{}
	h := NewHarness(sink)
	n, err := h.ReplayFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, sink.bytesCalls, 1)
	require.Equal(t, names.PortNo(3), sink.bytesCalls[0].Port)
	require.Equal(t, []byte("hi"), sink.bytesCalls[0].Bytes)
	require.Len(t, sink.statusCalls, 1)
	require.True(t, sink.statusCalls[0].Status.Connected)
}

func TestReplayFileMalformedLineErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o644))

	h := NewHarness(&recordingSink{})
	_, err := h.ReplayFile(path)
	require.Error(t, err)
}
