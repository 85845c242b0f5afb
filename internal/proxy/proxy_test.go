package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

// newServerConn spins up an httptest server that upgrades the one inbound
// request to a WebSocket and hands the server-side conn back over connCh,
// along with the dialed client-side conn the test can read/write through to
// keep the peer alive.
func newServerConn(t *testing.T) (serverConn *websocket.Conn, clientConn *websocket.Conn, wsURL string) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case serverConn = <-connCh:
	case <-time.After(time.Second):
		t.Fatal("server never accepted websocket upgrade")
	}
	t.Cleanup(func() { _ = serverConn.Close() })
	return serverConn, client, wsURL
}

type fakeMirror struct {
	dispatched chan mirrorCall
}

type mirrorCall struct {
	source  string
	payload []byte
	binary  bool
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{dispatched: make(chan mirrorCall, 8)}
}

func (f *fakeMirror) Dispatch(sourceID string, payload []byte, binary bool) {
	f.dispatched <- mirrorCall{source: sourceID, payload: payload, binary: binary}
}

func TestStartStopRecordingPersistsFile(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", UpstreamURL: "ws://unused", RecordsDir: dir})

	id, err := s.StartRecording("my-rec")
	require.NoError(t, err)
	assert.Equal(t, "my-rec", id)
	assert.Equal(t, StateRecord, s.State())

	path, err := s.StopRecording()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, StateStopped, s.State())
}

func TestStartRecordingFailsWhenAlreadyRecording(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir})

	_, err := s.StartRecording("rec-1")
	require.NoError(t, err)

	_, err = s.StartRecording("rec-2")
	assert.Error(t, err)
}

func TestPauseResumeRecording(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir})
	_, err := s.StartRecording("rec-1")
	require.NoError(t, err)

	require.NoError(t, s.Pause())
	assert.Equal(t, StatePause, s.State())

	require.NoError(t, s.Resume())
	assert.Equal(t, StateRecord, s.State())
}

func TestResumeFailsWhenNotPaused(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir})
	assert.Error(t, s.Resume())
}

func TestPauseFailsWhenNothingActive(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir})
	assert.Error(t, s.Pause())
}

func TestStopWithNoActiveRecorderOrPlayerReturnsNone(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir})
	kind, path, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, "none", kind)
	assert.Empty(t, path)
}

func TestRunRecordingQueuesWhenUpstreamNotOpen(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir, UpstreamURL: "ws://unreachable"})
	id, err := s.RunRecording("some-recording")
	require.NoError(t, err)
	assert.Equal(t, "some-recording", id)
	assert.Equal(t, StateStopped, s.State())
}

func TestHandleDownstreamOpensUpstreamCapturesAndMirrors(t *testing.T) {
	upstreamServer, upstreamClient, upstreamURL := newServerConn(t)
	downstreamServer, downstreamClient, _ := newServerConn(t)

	dir := t.TempDir()
	mirror := newFakeMirror()
	s := New(Options{
		ID:          "sess-1",
		Downstream:  downstreamServer,
		UpstreamURL: upstreamURL,
		Mirror:      mirror,
		RecordsDir:  dir,
		RecordID:    "auto-rec",
	})

	s.HandleDownstream([]byte("hello upstream"), true)

	_, got, err := upstreamClient.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello upstream", string(got))

	call := <-mirror.dispatched
	assert.Equal(t, "sess-1", call.source)
	assert.Equal(t, []byte("hello upstream"), call.payload)

	require.NoError(t, upstreamServer.WriteMessage(websocket.BinaryMessage, []byte("reply")))
	_, reply, err := downstreamClient.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "reply", string(reply))

	_, err = s.StopRecording()
	require.NoError(t, err)
}

func TestHandleDownstreamWithLogMetaDoesNotAlterForwarding(t *testing.T) {
	upstreamServer, upstreamClient, upstreamURL := newServerConn(t)
	downstreamServer, _, _ := newServerConn(t)
	_ = upstreamServer

	dir := t.TempDir()
	s := New(Options{
		ID:          "sess-1",
		Downstream:  downstreamServer,
		UpstreamURL: upstreamURL,
		RecordsDir:  dir,
		LogMeta:     true,
		LogPayload:  true,
	})

	s.HandleDownstream([]byte("logged frame"), false)

	_, got, err := upstreamClient.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "logged frame", string(got))
}

func TestReleaseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{ID: "sess-1", RecordsDir: dir})
	s.Release()
	s.Release()
}
