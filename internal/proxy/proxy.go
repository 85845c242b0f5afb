// Package proxy implements the WebSocket-to-upstream-ADB-socket bridge:
// one Session per browser connection, lazily opening the upstream socket,
// queueing downstream traffic until it is ready, and hosting the
// recorder/player pair and the sync/mirror hookup.
package proxy

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/recorder"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

// Mirror is implemented by the sync fabric; a session forwards every
// downstream frame it processes to Mirror so followers of this session
// (if any) receive it too.
type Mirror interface {
	Dispatch(sourceID string, payload []byte, binary bool)
}

type State string

const (
	StateStopped State = "stop"
	StateRecord  State = "record"
	StateRun     State = "run"
	StatePause   State = "pause"
)

// Session owns one downstream socket and lazily opens one upstream
// socket, forwarding bytes verbatim in both directions.
type Session struct {
	ID          string
	downstream  *websocket.Conn
	upstreamURL string
	mirror      Mirror
	recordsDir  string
	statusSvc   *recorder.StatusService
	logMeta     bool
	logPayload  bool

	mu            sync.Mutex
	upstream      *websocket.Conn
	pending       [][]byte
	pendingBinary []bool
	state         State
	rec           *recorder.Recorder
	player        *recorder.Player
	replayQueued  string
	video         *codecWatcher
}

// Options configures a new session; zero-value fields mean "no logging /
// no record / no replay / session = device" per the design notes.
type Options struct {
	ID          string
	Downstream  *websocket.Conn
	UpstreamURL string
	Mirror      Mirror
	RecordsDir  string
	StatusSvc   *recorder.StatusService
	RecordID    string // non-empty: start recording immediately
	ReplayID    string // non-empty: start playback immediately once upstream opens
	LogMeta     bool   // emit a size/kind log line per downstream frame
	LogPayload  bool   // DEVICE_SOCKET_LOG_PAYLOAD: include the full payload in that log line
}

func New(opts Options) *Session {
	s := &Session{
		ID:          opts.ID,
		downstream:  opts.Downstream,
		upstreamURL: opts.UpstreamURL,
		mirror:      opts.Mirror,
		recordsDir:  recorder.Dir(opts.RecordsDir),
		statusSvc:   opts.StatusSvc,
		state:       StateStopped,
		video:       newCodecWatcher(),
		logMeta:     opts.LogMeta,
		logPayload:  opts.LogPayload,
	}
	if opts.RecordID != "" {
		_, _ = s.StartRecording(opts.RecordID)
	}
	s.replayQueued = opts.ReplayID
	return s
}

// SendUpstream implements recorder.Sender for the player.
func (s *Session) SendUpstream(payload []byte, binary bool) error {
	s.mu.Lock()
	up := s.upstream
	s.mu.Unlock()
	if up == nil {
		return gwerrors.New(gwerrors.InvalidState, "upstream not open")
	}
	mt := websocket.TextMessage
	if binary {
		mt = websocket.BinaryMessage
	}
	return up.WriteMessage(mt, payload)
}

// openUpstream lazily dials the upstream socket and drains any queued
// downstream frames in order.
func (s *Session) openUpstream() error {
	s.mu.Lock()
	if s.upstream != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(s.upstreamURL, nil)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Upstream, err, "dialing upstream")
	}

	s.mu.Lock()
	s.upstream = conn
	queued := s.pending
	queuedBinary := s.pendingBinary
	s.pending = nil
	s.pendingBinary = nil
	replayID := s.replayQueued
	s.replayQueued = ""
	s.mu.Unlock()

	for i, payload := range queued {
		if err := s.SendUpstream(payload, queuedBinary[i]); err != nil {
			util.GetLogger().Warn("proxy: failed flushing queued frame", "session", s.ID, "error", err)
		}
	}

	go s.readUpstream()

	if replayID != "" {
		if _, err := s.RunRecording(replayID); err != nil {
			util.GetLogger().Warn("proxy: failed to start queued replay", "session", s.ID, "error", err)
		}
	}
	return nil
}

func (s *Session) readUpstream() {
	s.mu.Lock()
	up := s.upstream
	s.mu.Unlock()

	for {
		mt, data, err := up.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok && ce.Code != websocket.CloseAbnormalClosure {
				s.closeDownstream(nil)
				return
			}
			s.closeDownstream(gwerrors.Wrap(gwerrors.Upstream, err, "upstream read failed"))
			return
		}
		if mt == websocket.BinaryMessage {
			s.video.inspect(s.ID, data)
		}
		_ = s.downstream.WriteMessage(mt, data)
	}
}

func (s *Session) closeDownstream(cause error) {
	code := 4010
	reason := "upstream closed"
	if cause != nil {
		code = gwerrors.CloseCode(cause)
		reason = cause.Error()
	}
	_ = s.downstream.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Time{})
	_ = s.downstream.Close()
}

// HandleDownstream processes one frame received from the browser: log,
// capture (if recording), forward upstream (or enqueue), and mirror to
// any sync followers.
func (s *Session) HandleDownstream(payload []byte, binary bool) {
	if s.logMeta {
		s.logDownstreamFrame(payload, binary)
	}

	s.mu.Lock()
	if s.rec != nil && !s.rec.Paused() {
		s.rec.Capture(payload, binary)
	}
	up := s.upstream
	s.mu.Unlock()

	if up == nil {
		s.mu.Lock()
		s.pending = append(s.pending, payload)
		s.pendingBinary = append(s.pendingBinary, binary)
		s.mu.Unlock()
		if err := s.openUpstream(); err != nil {
			util.GetLogger().Error("proxy: upstream open failed", "session", s.ID, "error", err)
			s.closeDownstream(err)
			return
		}
	} else if err := s.SendUpstream(payload, binary); err != nil {
		util.GetLogger().Warn("proxy: upstream send failed", "session", s.ID, "error", err)
	}

	if s.mirror != nil {
		s.mirror.Dispatch(s.ID, payload, binary)
	}
}

// logDownstreamFrame emits a size/kind log line per downstream frame when
// the session opted into logging, including the full payload only when
// DEVICE_SOCKET_LOG_PAYLOAD is set process-wide.
func (s *Session) logDownstreamFrame(payload []byte, binary bool) {
	kind := "text"
	if binary {
		kind = "binary"
	}
	if s.logPayload {
		util.GetLogger().Debug("proxy: downstream frame", "session", s.ID, "kind", kind, "size", len(payload), "payload", payload)
		return
	}
	util.GetLogger().Debug("proxy: downstream frame", "session", s.ID, "kind", kind, "size", len(payload))
}

// ForwardFromSync delivers a mirrored frame from another session's
// downstream traffic into this session, honoring the same pending-queue
// semantics as a native downstream frame (but never re-captured or
// re-mirrored — mirrored traffic does not chain).
func (s *Session) ForwardFromSync(payload []byte, binary bool) {
	s.mu.Lock()
	up := s.upstream
	s.mu.Unlock()
	if up == nil {
		s.mu.Lock()
		s.pending = append(s.pending, payload)
		s.pendingBinary = append(s.pendingBinary, binary)
		s.mu.Unlock()
		if err := s.openUpstream(); err != nil {
			util.GetLogger().Warn("proxy: sync-forward upstream open failed", "session", s.ID, "error", err)
		}
		return
	}
	if err := s.SendUpstream(payload, binary); err != nil {
		util.GetLogger().Warn("proxy: sync-forward send failed", "session", s.ID, "error", err)
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) publishStatus(fileID string) {
	if s.statusSvc == nil {
		return
	}
	mode := recorder.ModeStop
	switch s.state {
	case StateRecord:
		mode = recorder.ModeRecord
	case StateRun:
		mode = recorder.ModeRun
	case StatePause:
		mode = recorder.ModePause
	}
	s.statusSvc.Update(s.ID, mode, fileID)
}

// StartRecording begins capture, replacing (persisting first) any
// already-running recorder. Requires state stop.
func (s *Session) StartRecording(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startRecordingLocked(id)
}

func (s *Session) startRecordingLocked(id string) (string, error) {
	if s.state != StateStopped {
		return "", gwerrors.New(gwerrors.InvalidState, "cannot start recording unless stopped")
	}
	if s.rec != nil {
		if _, err := s.rec.Persist(s.recordsDir); err != nil {
			util.GetLogger().Warn("proxy: failed persisting replaced recorder", "session", s.ID, "error", err)
		}
	}
	resolved := recorder.NormalizeID(id)
	s.rec = recorder.New(resolved, s.upstreamURL)
	s.state = StateRecord
	s.publishStatus(resolved)
	return resolved, nil
}

// StopRecording persists and clears the active recorder. Requires state
// record or pause.
func (s *Session) StopRecording() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecord && s.state != StatePause {
		return "", gwerrors.New(gwerrors.InvalidState, "no active recording to stop")
	}
	if s.rec == nil {
		return "", gwerrors.New(gwerrors.InvalidState, "no active recorder")
	}
	path, err := s.rec.Persist(s.recordsDir)
	id := s.rec.ID()
	s.rec = nil
	s.state = StateStopped
	s.publishStatus("")
	if err != nil {
		return "", errors.Wrap(err, "persisting recording")
	}
	_ = id
	return path, nil
}

// Stop halts whichever of recorder/player is active. Per the decided
// open question, the recorder takes priority if both are somehow set.
func (s *Session) Stop() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.rec != nil:
		path, err := s.rec.Persist(s.recordsDir)
		s.rec = nil
		s.state = StateStopped
		s.publishStatus("")
		return "record", path, err
	case s.player != nil:
		s.player.Stop()
		s.player = nil
		s.state = StateStopped
		s.publishStatus("")
		return "player", "", nil
	default:
		s.state = StateStopped
		s.publishStatus("")
		return "none", "", nil
	}
}

// RunRecording loads id and begins playback. Requires state stop.
func (s *Session) RunRecording(id string) (string, error) {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return "", gwerrors.New(gwerrors.InvalidState, "cannot run recording unless stopped")
	}
	if s.upstream == nil {
		s.replayQueued = id
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	rec, err := recorder.Load(s.recordsDir, id)
	if err != nil {
		return "", errors.Wrap(err, "loading recording")
	}

	s.mu.Lock()
	s.player = recorder.NewPlayer(rec, s, func() {
		s.mu.Lock()
		s.player = nil
		s.state = StateStopped
		s.mu.Unlock()
		s.publishStatus("")
	})
	s.state = StateRun
	s.mu.Unlock()

	s.player.Start()
	s.publishStatus(id)
	return id, nil
}

// Pause freezes whichever of recorder/player is active.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateRecord:
		s.rec.Pause()
	case StateRun:
		s.player.Pause()
	default:
		return gwerrors.New(gwerrors.InvalidState, "nothing to pause")
	}
	s.state = StatePause
	s.publishStatus("")
	return nil
}

// Resume reverses Pause, returning to record or run.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePause {
		return gwerrors.New(gwerrors.InvalidState, "not paused")
	}
	switch {
	case s.rec != nil:
		s.rec.Resume()
		s.state = StateRecord
	case s.player != nil:
		s.player.Resume()
		s.state = StateRun
	default:
		return gwerrors.New(gwerrors.InvalidState, "nothing to resume")
	}
	s.publishStatus("")
	return nil
}

// Release tears down both sockets and any in-flight timers. Idempotent.
func (s *Session) Release() {
	s.mu.Lock()
	if s.player != nil {
		s.player.Stop()
		s.player = nil
	}
	up := s.upstream
	s.upstream = nil
	s.mu.Unlock()
	if up != nil {
		_ = up.Close()
	}
}
