package recorder

import (
	"sync"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/pipeline"
)

// SessionMode mirrors a session's record/player state machine.
type SessionMode string

const (
	ModeStop   SessionMode = "stop"
	ModeRecord SessionMode = "record"
	ModeRun    SessionMode = "run"
	ModePause  SessionMode = "pause"
)

// StatusSnapshot is broadcast to record-status subscribers whenever any
// session's recording state changes.
type StatusSnapshot struct {
	Session string      `json:"session"`
	Mode    SessionMode `json:"mode"`
	FileID  string      `json:"fileId,omitempty"`
}

// StatusService fans out recording-state transitions, grounded on the
// same broadcaster primitive the device tracker uses for device-list
// snapshots.
type StatusService struct {
	bc    *pipeline.Broadcaster[map[string]StatusSnapshot]
	mu    sync.Mutex
	state map[string]StatusSnapshot
}

func NewStatusService() *StatusService {
	return &StatusService{
		bc:    pipeline.NewBroadcaster[map[string]StatusSnapshot](),
		state: make(map[string]StatusSnapshot),
	}
}

func (s *StatusService) Update(session string, mode SessionMode, fileID string) {
	s.mu.Lock()
	s.state[session] = StatusSnapshot{Session: session, Mode: mode, FileID: fileID}
	snapshot := make(map[string]StatusSnapshot, len(s.state))
	for k, v := range s.state {
		snapshot[k] = v
	}
	s.mu.Unlock()

	s.bc.SetSnapshot(snapshot)
	s.bc.Broadcast(snapshot)
}

func (s *StatusService) Subscribe(id string) <-chan map[string]StatusSnapshot {
	return s.bc.Subscribe(id, 4)
}

func (s *StatusService) Unsubscribe(id string) { s.bc.Unsubscribe(id) }
