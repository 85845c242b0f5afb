package recorder

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

// Sender is the minimal upstream-write capability the player needs; the
// proxy's upstream socket satisfies it.
type Sender interface {
	SendUpstream(payload []byte, binary bool) error
}

// Player schedules one timer per recorded message and replays it upstream
// at its recorded offset, honoring pause/resume.
type Player struct {
	mu       sync.Mutex
	rec      *Recording
	sender   Sender
	timers   []*time.Timer
	offset   time.Duration // elapsed time already played before the current run
	startRun time.Time
	paused   bool
	onDone   func()
}

func NewPlayer(rec *Recording, sender Sender, onDone func()) *Player {
	return &Player{rec: rec, sender: sender, onDone: onDone}
}

// Start schedules all remaining messages from the current offset.
func (p *Player) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startRun = time.Now()
	p.scheduleLocked()
}

func (p *Player) scheduleLocked() {
	var lastAt time.Duration
	for _, m := range p.rec.Messages {
		at := time.Duration(m.AtMs) * time.Millisecond
		if at < p.offset {
			continue
		}
		if at > lastAt {
			lastAt = at
		}
		delay := at - p.offset
		msg := m
		timer := time.AfterFunc(delay, func() { p.fire(msg) })
		p.timers = append(p.timers, timer)
	}
	doneDelay := lastAt - p.offset + 200*time.Millisecond
	if doneDelay < 0 {
		doneDelay = 200 * time.Millisecond
	}
	final := time.AfterFunc(doneDelay, func() {
		if p.onDone != nil {
			p.onDone()
		}
	})
	p.timers = append(p.timers, final)
}

func (p *Player) fire(m Message) {
	p.mu.Lock()
	paused := p.paused
	p.mu.Unlock()
	if paused {
		return
	}
	var payload []byte
	if m.Binary {
		decoded, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			util.GetLogger().Warn("player: bad base64 payload, skipping", "error", err)
			return
		}
		payload = decoded
	} else {
		payload = []byte(m.Data)
	}
	if err := p.sender.SendUpstream(payload, m.Binary); err != nil {
		util.GetLogger().Warn("player: upstream send failed", "error", err)
	}
}

// Pause cancels all pending timers and freezes the elapsed offset.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.offset += time.Since(p.startRun)
}

// Resume reschedules remaining messages from the frozen offset.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	p.startRun = time.Now()
	p.scheduleLocked()
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Stop cancels all pending timers permanently.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}
