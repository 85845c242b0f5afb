package mux

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

// Mux wraps one raw WebSocket as a tree of multiplexed channels. The root
// channel (id 0) represents the socket itself; all real traffic flows
// through children (and their descendants) created on top of it.
type Mux struct {
	conn *websocket.Conn
	root *Channel

	writeMu sync.Mutex
	writeQ  chan []byte
	done    chan struct{}
	once    sync.Once
}

// New wraps conn and starts its single-writer and read-dispatch loops.
// The caller should register conn's root.OnChannel handler before Run
// returns control to the peer, i.e. before any CreateChannel frame can
// arrive.
func New(conn *websocket.Conn) *Mux {
	m := &Mux{
		conn:   conn,
		writeQ: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
	m.root = newChannel(m, nil, 0, StateOpen)
	go m.writeLoop()
	return m
}

// Root returns the root channel, whose children are the top-level
// channels multiplexed over the wrapped socket.
func (m *Mux) Root() *Channel { return m.root }

// Run reads frames from the socket until it closes or an unrecoverable
// protocol error occurs. It blocks the caller; run it in its own
// goroutine per connection.
func (m *Mux) Run() error {
	defer m.shutdown()
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := decodeFrame(data)
		if err != nil {
			util.GetLogger().Warn("mux: dropping malformed frame", "error", err)
			continue
		}
		m.root.handleIncoming(f)
	}
}

func (m *Mux) writeRaw(b []byte) {
	select {
	case m.writeQ <- b:
	case <-m.done:
	}
}

func (m *Mux) writeLoop() {
	for {
		select {
		case b := <-m.writeQ:
			m.writeMu.Lock()
			err := m.conn.WriteMessage(websocket.BinaryMessage, b)
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-m.done:
			return
		}
	}
}

func (m *Mux) closeRaw(code uint16, reason string) {
	_ = m.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(int(code), reason), time.Time{})
	_ = m.conn.Close()
	m.shutdown()
}

func (m *Mux) shutdown() {
	m.once.Do(func() { close(m.done) })
}

// Close tears down the root channel (and all descendants) and the
// underlying socket.
func (m *Mux) Close() {
	m.root.closeLocal(1000, "", false)
	_ = m.conn.Close()
	m.shutdown()
}
