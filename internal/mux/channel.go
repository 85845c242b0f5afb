package mux

import (
	"sync"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
)

type ChannelState int

const (
	StateConnecting ChannelState = iota
	StateOpen
	StateClosing
	StateClosed
)

// Message is one inbound payload delivered to a channel's subscriber.
type Message struct {
	Binary  bool
	Payload []byte
}

// ChannelHandler is invoked when the peer announces a new child of this
// channel via CreateChannel. The handler owns child for its lifetime and
// is responsible for calling child.OnMessage/child.Send as needed.
type ChannelHandler func(child *Channel, init []byte)

// Channel is one logical stream inside a multiplexer, addressed by a u32
// id that is only unique among its own siblings (ids are scoped to a
// parent's namespace, not globally).
type Channel struct {
	mux    *Mux // only set on the root channel
	parent *Channel
	id     uint32

	mu          sync.Mutex
	state       ChannelState
	nextChildID uint32
	children    map[uint32]*Channel
	onChannel   ChannelHandler
	onMessage   func(Message)
	sendQueue   [][]byte // payload, queued while CONNECTING

	recv chan Message
}

func newChannel(mux *Mux, parent *Channel, id uint32, state ChannelState) *Channel {
	return &Channel{
		mux:      mux,
		parent:   parent,
		id:       id,
		state:    state,
		children: make(map[uint32]*Channel),
		recv:     make(chan Message, 64),
	}
}

// ID returns this channel's id within its parent's namespace (0 for root).
func (c *Channel) ID() uint32 { return c.id }

func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnChannel registers the handler invoked when the peer creates a child of
// this channel. Must be set before the peer can create children.
func (c *Channel) OnChannel(h ChannelHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChannel = h
}

// OnMessage registers a push-style handler for inbound payloads on this
// channel, as an alternative to reading from Recv().
func (c *Channel) OnMessage(f func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = f
}

// Recv returns the channel's inbound message stream, for pull-style
// consumers (e.g. the FSLS file channel's request/response loop).
func (c *Channel) Recv() <-chan Message { return c.recv }

// CreateChild allocates a new child channel and announces it to the peer
// with the given init blob. The child is OPEN as soon as it is created
// (only an OPEN channel can create children); it does not pass through
// CONNECTING, so its writes are never queued. This applies to the root
// channel too: once
// Close has run, root is CLOSED and can no longer spawn children.
func (c *Channel) CreateChild(init []byte) (*Channel, error) {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return nil, gwerrors.New(gwerrors.InvalidState, "cannot create child on channel that is not open")
	}
	id, err := c.allocateChildIDLocked()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	child := newChannel(nil, c, id, StateOpen)
	c.children[id] = child
	c.mu.Unlock()

	c.dispatch(FrameCreateChannel, id, init)
	return child, nil
}

func (c *Channel) allocateChildIDLocked() (uint32, error) {
	start := c.nextChildID
	for {
		id := c.nextChildID
		c.nextChildID++
		if _, occupied := c.children[id]; !occupied {
			return id, nil
		}
		if c.nextChildID == start {
			return 0, gwerrors.New(gwerrors.CapacityExhausted, "channel id space exhausted")
		}
	}
}

// newChildFromPeer registers a child announced by the peer and advances
// the local id cursor past it to avoid future collisions.
func (c *Channel) newChildFromPeer(id uint32, init []byte) *Channel {
	c.mu.Lock()
	child := newChannel(nil, c, id, StateOpen)
	c.children[id] = child
	if id >= c.nextChildID {
		c.nextChildID = id + 1
	}
	handler := c.onChannel
	c.mu.Unlock()

	if handler != nil {
		handler(child, init)
	}
	return child
}

// Send queues/dispatches payload on this channel. Fails if the channel is
// CLOSING or CLOSED.
func (c *Channel) Send(payload []byte, binary bool) error {
	c.mu.Lock()
	state := c.state
	if state == StateClosing || state == StateClosed {
		c.mu.Unlock()
		return gwerrors.New(gwerrors.InvalidState, "send on closing/closed channel")
	}
	if state == StateConnecting {
		c.sendQueue = append(c.sendQueue, payload)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	t := FrameRawBinary
	if !binary {
		t = FrameRawString
	}
	if c.parent == nil {
		// Root never originates raw payload sends; callers operate on a
		// child of root for actual traffic.
		return gwerrors.New(gwerrors.InvalidState, "cannot send on root channel directly")
	}
	c.parent.dispatch(t, c.id, payload)
	return nil
}

func (c *Channel) markOpen() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateOpen
	queued := c.sendQueue
	c.sendQueue = nil
	c.mu.Unlock()

	for _, payload := range queued {
		_ = c.Send(payload, true)
	}
}

// Close closes this channel and all descendants, notifying the peer
// unless it is already closed locally as a result of an inbound
// CloseChannel (propagateToPeer=false in that case).
func (c *Channel) Close(code uint16, reason string) {
	c.closeLocal(code, reason, true)
}

func (c *Channel) closeLocal(code uint16, reason string, propagateToPeer bool) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	children := make([]*Channel, 0, len(c.children))
	for _, child := range c.children {
		children = append(children, child)
	}
	c.children = make(map[uint32]*Channel)
	c.mu.Unlock()

	close(c.recv)

	for _, child := range children {
		child.closeLocal(code, reason, false)
	}

	if propagateToPeer {
		if c.parent == nil {
			if c.mux != nil {
				c.mux.closeRaw(code, reason)
			}
			return
		}
		c.parent.dispatch(FrameCloseChannel, c.id, encodeClosePayload(code, reason))
		c.parent.mu.Lock()
		delete(c.parent.children, c.id)
		c.parent.mu.Unlock()
	}
}

// deliver pushes an inbound payload to this channel's subscribers.
func (c *Channel) deliver(payload []byte, binary bool) {
	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()

	msg := Message{Binary: binary, Payload: payload}
	if handler != nil {
		handler(msg)
		return
	}
	select {
	case c.recv <- msg:
	default:
	}
}

// dispatch sends a frame addressed to targetID within this channel's own
// namespace: for the root channel this is a raw outer frame; for any
// other channel it is wrapped one level deeper as a Data frame addressed
// at this channel's own id within ITS parent's namespace.
func (c *Channel) dispatch(t FrameType, targetID uint32, payload []byte) {
	if c.parent == nil {
		if c.mux != nil {
			c.mux.writeRaw(encodeFrame(t, targetID, payload))
		}
		return
	}
	inner := encodeFrame(t, targetID, payload)
	c.parent.dispatch(FrameData, c.id, inner)
}

// handleIncoming processes a frame that lives in this channel's own
// namespace (i.e. targetID addresses one of this channel's children).
func (c *Channel) handleIncoming(f frame) {
	switch f.Type {
	case FrameCreateChannel:
		c.newChildFromPeer(f.ChannelID, f.Payload)

	case FrameCloseChannel:
		c.mu.Lock()
		child, ok := c.children[f.ChannelID]
		if ok {
			delete(c.children, f.ChannelID)
		}
		c.mu.Unlock()
		if ok {
			code, reason := decodeClosePayload(f.Payload)
			child.closeLocal(code, reason, false)
		}

	case FrameRawBinary, FrameRawString:
		c.mu.Lock()
		child, ok := c.children[f.ChannelID]
		c.mu.Unlock()
		if ok {
			child.deliver(f.Payload, f.Type == FrameRawBinary)
		}

	case FrameData:
		c.mu.Lock()
		child, ok := c.children[f.ChannelID]
		c.mu.Unlock()
		if !ok {
			return
		}
		inner, err := decodeFrame(f.Payload)
		if err != nil {
			return
		}
		child.handleIncoming(inner)
	}
}
