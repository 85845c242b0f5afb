package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent chan sentMessage
}

type sentMessage struct {
	payload []byte
	binary  bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan sentMessage, 16)}
}

func (f *fakeSender) SendUpstream(payload []byte, binary bool) error {
	f.sent <- sentMessage{payload: payload, binary: binary}
	return nil
}

func TestPlayerReplaysMessagesInOrder(t *testing.T) {
	rec := &Recording{
		Messages: []Message{
			{AtMs: 0, Data: "first", Binary: false},
			{AtMs: 10, Data: "second", Binary: false},
		},
	}
	sender := newFakeSender()
	done := make(chan struct{})
	p := NewPlayer(rec, sender, func() { close(done) })

	p.Start()

	first := <-sender.sent
	assert.Equal(t, []byte("first"), first.payload)

	second := <-sender.sent
	assert.Equal(t, []byte("second"), second.payload)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onDone was never called")
	}
}

func TestPlayerPauseStopsDeliveryUntilResume(t *testing.T) {
	rec := &Recording{
		Messages: []Message{
			{AtMs: 0, Data: "immediate", Binary: false},
			{AtMs: 500, Data: "later", Binary: false},
		},
	}
	sender := newFakeSender()
	p := NewPlayer(rec, sender, nil)

	p.Start()
	<-sender.sent // "immediate"

	p.Pause()
	assert.True(t, p.Paused())

	select {
	case <-sender.sent:
		t.Fatal("no message should be delivered while paused")
	case <-time.After(50 * time.Millisecond):
	}

	p.Resume()
	assert.False(t, p.Paused())

	select {
	case m := <-sender.sent:
		assert.Equal(t, []byte("later"), m.payload)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the remaining message after resume")
	}
}

func TestPlayerStopCancelsPendingTimers(t *testing.T) {
	rec := &Recording{
		Messages: []Message{
			{AtMs: 200, Data: "late", Binary: false},
		},
	}
	sender := newFakeSender()
	p := NewPlayer(rec, sender, nil)
	p.Start()
	p.Stop()

	select {
	case <-sender.sent:
		t.Fatal("stopped player must not deliver scheduled messages")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPlayerDecodesBinaryPayload(t *testing.T) {
	rec := &Recording{
		Messages: []Message{
			{AtMs: 0, Data: "/wA=", Binary: true},
		},
	}
	sender := newFakeSender()
	p := NewPlayer(rec, sender, nil)
	p.Start()

	m := <-sender.sent
	require.True(t, m.binary)
	assert.Equal(t, []byte{0xff, 0x00}, m.payload)
}
