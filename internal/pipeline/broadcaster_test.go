package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesCachedSnapshot(t *testing.T) {
	b := NewBroadcaster[int]()
	b.SetSnapshot(42)

	ch := b.Subscribe("a", 1)
	select {
	case v := <-ch:
		assert.Equal(t, 42, v)
	default:
		t.Fatal("expected cached snapshot to be delivered immediately")
	}
}

func TestBroadcastFansOutToAllSubscribers(t *testing.T) {
	b := NewBroadcaster[string]()
	a := b.Subscribe("a", 1)
	c := b.Subscribe("b", 1)

	b.Broadcast("hello")

	assert.Equal(t, "hello", <-a)
	assert.Equal(t, "hello", <-c)
}

func TestBroadcastDropsFullSubscriberAndUnsubscribesIt(t *testing.T) {
	b := NewBroadcaster[int]()
	ch := b.Subscribe("slow", 1)
	b.Broadcast(1) // fills the buffer of 1
	b.Broadcast(2) // subscriber is full, dropped and unsubscribed

	assert.Equal(t, 1, <-ch)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster[int]()
	ch := b.Subscribe("a", 1)
	b.Unsubscribe("a")

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestCloseClosesAllSubscriberChannels(t *testing.T) {
	b := NewBroadcaster[int]()
	a := b.Subscribe("a", 1)
	c := b.Subscribe("b", 1)
	b.Close()

	_, ok := <-a
	assert.False(t, ok)
	_, ok = <-c
	assert.False(t, ok)
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewBroadcaster[int]()
	b.Close()

	ch := b.Subscribe("late", 1)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcastAfterCloseIsNoOp(t *testing.T) {
	b := NewBroadcaster[int]()
	ch := b.Subscribe("a", 1)
	b.Close()
	require.NotPanics(t, func() { b.Broadcast(5) })
	_, ok := <-ch
	assert.False(t, ok)
}
