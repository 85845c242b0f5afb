package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusServiceUpdateBroadcastsFullSnapshot(t *testing.T) {
	s := NewStatusService()
	sub := s.Subscribe("watcher")

	s.Update("session-a", ModeRecord, "")
	snap := <-sub
	require.Contains(t, snap, "session-a")
	assert.Equal(t, ModeRecord, snap["session-a"].Mode)

	s.Update("session-b", ModeRun, "file-1")
	snap = <-sub
	assert.Len(t, snap, 2)
	assert.Equal(t, ModeRun, snap["session-b"].Mode)
	assert.Equal(t, "file-1", snap["session-b"].FileID)
	assert.Equal(t, ModeRecord, snap["session-a"].Mode)
}

func TestStatusServiceNewSubscriberGetsCurrentSnapshot(t *testing.T) {
	s := NewStatusService()
	s.Update("session-a", ModeStop, "")

	sub := s.Subscribe("late-watcher")
	snap := <-sub
	assert.Equal(t, ModeStop, snap["session-a"].Mode)
}

func TestStatusServiceUnsubscribe(t *testing.T) {
	s := NewStatusService()
	sub := s.Subscribe("watcher")
	s.Unsubscribe("watcher")

	_, ok := <-sub
	assert.False(t, ok)
}
