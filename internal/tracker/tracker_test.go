package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDeviceClassifiesTransportByIDShape(t *testing.T) {
	tr := New(nil, nil)
	usb := tr.resolveDevice("R3CR10ABCDE")
	assert.Equal(t, TransportUSB, usb.transport)

	wifi := tr.resolveDevice("192.168.1.5:5555")
	assert.Equal(t, TransportWiFi, wifi.transport)
}

func TestSetRegisteredUpdatesExistingRecord(t *testing.T) {
	tr := New(nil, nil)
	tr.mu.Lock()
	tr.byID["dev-1"] = DeviceRecord{ID: "dev-1", Registered: false}
	tr.mu.Unlock()

	tr.SetRegistered("dev-1", true)

	tr.mu.RLock()
	rec := tr.byID["dev-1"]
	tr.mu.RUnlock()
	assert.True(t, rec.Registered)
}

func TestSnapshotReturnsCopyOfCurrentRecords(t *testing.T) {
	tr := New(nil, nil)
	tr.mu.Lock()
	tr.byID["dev-1"] = DeviceRecord{ID: "dev-1"}
	tr.byID["dev-2"] = DeviceRecord{ID: "dev-2"}
	tr.mu.Unlock()

	snap := tr.Snapshot()
	assert.Len(t, snap, 2)
}

func TestStaleReportsTrueBeforeFirstRefresh(t *testing.T) {
	tr := New(nil, nil)
	assert.True(t, tr.Stale())
}

func TestStaleReportsFalseRightAfterRefresh(t *testing.T) {
	tr := New(nil, nil)
	tr.mu.Lock()
	tr.lastRefresh = time.Now()
	tr.mu.Unlock()
	assert.False(t, tr.Stale())
}

func TestSubscribeDeliversSnapshotImmediately(t *testing.T) {
	tr := New(nil, nil)
	tr.bc.SetSnapshot([]DeviceRecord{{ID: "dev-1"}})

	ch := tr.Subscribe("watcher")
	select {
	case snap := <-ch:
		require.Len(t, snap, 1)
		assert.Equal(t, "dev-1", snap[0].ID)
	case <-time.After(time.Second):
		t.Fatal("expected immediate snapshot delivery")
	}
	tr.Unsubscribe("watcher")
}
