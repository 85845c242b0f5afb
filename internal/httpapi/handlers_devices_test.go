package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/connect"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/syncfabric"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/tracker"
)

type nullRegistry struct{}

func (nullRegistry) Get(id string) (syncfabric.Follower, bool) { return nil, false }

func newDeviceTestGateway() *gateway.Gateway {
	pref := connect.NewPreferenceService()
	return &gateway.Gateway{
		Tracker:    tracker.New(nil, pref),
		Preference: pref,
		Connect:    connect.NewController(pref, nil),
		KeepAwake:  connect.NewKeepAwakeService(),
		Sync:       syncfabric.New(nullRegistry{}),
	}
}

func TestHandleSyncSetAndGet(t *testing.T) {
	gw := newDeviceTestGateway()

	setBody, _ := json.Marshal(syncSetBody{Target: "dev-1", Devices: []string{"dev-2"}})
	setReq := httptest.NewRequest("POST", "/api/sync", bytes.NewReader(setBody))
	setRR := httptest.NewRecorder()
	handleSyncSet(gw)(setRR, setReq)
	assert.Equal(t, 200, setRR.Code)

	getReq := httptest.NewRequest("GET", "/api/sync", nil)
	getRR := httptest.NewRecorder()
	handleSyncGet(gw)(getRR, getReq)
	env := decodeEnvelope(t, getRR)
	require.True(t, env.Success)
}

func TestHandleSyncSetMissingTargetIsBadRequest(t *testing.T) {
	gw := newDeviceTestGateway()
	req := httptest.NewRequest("POST", "/api/sync", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handleSyncSet(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleSyncClear(t *testing.T) {
	gw := newDeviceTestGateway()
	gw.Sync.SetMapping("dev-1", []string{"dev-2"})

	body, _ := json.Marshal(syncClearBody{Target: "dev-1"})
	req := httptest.NewRequest("POST", "/api/sync/clear", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleSyncClear(gw)(rr, req)
	assert.Equal(t, 200, rr.Code)
	assert.Empty(t, gw.Sync.Followers("dev-1"))
}

func TestHandleDevicesConnectRejectsUnknownTransport(t *testing.T) {
	gw := newDeviceTestGateway()
	body := []byte(`{"devices":[{"device":"dev-1","connect":"bluetooth"}]}`)
	req := httptest.NewRequest("POST", "/api/devices/connect", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleDevicesConnect(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleDevicesConnectMissingDevicesIsBadRequest(t *testing.T) {
	gw := newDeviceTestGateway()
	req := httptest.NewRequest("POST", "/api/devices/connect", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handleDevicesConnect(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleDevicesRegisterSetsRegisteredFlag(t *testing.T) {
	gw := newDeviceTestGateway()
	body, _ := json.Marshal(deviceRegisterBody{Device: "dev-1"})
	req := httptest.NewRequest("POST", "/api/devices/register", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleDevicesRegister(gw, true)(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestHandleDevicesRegisterMissingDeviceIsBadRequest(t *testing.T) {
	gw := newDeviceTestGateway()
	req := httptest.NewRequest("POST", "/api/devices/register", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handleDevicesRegister(gw, true)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleDevicesListReturnsSnapshot(t *testing.T) {
	gw := newDeviceTestGateway()
	req := httptest.NewRequest("GET", "/api/devices", nil)
	rr := httptest.NewRecorder()
	handleDevicesList(gw)(rr, req)
	assert.Equal(t, 200, rr.Code)
}

func TestHandleKeepAwakeMissingDeviceIsBadRequest(t *testing.T) {
	gw := newDeviceTestGateway()
	req := httptest.NewRequest("POST", "/api/devices/keepawake", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handleKeepAwake(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleHealthReportsStaleness(t *testing.T) {
	gw := newDeviceTestGateway()
	req := httptest.NewRequest("GET", "/api/health", nil)
	rr := httptest.NewRecorder()
	handleHealth(gw)(rr, req)
	assert.Equal(t, 200, rr.Code)

	var env struct {
		Data struct {
			Stale bool `json:"stale"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.True(t, env.Data.Stale)
}
