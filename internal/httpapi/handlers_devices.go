package httpapi

import (
	"net/http"
	"time"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/connect"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/tracker"
)

func handleSyncGet(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondOK(w, gw.Sync.Dump())
	}
}

type syncSetBody struct {
	Target  string   `json:"target"`
	Devices []string `json:"devices"`
}

func handleSyncSet(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body syncSetBody
		if err := decodeBody(r, &body); err != nil || body.Target == "" {
			respondBadRequest(w, "missing target")
			return
		}
		gw.Sync.SetMapping(body.Target, body.Devices)
		respondOK(w, nil)
	}
}

type syncClearBody struct {
	Target string `json:"target"`
}

func handleSyncClear(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body syncClearBody
		if err := decodeBody(r, &body); err != nil || body.Target == "" {
			respondBadRequest(w, "missing target")
			return
		}
		gw.Sync.Clear(body.Target)
		respondOK(w, nil)
	}
}

type connectRequestBody struct {
	Devices []struct {
		Device  string `json:"device"`
		Connect string `json:"connect"`
		Port    int    `json:"port,omitempty"`
	} `json:"devices"`
}

func handleDevicesConnect(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body connectRequestBody
		if err := decodeBody(r, &body); err != nil || len(body.Devices) == 0 {
			respondBadRequest(w, "missing devices")
			return
		}

		reqs := make([]connect.SwitchRequest, 0, len(body.Devices))
		for _, d := range body.Devices {
			var transport tracker.Transport
			switch d.Connect {
			case "usb":
				transport = tracker.TransportUSB
			case "wifi":
				transport = tracker.TransportWiFi
			default:
				respondBadRequest(w, "connect must be usb or wifi")
				return
			}
			reqs = append(reqs, connect.SwitchRequest{Device: d.Device, Connect: transport, Port: d.Port})
		}

		results := gw.Connect.Switch(r.Context(), reqs)
		respondOK(w, results)
	}
}

type deviceRegisterBody struct {
	Device string `json:"device"`
}

func handleDevicesRegister(gw *gateway.Gateway, registered bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body deviceRegisterBody
		if err := decodeBody(r, &body); err != nil || body.Device == "" {
			respondBadRequest(w, "missing device")
			return
		}
		gw.Tracker.SetRegistered(body.Device, registered)
		respondOK(w, nil)
	}
}

func handleDevicesList(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondOK(w, gw.Tracker.Snapshot())
	}
}

type keepAwakeBody struct {
	Device   string `json:"device"`
	Duration int    `json:"seconds,omitempty"`
}

func handleKeepAwake(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body keepAwakeBody
		if err := decodeBody(r, &body); err != nil || body.Device == "" {
			respondBadRequest(w, "missing device")
			return
		}
		d := time.Duration(body.Duration) * time.Second
		if err := gw.KeepAwake.Request(body.Device, d); err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, nil)
	}
}

func handleHealth(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondOK(w, map[string]interface{}{
			"status": "ok",
			"stale":  gw.Tracker.Stale(),
		})
	}
}
