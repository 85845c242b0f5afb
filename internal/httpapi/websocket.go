package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/adbforward"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/fsls"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/mux"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/proxy"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/wire"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newWebSocketHandler(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		switch action {
		case "proxy-adb":
			handleProxyADB(gw, w, r)
		case "proxy-ws":
			handleProxyWS(gw, w, r)
		case "multiplex":
			handleMultiplex(gw, w, r)
		case "devices-list":
			handleDevicesStream(gw, w, r)
		case "record-status":
			handleStatusStream(gw, w, r)
		default:
			http.Error(w, "unknown action", http.StatusBadRequest)
		}
	}
}

func upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.GetLogger().Warn("websocket upgrade failed", "error", err)
		return nil, false
	}
	return conn, true
}

func handleProxyADB(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) {
	udid := r.URL.Query().Get("udid")
	remote := r.URL.Query().Get("remote")
	if udid == "" {
		http.Error(w, "missing udid", http.StatusBadRequest)
		return
	}
	if remote == "" {
		remote = "tcp:8886"
	}

	conn, ok := upgrade(w, r)
	if !ok {
		return
	}

	upstreamURL, err := adbforward.ForwardToWebSocketURL(gw.ADB, udid, remote)
	if err != nil {
		closeWithError(conn, 4005, err)
		return
	}

	runProxySession(gw, conn, proxy.Options{
		ID:          udid,
		Downstream:  conn,
		UpstreamURL: upstreamURL,
		Mirror:      gw.Sync,
		RecordsDir:  gw.Config.RecordingsDir,
		StatusSvc:   gw.Status,
		RecordID:    r.URL.Query().Get("record"),
		ReplayID:    r.URL.Query().Get("replay"),
		LogMeta:     r.URL.Query().Get("log") != "",
		LogPayload:  gw.Config.LogPayload,
	})
}

func handleProxyWS(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) {
	upstreamURL := r.URL.Query().Get("ws")
	if upstreamURL == "" {
		http.Error(w, "missing ws parameter", http.StatusBadRequest)
		return
	}
	conn, ok := upgrade(w, r)
	if !ok {
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		session = uuid.NewString()
	}

	runProxySession(gw, conn, proxy.Options{
		ID:          session,
		Downstream:  conn,
		UpstreamURL: upstreamURL,
		Mirror:      gw.Sync,
		RecordsDir:  gw.Config.RecordingsDir,
		StatusSvc:   gw.Status,
		RecordID:    r.URL.Query().Get("record"),
		ReplayID:    r.URL.Query().Get("replay"),
		LogMeta:     r.URL.Query().Get("log") != "",
		LogPayload:  gw.Config.LogPayload,
	})
}

func runProxySession(gw *gateway.Gateway, conn *websocket.Conn, opts proxy.Options) {
	session := proxy.New(opts)
	gw.Proxies.Put(session)
	defer gw.Proxies.Remove(opts.ID)
	defer session.Release()
	defer conn.Close()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		session.HandleDownstream(data, mt == websocket.BinaryMessage)
	}
}

func handleMultiplex(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) {
	conn, ok := upgrade(w, r)
	if !ok {
		return
	}
	m := mux.New(conn)
	m.Root().OnChannel(func(child *mux.Channel, init []byte) {
		if len(init) < 4 {
			child.Close(4003, "missing channel tag")
			return
		}
		tag := string(init[:4])
		if tag == "FSLS" {
			if len(init) < 8 {
				child.Close(4003, "missing FSLS serial")
				return
			}
			serial := decodeFSLSSerial(init[4:])
			fsls.Attach(child, gw.ADB, serial)
			return
		}
		util.GetLogger().Debug("multiplex: unhandled top-level channel tag", "tag", tag)
	})
	_ = m.Run()
}

func decodeFSLSSerial(body []byte) string {
	if len(body) < 4 {
		return ""
	}
	n := int(wire.U32LE(body[0:4]))
	end := 4 + n
	if end > len(body) {
		end = len(body)
	}
	return string(body[4:end])
}

func handleDevicesStream(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) {
	conn, ok := upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	ch := gw.Tracker.Subscribe(id)
	defer gw.Tracker.Unsubscribe(id)

	for snapshot := range ch {
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}
}

func handleStatusStream(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) {
	conn, ok := upgrade(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	ch := gw.Status.Subscribe(id)
	defer gw.Status.Unsubscribe(id)

	for snapshot := range ch {
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}
}

func closeWithError(conn *websocket.Conn, code int, err error) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, fmt.Sprint(err)), time.Time{})
	_ = conn.Close()
}
