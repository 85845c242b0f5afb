package httpapi

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
)

// NewMux builds the complete HTTP/WebSocket surface for gw, wrapped in
// the CORS and access-log middleware.
func NewMux(gw *gateway.Gateway, accessLog *logrus.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", newWebSocketHandler(gw))

	mux.HandleFunc("POST /api/recordings/start", handleRecordingsStart(gw))
	mux.HandleFunc("POST /api/recordings/stop", handleRecordingsStop(gw))
	mux.HandleFunc("POST /api/recordings/run", handleRecordingsRun(gw))
	mux.HandleFunc("POST /api/recordings/pause", handleRecordingsPause(gw))
	mux.HandleFunc("POST /api/recordings/resume", handleRecordingsResume(gw))
	mux.HandleFunc("GET /api/recordings", handleRecordingsList(gw))
	mux.HandleFunc("POST /api/recordings/update-name", handleRecordingsUpdateName(gw))
	mux.HandleFunc("POST /api/recordings/delete", handleRecordingsDelete(gw))

	mux.HandleFunc("GET /api/sync", handleSyncGet(gw))
	mux.HandleFunc("POST /api/sync/set", handleSyncSet(gw))
	mux.HandleFunc("POST /api/sync/clear", handleSyncClear(gw))

	mux.HandleFunc("POST /api/devices/connect", handleDevicesConnect(gw))
	mux.HandleFunc("POST /api/devices/register", handleDevicesRegister(gw, true))
	mux.HandleFunc("POST /api/devices/unregister", handleDevicesRegister(gw, false))
	mux.HandleFunc("GET /api/devices", handleDevicesList(gw))

	mux.HandleFunc("POST /api/device/keep-awake", handleKeepAwake(gw))

	mux.HandleFunc("POST /api/goog/device/install-apk-binary", handleInstallAPKBinary(gw))
	mux.HandleFunc("POST /api/goog/device/install-uploaded", handleInstallUploaded(gw))
	mux.HandleFunc("POST /api/goog/device/send-binary", handleSendBinary(gw))

	mux.HandleFunc("GET /api/health", handleHealth(gw))

	return withMiddleware(mux, accessLog)
}

func withMiddleware(next http.Handler, accessLog *logrus.Logger) *http.ServeMux {
	wrapped := http.NewServeMux()
	wrapped.Handle("/", corsMiddleware(accessLogMiddleware(next, accessLog)))
	return wrapped
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLogMiddleware is deliberately a separate logger (logrus) from the
// application's slog-based Logger: access logs are a distinct consumer
// (operators tailing request volume) from application diagnostics.
func accessLogMiddleware(next http.Handler, accessLog *logrus.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		accessLog.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sw.status,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Info("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
