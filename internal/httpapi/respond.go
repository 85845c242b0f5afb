// Package httpapi mounts the gateway's HTTP action surface onto a
// standard library http.ServeMux, following the teacher's own
// server/router convention of one Router per concern registering onto a
// shared mux.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
)

// Envelope is the {success, ...} shape every JSON endpoint returns.
type Envelope struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func respondErr(w http.ResponseWriter, err error) {
	respondJSON(w, gwerrors.HTTPStatus(err), Envelope{Success: false, Error: err.Error()})
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, Envelope{Success: false, Error: msg})
}
