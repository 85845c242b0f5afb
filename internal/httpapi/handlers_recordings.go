package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/recorder"
)

type sessionBody struct {
	Session string `json:"session"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func sessionFor(gw *gateway.Gateway, w http.ResponseWriter, r *http.Request) (*sessionBody, bool) {
	var body sessionBody
	if err := decodeBody(r, &body); err != nil || body.Session == "" {
		respondBadRequest(w, "missing session")
		return nil, false
	}
	return &body, true
}

func handleRecordingsStart(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := sessionFor(gw, w, r)
		if !ok {
			return
		}
		s, ok := gw.Proxies.Get(body.Session)
		if !ok {
			respondErr(w, gwerrors.New(gwerrors.NotFound, "unknown session"))
			return
		}
		id, err := s.StartRecording(body.ID)
		if err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, map[string]string{"id": id})
	}
}

func handleRecordingsStop(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := sessionFor(gw, w, r)
		if !ok {
			return
		}
		s, ok := gw.Proxies.Get(body.Session)
		if !ok {
			respondErr(w, gwerrors.New(gwerrors.NotFound, "unknown session"))
			return
		}
		path, err := s.StopRecording()
		if err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, map[string]string{"filePath": path})
	}
}

func handleRecordingsRun(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := sessionFor(gw, w, r)
		if !ok {
			return
		}
		s, ok := gw.Proxies.Get(body.Session)
		if !ok {
			respondErr(w, gwerrors.New(gwerrors.NotFound, "unknown session"))
			return
		}
		id, err := s.RunRecording(body.ID)
		if err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, map[string]string{"id": id})
	}
}

func handleRecordingsPause(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := sessionFor(gw, w, r)
		if !ok {
			return
		}
		s, ok := gw.Proxies.Get(body.Session)
		if !ok {
			respondErr(w, gwerrors.New(gwerrors.NotFound, "unknown session"))
			return
		}
		if err := s.Pause(); err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, nil)
	}
}

func handleRecordingsResume(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := sessionFor(gw, w, r)
		if !ok {
			return
		}
		s, ok := gw.Proxies.Get(body.Session)
		if !ok {
			respondErr(w, gwerrors.New(gwerrors.NotFound, "unknown session"))
			return
		}
		if err := s.Resume(); err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, nil)
	}
}

func handleRecordingsList(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := recorder.List(recorder.Dir(gw.Config.RecordingsDir))
		if err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, list)
	}
}

func handleRecordingsUpdateName(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body sessionBody
		if err := decodeBody(r, &body); err != nil || body.ID == "" {
			respondBadRequest(w, "missing id")
			return
		}
		if err := recorder.UpdateName(recorder.Dir(gw.Config.RecordingsDir), body.ID, body.Name); err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, nil)
	}
}

func handleRecordingsDelete(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body sessionBody
		if err := decodeBody(r, &body); err != nil || body.ID == "" {
			respondBadRequest(w, "missing id")
			return
		}
		if err := recorder.Delete(recorder.Dir(gw.Config.RecordingsDir), body.ID); err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, nil)
	}
}
