// Package recorder captures and replays the control-message traffic a
// proxy session forwards upstream, and tracks per-session recording
// status for subscribers of the record-status WebSocket.
package recorder

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/dchest/uniuri"
	"github.com/pkg/errors"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

var idSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// NormalizeID sanitizes an externally supplied recording id. The sentinel
// values "true"/"1" (sent by callers that just want "start a recording,
// pick an id for me") are replaced with a fresh id.
func NormalizeID(raw string) string {
	if raw == "" || raw == "true" || raw == "1" {
		return "session-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uniuri.NewLen(4)
	}
	return idSanitizer.ReplaceAllString(raw, "_")
}

// Message is one captured control frame.
type Message struct {
	AtMs   int64  `json:"at"`
	Data   string `json:"data"`
	Binary bool   `json:"binary"`
}

// Recording is the on-disk JSON document for a capture.
type Recording struct {
	ID        string            `json:"id"`
	Remote    string            `json:"remote"`
	CreatedAt string            `json:"createdAt"`
	Name      string            `json:"name,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Messages  []Message         `json:"messages"`
}

// Dir resolves the directory recordings are persisted under, defaulting
// to the XDG data-home convention, overridable via override (an empty
// override keeps the default).
func Dir(override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(xdg.DataHome, "stream-phonefarm-solumate", "recordings")
}

// Recorder captures frames with elapsed-time accounting that freezes
// while paused.
type Recorder struct {
	id            string
	remote        string
	startedAt     time.Time
	pausedAt      time.Time
	pausedElapsed time.Duration
	paused        bool
	messages      []Message
}

func New(id, remote string) *Recorder {
	return &Recorder{
		id:        id,
		remote:    remote,
		startedAt: time.Now(),
	}
}

func (r *Recorder) ID() string { return r.id }

// Capture appends a frame at the recorder's current elapsed time. It is a
// no-op while paused.
func (r *Recorder) Capture(payload []byte, binary bool) {
	if r.paused {
		return
	}
	data := base64.StdEncoding.EncodeToString(payload)
	if !binary {
		data = string(payload)
	}
	r.messages = append(r.messages, Message{
		AtMs:   r.elapsed().Milliseconds(),
		Data:   data,
		Binary: binary,
	})
}

func (r *Recorder) elapsed() time.Duration {
	now := time.Now()
	if r.paused {
		now = r.pausedAt
	}
	return now.Sub(r.startedAt) - r.pausedElapsed
}

// Pause freezes the elapsed clock.
func (r *Recorder) Pause() {
	if r.paused {
		return
	}
	r.paused = true
	r.pausedAt = time.Now()
}

// Resume accumulates the paused duration and continues.
func (r *Recorder) Resume() {
	if !r.paused {
		return
	}
	r.pausedElapsed += time.Since(r.pausedAt)
	r.paused = false
}

func (r *Recorder) Paused() bool { return r.paused }

// Persist writes the recording to disk under dir as "<id>.json" and
// returns the file path.
func (r *Recorder) Persist(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating recordings dir %s", dir)
	}
	doc := Recording{
		ID:        r.id,
		Remote:    r.remote,
		CreatedAt: r.startedAt.UTC().Format(time.RFC3339),
		Messages:  r.messages,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshaling recording")
	}
	path := filepath.Join(dir, r.id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing recording file %s", path)
	}
	util.GetLogger().Info("recording persisted", "id", r.id, "path", path, "messages", len(r.messages))
	return path, nil
}

// Load reads a recording back from dir.
func Load(dir, id string) (*Recording, error) {
	path := filepath.Join(dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading recording file %s", path)
	}
	var doc Recording
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing recording file %s", path)
	}
	return &doc, nil
}

// List enumerates recordings under dir.
func List(dir string) ([]Recording, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "listing recordings dir %s", dir)
	}
	var out []Recording
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		rec, err := Load(dir, id)
		if err != nil {
			util.GetLogger().Warn("skipping unreadable recording", "id", id, "error", err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Delete removes a recording's file.
func Delete(dir, id string) error {
	path := filepath.Join(dir, id+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting recording file %s", path)
	}
	return nil
}

// UpdateName renames a recording's display name in place.
func UpdateName(dir, id, name string) error {
	rec, err := Load(dir, id)
	if err != nil {
		return err
	}
	rec.Name = name
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling recording")
	}
	return errors.Wrapf(os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644), "updating recording %s", id)
}
