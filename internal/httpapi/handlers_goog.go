package httpapi

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/adbforward"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

func uploadsDir(gw *gateway.Gateway) string {
	dir := gw.Config.UploadsDir
	if dir == "" {
		dir = "uploads"
	}
	return dir
}

// handleInstallAPKBinary stores the raw request body (an APK/XAPK/ZIP) under
// the uploads directory, named from the X-Filename header with a uniuri
// suffix to avoid collisions.
func handleInstallAPKBinary(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		udid := r.Header.Get("X-UDID")
		filename := r.Header.Get("X-Filename")
		if udid == "" || filename == "" {
			respondBadRequest(w, "missing X-UDID or X-Filename header")
			return
		}

		dir := uploadsDir(gw)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			respondErr(w, gwerrors.Wrap(gwerrors.IO, err, "creating uploads dir"))
			return
		}

		ext := filepath.Ext(filename)
		base := strings.TrimSuffix(filepath.Base(filename), ext)
		storedName := fmt.Sprintf("%s-%s%s", base, uniuri.NewLen(8), ext)
		dest := filepath.Join(dir, storedName)

		f, err := os.Create(dest)
		if err != nil {
			respondErr(w, gwerrors.Wrap(gwerrors.IO, err, "creating upload file"))
			return
		}
		defer f.Close()

		n, err := io.Copy(f, r.Body)
		if err != nil {
			respondErr(w, gwerrors.Wrap(gwerrors.IO, err, "writing upload"))
			return
		}

		if declared := r.Header.Get("X-File-Size"); declared != "" {
			if want, err := strconv.ParseInt(declared, 10, 64); err == nil && want != n {
				_ = os.Remove(dest)
				respondErr(w, gwerrors.New(gwerrors.BadParam, "uploaded size mismatch"))
				return
			}
		}

		util.GetLogger().Info("install-apk-binary: stored upload", "udid", udid, "path", dest, "bytes", n)
		respondOK(w, map[string]string{"filePath": storedName})
	}
}

type installUploadedBody struct {
	UDID     string `json:"udid"`
	FilePath string `json:"filePath"`
}

// handleInstallUploaded installs a previously uploaded package onto a
// device: a bare .apk is pushed and pm-installed directly, while a
// .xapk/.zip is unzipped and its split APKs are installed together,
// base*.apk first.
func handleInstallUploaded(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body installUploadedBody
		if err := decodeBody(r, &body); err != nil || body.UDID == "" || body.FilePath == "" {
			respondBadRequest(w, "missing udid or filePath")
			return
		}

		dir := uploadsDir(gw)
		abs := filepath.Join(dir, filepath.Base(body.FilePath))
		if rel, err := filepath.Rel(dir, abs); err != nil || strings.HasPrefix(rel, "..") {
			respondErr(w, gwerrors.New(gwerrors.BadParam, "filePath must resolve under the uploads directory"))
			return
		}
		if _, err := os.Stat(abs); err != nil {
			respondErr(w, gwerrors.New(gwerrors.NotFound, "uploaded file not found"))
			return
		}

		var err error
		switch strings.ToLower(filepath.Ext(abs)) {
		case ".apk":
			err = installAPK(body.UDID, abs)
		case ".xapk", ".zip":
			err = installSplitAPK(body.UDID, abs)
		default:
			err = gwerrors.New(gwerrors.BadParam, "unsupported package type")
		}
		if err != nil {
			respondErr(w, err)
			return
		}
		respondOK(w, nil)
	}
}

func installAPK(udid, apkPath string) error {
	remote := "/data/local/tmp/" + filepath.Base(apkPath)
	if out, err := exec.Command("adb", "-s", udid, "push", apkPath, remote).CombinedOutput(); err != nil {
		return gwerrors.Wrap(gwerrors.Upstream, errors.Errorf("%s: %s", err, string(out)), "adb push")
	}
	if out, err := exec.Command("adb", "-s", udid, "shell", "pm", "install", "-r", remote).CombinedOutput(); err != nil {
		return gwerrors.Wrap(gwerrors.Upstream, errors.Errorf("%s: %s", err, string(out)), "pm install")
	}
	return nil
}

func installSplitAPK(udid, archivePath string) error {
	tmp, err := os.MkdirTemp("", "solumate-install-"+uniuri.NewLen(6))
	if err != nil {
		return gwerrors.Wrap(gwerrors.IO, err, "creating temp dir")
	}
	defer os.RemoveAll(tmp)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return gwerrors.Wrap(gwerrors.BadParam, err, "opening archive")
	}
	defer zr.Close()

	var apks []string
	for _, entry := range zr.File {
		if strings.ToLower(filepath.Ext(entry.Name)) != ".apk" {
			continue
		}
		dest := filepath.Join(tmp, filepath.Base(entry.Name))
		if err := extractZipEntry(entry, dest); err != nil {
			return gwerrors.Wrap(gwerrors.IO, err, "extracting "+entry.Name)
		}
		apks = append(apks, dest)
	}
	if len(apks) == 0 {
		return gwerrors.New(gwerrors.BadParam, "archive contains no apk entries")
	}

	sort.Slice(apks, func(i, j int) bool {
		bi := strings.HasPrefix(filepath.Base(apks[i]), "base")
		bj := strings.HasPrefix(filepath.Base(apks[j]), "base")
		if bi != bj {
			return bi
		}
		return apks[i] < apks[j]
	})

	args := append([]string{"-s", udid, "install-multiple", "-r"}, apks...)
	if out, err := exec.Command("adb", args...).CombinedOutput(); err != nil {
		return gwerrors.Wrap(gwerrors.Upstream, errors.Errorf("%s: %s", err, string(out)), "adb install-multiple")
	}
	return nil
}

func extractZipEntry(entry *zip.File, dest string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

type sendBinaryBody struct {
	UDIDs      []string `json:"udids"`
	Remote     string   `json:"remote,omitempty"`
	DataBase64 string   `json:"dataBase64"`
	Path       string   `json:"path,omitempty"`
	TimeoutMs  int      `json:"timeoutMs,omitempty"`
}

// handleSendBinary forwards an ADB socket on each device, dials a
// throwaway WebSocket against the forwarded port, sends the decoded
// binary blob, and closes — one-shot fire-and-check per device.
func handleSendBinary(gw *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body sendBinaryBody
		if err := decodeBody(r, &body); err != nil || len(body.UDIDs) == 0 || body.DataBase64 == "" {
			respondBadRequest(w, "missing udids or dataBase64")
			return
		}
		remote := body.Remote
		if remote == "" {
			remote = "tcp:8886"
		}
		timeout := time.Duration(body.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 5 * time.Second
		}

		data, err := base64.StdEncoding.DecodeString(body.DataBase64)
		if err != nil {
			respondBadRequest(w, "dataBase64 is not valid base64")
			return
		}

		type result struct {
			Device  string `json:"device"`
			Success bool   `json:"success"`
			Error   string `json:"error,omitempty"`
		}
		results := make([]result, 0, len(body.UDIDs))
		for _, udid := range body.UDIDs {
			err := sendBinaryToDevice(gw, udid, remote, body.Path, data, timeout)
			res := result{Device: udid, Success: err == nil}
			if err != nil {
				res.Error = err.Error()
			}
			results = append(results, res)
		}
		respondOK(w, results)
	}
}

func sendBinaryToDevice(gw *gateway.Gateway, udid, remote, path string, data []byte, timeout time.Duration) error {
	wsURL, err := adbforward.ForwardToWebSocketURL(gw.ADB, udid, remote)
	if err != nil {
		return err
	}
	if path != "" {
		wsURL += "?path=" + path
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return gwerrors.Wrap(gwerrors.Upstream, err, "dialing device websocket")
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return gwerrors.Wrap(gwerrors.Upstream, err, "writing binary payload")
	}
	return nil
}
