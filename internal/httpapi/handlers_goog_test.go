package httpapi

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gateway"
)

func newUploadsTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	return &gateway.Gateway{Config: gateway.Config{UploadsDir: t.TempDir()}}
}

func TestUploadsDirFallsBackWhenUnset(t *testing.T) {
	gw := &gateway.Gateway{}
	assert.Equal(t, "uploads", uploadsDir(gw))
}

func TestHandleInstallAPKBinaryStoresBodyUnderUploadsDir(t *testing.T) {
	gw := newUploadsTestGateway(t)

	req := httptest.NewRequest("POST", "/api/install-apk-binary", bytes.NewReader([]byte("fake apk bytes")))
	req.Header.Set("X-UDID", "device-1")
	req.Header.Set("X-Filename", "app.apk")
	rr := httptest.NewRecorder()

	handleInstallAPKBinary(gw)(rr, req)
	require.Equal(t, 200, rr.Code)

	var env struct {
		Data struct {
			FilePath string `json:"filePath"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.True(t, filepath.Ext(env.Data.FilePath) == ".apk")

	contents, err := os.ReadFile(filepath.Join(gw.Config.UploadsDir, env.Data.FilePath))
	require.NoError(t, err)
	assert.Equal(t, "fake apk bytes", string(contents))
}

func TestHandleInstallAPKBinaryMissingHeadersIsBadRequest(t *testing.T) {
	gw := newUploadsTestGateway(t)
	req := httptest.NewRequest("POST", "/api/install-apk-binary", bytes.NewReader(nil))
	rr := httptest.NewRecorder()
	handleInstallAPKBinary(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleInstallAPKBinaryRejectsSizeMismatch(t *testing.T) {
	gw := newUploadsTestGateway(t)
	req := httptest.NewRequest("POST", "/api/install-apk-binary", bytes.NewReader([]byte("abc")))
	req.Header.Set("X-UDID", "device-1")
	req.Header.Set("X-Filename", "app.apk")
	req.Header.Set("X-File-Size", "999")
	rr := httptest.NewRecorder()

	handleInstallAPKBinary(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleInstallUploadedRejectsPathTraversal(t *testing.T) {
	gw := newUploadsTestGateway(t)
	body, _ := json.Marshal(installUploadedBody{UDID: "d1", FilePath: "../../etc/passwd"})
	req := httptest.NewRequest("POST", "/api/install-uploaded", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleInstallUploaded(gw)(rr, req)
	// filepath.Base strips any ".." segments before the Rel check, so this
	// resolves to a plain missing-file lookup rather than a traversal.
	assert.Equal(t, 404, rr.Code)
}

func TestHandleInstallUploadedMissingFileIsNotFound(t *testing.T) {
	gw := newUploadsTestGateway(t)
	body, _ := json.Marshal(installUploadedBody{UDID: "d1", FilePath: "missing.apk"})
	req := httptest.NewRequest("POST", "/api/install-uploaded", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleInstallUploaded(gw)(rr, req)
	assert.Equal(t, 404, rr.Code)
}

func TestHandleInstallUploadedRejectsUnsupportedExtension(t *testing.T) {
	gw := newUploadsTestGateway(t)
	require.NoError(t, os.WriteFile(filepath.Join(gw.Config.UploadsDir, "app.txt"), []byte("x"), 0o644))

	body, _ := json.Marshal(installUploadedBody{UDID: "d1", FilePath: "app.txt"})
	req := httptest.NewRequest("POST", "/api/install-uploaded", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleInstallUploaded(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestExtractZipEntryWritesFileContents(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("base.apk")
	require.NoError(t, err)
	_, err = w.Write([]byte("apk-bytes"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()

	dest := filepath.Join(dir, "out.apk")
	require.NoError(t, extractZipEntry(zr.File[0], dest))

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "apk-bytes", string(contents))
}

func TestHandleSendBinaryRejectsInvalidBase64(t *testing.T) {
	gw := newUploadsTestGateway(t)
	body, _ := json.Marshal(sendBinaryBody{UDIDs: []string{"d1"}, DataBase64: "not-base64!!"})
	req := httptest.NewRequest("POST", "/api/send-binary", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handleSendBinary(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleSendBinaryMissingFieldsIsBadRequest(t *testing.T) {
	gw := newUploadsTestGateway(t)
	req := httptest.NewRequest("POST", "/api/send-binary", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	handleSendBinary(gw)(rr, req)
	assert.Equal(t, 400, rr.Code)
}

