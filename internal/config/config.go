// Package config resolves gateway settings from environment variables,
// flags and an optional config file, following the same viper.New +
// BindEnv convention as the teacher's api-server config package.
package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config carries every setting the gateway needs to start.
type Config struct {
	ADBHost       string
	ADBPort       int
	HTTPAddr      string
	RecordingsDir string
	UploadsDir    string
	Verbose       bool
	LogLevel      string // silent, error, warn, info, debug
	LogPayload    bool   // DEVICE_SOCKET_LOG_PAYLOAD: log full frame payloads, not just size/kind
}

// New builds a Config from environment variables and the given viper
// instance, falling back to XDG-resolved defaults for the two data
// directories (mirroring internal/recorder.Dir).
func New(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.AutomaticEnv()
	v.BindEnv("adb.host", "ADB_HOST")
	v.BindEnv("adb.port", "ADB_PORT")
	v.BindEnv("http.addr", "HTTP_ADDR")
	v.BindEnv("recordings.dir", "RECORDINGS_DIR")
	v.BindEnv("uploads.dir", "UPLOADS_DIR")
	v.BindEnv("verbose", "VERBOSE")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.payload", "DEVICE_SOCKET_LOG_PAYLOAD")

	v.SetDefault("adb.host", "127.0.0.1")
	v.SetDefault("adb.port", 5037)
	v.SetDefault("http.addr", ":28090")
	v.SetDefault("log.level", "info")

	v.SetConfigName("gateway")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.solumate")
	v.AddConfigPath("/etc/solumate")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	recordingsDir := v.GetString("recordings.dir")
	if recordingsDir == "" {
		recordingsDir = filepath.Join(xdg.DataHome, "stream-phonefarm-solumate", "recordings")
	}
	uploadsDir := v.GetString("uploads.dir")
	if uploadsDir == "" {
		uploadsDir = filepath.Join(xdg.DataHome, "stream-phonefarm-solumate", "uploads")
	}

	cfg := &Config{
		ADBHost:       v.GetString("adb.host"),
		ADBPort:       v.GetInt("adb.port"),
		HTTPAddr:      v.GetString("http.addr"),
		RecordingsDir: os.ExpandEnv(recordingsDir),
		UploadsDir:    os.ExpandEnv(uploadsDir),
		Verbose:       v.GetBool("verbose"),
		LogLevel:      v.GetString("log.level"),
		LogPayload:    v.GetString("log.payload") != "",
	}

	if err := os.MkdirAll(cfg.RecordingsDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return nil, err
	}

	return cfg, nil
}
