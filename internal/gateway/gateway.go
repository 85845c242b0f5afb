// Package gateway wires together the tracker, connection controller,
// proxy registry, sync fabric and recorder status service into the one
// object the HTTP/WebSocket surface operates against.
package gateway

import (
	"context"

	"github.com/basiooo/goadb"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/connect"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/proxy"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/recorder"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/syncfabric"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/tracker"
)

// Config carries the settings resolved by the CLI/config layer.
type Config struct {
	ADBHost       string
	ADBPort       int
	RecordingsDir string
	UploadsDir    string
	LogPayload    bool // DEVICE_SOCKET_LOG_PAYLOAD: proxy sessions log full frame payloads
}

type Gateway struct {
	Config Config

	ADB        *goadb.Adb
	Tracker    *tracker.Tracker
	Preference *connect.PreferenceService
	Connect    *connect.Controller
	KeepAwake  *connect.KeepAwakeService
	Proxies    *proxy.Registry
	Sync       *syncfabric.Service
	Status     *recorder.StatusService
}

// registryAdapter lets proxy.Registry satisfy syncfabric.Registry without
// either package importing the other.
type registryAdapter struct{ *proxy.Registry }

func (r registryAdapter) Get(id string) (syncfabric.Follower, bool) {
	s, ok := r.Registry.Get(id)
	if !ok {
		return nil, false
	}
	return s, true
}

// New constructs a Gateway against a live ADB server connection.
func New(cfg Config) (*Gateway, error) {
	client, err := goadb.NewWithConfig(goadb.ServerConfig{
		Host: cfg.ADBHost,
		Port: cfg.ADBPort,
	})
	if err != nil {
		return nil, err
	}

	pref := connect.NewPreferenceService()
	proxies := proxy.NewRegistry()
	trk := tracker.New(client, pref)

	g := &Gateway{
		Config:     cfg,
		ADB:        client,
		Tracker:    trk,
		Preference: pref,
		Connect:    connect.NewController(pref, trk),
		KeepAwake:  connect.NewKeepAwakeService(),
		Proxies:    proxies,
		Status:     recorder.NewStatusService(),
	}
	g.Sync = syncfabric.New(registryAdapter{proxies})
	return g, nil
}

// Start launches the background device tracker.
func (g *Gateway) Start(ctx context.Context) {
	g.Tracker.Start(ctx)
}
