// Package connect implements USB<->Wi-Fi connection-mode switching and
// the keep-awake service, grounded on the shell-out conventions used
// throughout the teacher's device lifecycle code.
package connect

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/tracker"
)

const (
	switchDeadline  = 10 * time.Second
	tcpipSettleWait = 400 * time.Millisecond
	connectRetries  = 3
	connectSpacing  = 200 * time.Millisecond
	defaultWifiPort = 5555
)

// PreferenceService is a memory-only bias for the tracker's per-group
// pick when a hardware serial presents on both USB and Wi-Fi.
type PreferenceService struct {
	mu   sync.RWMutex
	pref map[string]tracker.Transport
}

func NewPreferenceService() *PreferenceService {
	return &PreferenceService{pref: make(map[string]tracker.Transport)}
}

func (p *PreferenceService) Preferred(hardwareSerial string) (tracker.Transport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.pref[hardwareSerial]
	return t, ok
}

func (p *PreferenceService) Set(hardwareSerial string, t tracker.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pref[hardwareSerial] = t
}

// SwitchRequest is one entry of the /api/devices/connect payload.
type SwitchRequest struct {
	Device  string
	Connect tracker.Transport
	Port    int
}

type SwitchResult struct {
	Device  string
	Success bool
	Error   string
}

// IPResolver supplies a cached IPv4 address for a device id, so a
// USB-connected device (whose id is a bare hardware serial, not a
// host:port) can be switched to Wi-Fi without already knowing its
// network address.
type IPResolver interface {
	IPv4For(id string) (string, bool)
}

// Controller performs the actual ADB mode switches.
type Controller struct {
	pref *PreferenceService
	ips  IPResolver
}

func NewController(pref *PreferenceService, ips IPResolver) *Controller {
	return &Controller{pref: pref, ips: ips}
}

func (c *Controller) Switch(ctx context.Context, reqs []SwitchRequest) []SwitchResult {
	results := make([]SwitchResult, len(reqs))
	for i, req := range reqs {
		err := c.switchOne(ctx, req)
		results[i] = SwitchResult{Device: req.Device, Success: err == nil}
		if err != nil {
			results[i].Error = err.Error()
		}
	}
	return results
}

func (c *Controller) switchOne(ctx context.Context, req SwitchRequest) error {
	ctx, cancel := context.WithTimeout(ctx, switchDeadline)
	defer cancel()

	switch req.Connect {
	case tracker.TransportUSB:
		return c.switchToUSB(ctx, req.Device)
	case tracker.TransportWiFi:
		return c.switchToWiFi(ctx, req.Device, req.Port)
	default:
		return gwerrors.New(gwerrors.BadParam, "connect must be usb or wifi")
	}
}

func (c *Controller) switchToUSB(ctx context.Context, device string) error {
	if out, err := exec.CommandContext(ctx, "adb", "-s", device, "usb").CombinedOutput(); err != nil {
		return errors.Wrapf(err, "adb usb failed: %s", string(out))
	}
	c.pref.Set(device, tracker.TransportUSB)
	return nil
}

func (c *Controller) switchToWiFi(ctx context.Context, device string, port int) error {
	if port == 0 {
		port = defaultWifiPort
	}

	if out, err := exec.CommandContext(ctx, "adb", "-s", device, "tcpip", fmt.Sprint(port)).CombinedOutput(); err != nil {
		return errors.Wrapf(err, "adb tcpip failed: %s", string(out))
	}

	select {
	case <-ctx.Done():
		return gwerrors.New(gwerrors.Timeout, "switch deadline exceeded")
	case <-time.After(tcpipSettleWait):
	}

	host := stripTransportSuffix(device)
	if !strings.Contains(device, ":") && c.ips != nil {
		if ip, ok := c.ips.IPv4For(device); ok && ip != "" {
			host = ip
		}
	}
	target := fmt.Sprintf("%s:%d", host, port)
	var lastErr error
	for i := 0; i < connectRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return gwerrors.New(gwerrors.Timeout, "switch deadline exceeded")
			case <-time.After(connectSpacing):
			}
		}
		out, err := exec.CommandContext(ctx, "adb", "connect", target).CombinedOutput()
		text := strings.ToLower(string(out))
		if err == nil && (strings.Contains(text, "connected to") || strings.Contains(text, "already connected")) {
			c.pref.Set(device, tracker.TransportWiFi)
			return nil
		}
		lastErr = errors.Errorf("adb connect %s: %s", target, string(out))
	}
	return lastErr
}

// DisconnectWifiPeers issues "adb disconnect" for every Wi-Fi-transport
// record sharing hardwareSerial, after a USB switch makes them
// redundant.
func (c *Controller) DisconnectWifiPeers(ctx context.Context, hardwareSerial string, records []tracker.DeviceRecord) {
	for _, r := range records {
		if r.Transport != tracker.TransportWiFi || r.HardwareSerial == nil || *r.HardwareSerial != hardwareSerial {
			continue
		}
		_, _ = exec.CommandContext(ctx, "adb", "disconnect", r.ID).CombinedOutput()
	}
}

func stripTransportSuffix(device string) string {
	if idx := strings.Index(device, ":"); idx != -1 {
		return device[:idx]
	}
	return device
}
