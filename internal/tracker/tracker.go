// Package tracker maintains a cached, event-driven view of attached ADB
// devices: the goadb DeviceWatcher feeds a coalesced refresh that resolves
// each device's IP and hardware serial and groups USB/Wi-Fi duplicates
// under one presented record.
package tracker

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/basiooo/goadb"
	"github.com/vishalkuo/bimap"
	"k8s.io/utils/ptr"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/pipeline"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

const (
	cacheTTL        = 5 * time.Second
	fanoutLimit     = 8
	watcherBackoff  = 1 * time.Second
	ipStageSpacing  = 300 * time.Millisecond
)

type Transport string

const (
	TransportUSB  Transport = "usb"
	TransportWiFi Transport = "wifi"
)

// DeviceRecord is the presented view of one device, as exposed to HTTP
// and WebSocket subscribers.
type DeviceRecord struct {
	ID             string    `json:"id"`
	Transport      Transport `json:"transport"`
	IPv4           *string   `json:"ipv4,omitempty"`
	HardwareSerial *string   `json:"hardwareSerial,omitempty"`
	Registered     bool      `json:"registered"`
	LastSeenMs     int64     `json:"lastSeenMs"`
}

// ConnectPreference is consulted when two transports present the same
// hardware serial, to pick which one is surfaced.
type ConnectPreference interface {
	Preferred(hardwareSerial string) (Transport, bool)
}

// Tracker owns the goadb client, the device-watcher goroutine and the
// TTL-bounded caches. A gateway process holds one instance, constructed
// by gateway.New; the package itself keeps no package-level instance.
type Tracker struct {
	client *goadb.Adb
	pref   ConnectPreference

	mu         sync.RWMutex
	byID       map[string]DeviceRecord
	serials    bimap.BiMap[string, string] // id <-> hardware serial
	registered map[string]bool
	lastRefresh time.Time

	refreshMu  sync.Mutex
	refreshing bool
	pending    bool

	bc *pipeline.Broadcaster[[]DeviceRecord]
}

func New(client *goadb.Adb, pref ConnectPreference) *Tracker {
	return &Tracker{
		client:     client,
		pref:       pref,
		byID:       make(map[string]DeviceRecord),
		serials:    bimap.NewBiMap[string, string](),
		registered: make(map[string]bool),
		bc:         pipeline.NewBroadcaster[[]DeviceRecord](),
	}
}

// Start launches the change-stream consumer. It restarts with a 1s
// backoff on error/end, for the life of ctx.
func (t *Tracker) Start(ctx context.Context) {
	go t.watchLoop(ctx)
}

func (t *Tracker) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		watcher := t.client.NewDeviceWatcher()
		events := watcher.C()
		t.triggerRefresh()

	consume:
		for {
			select {
			case <-ctx.Done():
				watcher.Shutdown()
				return
			case _, ok := <-events:
				if !ok {
					break consume
				}
				t.triggerRefresh()
			}
		}

		if err := watcher.Err(); err != nil {
			util.GetLogger().Warn("tracker: device watcher ended", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(watcherBackoff):
		}
	}
}

// triggerRefresh implements the single-flight + pending-flag coalesced
// broadcast: at most one collection runs at a time, and at most one
// follow-up is queued while it runs.
func (t *Tracker) triggerRefresh() {
	t.refreshMu.Lock()
	if t.refreshing {
		t.pending = true
		t.refreshMu.Unlock()
		return
	}
	t.refreshing = true
	t.refreshMu.Unlock()

	go t.runCollection()
}

func (t *Tracker) runCollection() {
	t.collect()

	t.refreshMu.Lock()
	again := t.pending
	t.pending = false
	if !again {
		t.refreshing = false
	}
	t.refreshMu.Unlock()

	if again {
		t.runCollection()
	}
}

func (t *Tracker) collect() {
	ids, err := t.listDeviceIDs()
	if err != nil {
		util.GetLogger().Warn("tracker: failed listing devices", "error", err)
		return
	}

	sem := make(chan struct{}, fanoutLimit)
	var wg sync.WaitGroup
	results := make(chan resolvedDevice, len(ids))

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- t.resolveDevice(id)
		}(id)
	}
	wg.Wait()
	close(results)

	grouped := make(map[string]resolvedDevice) // hardware serial -> chosen
	var ungrouped []resolvedDevice
	for r := range results {
		if r.serial == "" {
			ungrouped = append(ungrouped, r)
			continue
		}
		existing, ok := grouped[r.serial]
		if !ok {
			grouped[r.serial] = r
			continue
		}
		if t.pref != nil {
			if want, ok := t.pref.Preferred(r.serial); ok {
				if want == r.transport {
					grouped[r.serial] = r
				}
				continue
			}
		}
		// default: first-seen wins, keep existing
		_ = existing
	}

	now := time.Now()
	byID := make(map[string]DeviceRecord)
	newBimap := bimap.NewBiMap[string, string]()
	for serial, r := range grouped {
		byID[r.id] = t.toRecord(r, now)
		newBimap.Insert(r.id, serial)
	}
	for _, r := range ungrouped {
		byID[r.id] = t.toRecord(r, now)
	}

	t.mu.Lock()
	for id, rec := range t.byID {
		if registered, ok := t.registered[id]; ok {
			if v, stillPresent := byID[id]; stillPresent {
				v.Registered = registered
				byID[id] = v
			}
		}
		_ = rec
	}
	for id := range byID {
		if _, ok := t.registered[id]; !ok {
			t.registered[id] = true
			v := byID[id]
			v.Registered = true
			byID[id] = v
		}
	}
	t.byID = byID
	t.serials = newBimap
	t.lastRefresh = now
	t.mu.Unlock()

	snapshot := t.Snapshot()
	t.bc.SetSnapshot(snapshot)
	t.bc.Broadcast(snapshot)
}

type resolvedDevice struct {
	id        string
	transport Transport
	ip        string
	serial    string
}

func (t *Tracker) toRecord(r resolvedDevice, now time.Time) DeviceRecord {
	rec := DeviceRecord{
		ID:         r.id,
		Transport:  r.transport,
		Registered: true,
		LastSeenMs: now.UnixMilli(),
	}
	if r.ip != "" {
		rec.IPv4 = ptr.To(r.ip)
	}
	if r.serial != "" {
		rec.HardwareSerial = ptr.To(r.serial)
	}
	return rec
}

func (t *Tracker) listDeviceIDs() ([]string, error) {
	devices, err := t.client.ListDevices()
	if err == nil && len(devices) > 0 {
		ids := make([]string, 0, len(devices))
		for _, d := range devices {
			ids = append(ids, d.Serial)
		}
		return ids, nil
	}

	out, execErr := exec.Command("adb", "devices").Output()
	if execErr != nil {
		if err != nil {
			return nil, err
		}
		return nil, execErr
	}
	var ids []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			ids = append(ids, fields[0])
		}
	}
	return ids, nil
}

func (t *Tracker) resolveDevice(id string) resolvedDevice {
	r := resolvedDevice{id: id}
	if strings.Contains(id, ":") {
		r.transport = TransportWiFi
	} else {
		r.transport = TransportUSB
	}
	if t.client == nil {
		return r
	}
	r.ip = t.resolveIP(id)
	r.serial = t.resolveHardwareSerial(id)
	return r
}

func (t *Tracker) resolveHardwareSerial(id string) string {
	device := t.client.Device(goadb.DeviceWithSerial(id))
	out, err := device.RunCommand("getprop", "ro.serialno")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// Snapshot returns the current cached device list.
func (t *Tracker) Snapshot() []DeviceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DeviceRecord, 0, len(t.byID))
	for _, rec := range t.byID {
		out = append(out, rec)
	}
	return out
}

// IPv4For returns the cached IPv4 address for a device id (USB serial or
// existing transport-qualified id), if the tracker has resolved one.
func (t *Tracker) IPv4For(id string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.byID[id]
	if !ok || rec.IPv4 == nil {
		return "", false
	}
	return *rec.IPv4, true
}

// Subscribe returns a channel that receives a snapshot immediately and on
// every subsequent coalesced refresh.
func (t *Tracker) Subscribe(id string) <-chan []DeviceRecord {
	return t.bc.Subscribe(id, 4)
}

func (t *Tracker) Unsubscribe(id string) { t.bc.Unsubscribe(id) }

// SetRegistered implements the device-registration bookkeeping addition.
func (t *Tracker) SetRegistered(id string, registered bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registered[id] = registered
	if rec, ok := t.byID[id]; ok {
		rec.Registered = registered
		t.byID[id] = rec
	}
}

func (t *Tracker) Stale() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return time.Since(t.lastRefresh) > cacheTTL
}
