package connect

import (
	"os/exec"
	"sync"
	"time"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

const (
	defaultKeepAwake = 30 * time.Second
	minKeepAwake     = 1 * time.Second
	keyCodeWakeup    = "224"
)

// KeepAwakeService issues "svc power stayon true" plus a wakeup keycode
// for a requested duration, reverting afterward; re-invocation for the
// same device cancels the prior timer.
type KeepAwakeService struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewKeepAwakeService() *KeepAwakeService {
	return &KeepAwakeService{timers: make(map[string]*time.Timer)}
}

func (k *KeepAwakeService) Request(device string, d time.Duration) error {
	if d < minKeepAwake {
		d = defaultKeepAwake
	}

	if out, err := exec.Command("adb", "-s", device, "shell", "svc", "power", "stayon", "true").CombinedOutput(); err != nil {
		util.GetLogger().Warn("keepawake: stayon failed", "device", device, "output", string(out), "error", err)
		return err
	}
	if out, err := exec.Command("adb", "-s", device, "shell", "input", "keyevent", keyCodeWakeup).CombinedOutput(); err != nil {
		util.GetLogger().Warn("keepawake: wakeup keyevent failed", "device", device, "output", string(out), "error", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if t, ok := k.timers[device]; ok {
		t.Stop()
	}
	k.timers[device] = time.AfterFunc(d, func() { k.revert(device) })
	return nil
}

func (k *KeepAwakeService) revert(device string) {
	k.mu.Lock()
	delete(k.timers, device)
	k.mu.Unlock()
	if out, err := exec.Command("adb", "-s", device, "shell", "svc", "power", "stayon", "false").CombinedOutput(); err != nil {
		util.GetLogger().Warn("keepawake: revert failed", "device", device, "output", string(out), "error", err)
	}
}
