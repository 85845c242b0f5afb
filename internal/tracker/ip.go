package tracker

import (
	"regexp"
	"strings"
	"time"

	"github.com/basiooo/goadb"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
)

var (
	reRouteSrc   = regexp.MustCompile(`src\s+(\d+\.\d+\.\d+\.\d+)`)
	reInetSlash  = regexp.MustCompile(`inet\s+(\d+\.\d+\.\d+\.\d+)/\d+`)
	reInetAddr   = regexp.MustCompile(`inet addr:(\d+\.\d+\.\d+\.\d+)`)
	reInetBare   = regexp.MustCompile(`inet\s+(\d+\.\d+\.\d+\.\d+)`)
)

// resolveIP runs up to 3 shell-out stages against the device, spaced
// ipStageSpacing apart, and caches the first non-loopback IPv4 found.
func (t *Tracker) resolveIP(id string) string {
	device := t.client.Device(goadb.DeviceWithSerial(id))

	stages := []func() string{
		func() string {
			out, err := device.RunCommand("ip", "route", "get", "1.1.1.1")
			if err != nil {
				return ""
			}
			return firstMatch(reRouteSrc, out)
		},
		func() string {
			for _, iface := range []string{"wlan0", "eth0"} {
				out, err := device.RunCommand("ip", "-f", "inet", "addr", "show", iface)
				if err != nil {
					continue
				}
				if ip := firstNonLoopback(reInetSlash, out); ip != "" {
					return ip
				}
			}
			return ""
		},
		func() string {
			for _, iface := range []string{"wlan0", "eth0"} {
				out, err := device.RunCommand("ifconfig", iface)
				if err != nil {
					continue
				}
				if ip := firstNonLoopback(reInetAddr, out); ip != "" {
					return ip
				}
			}
			out, err := device.RunCommand("ifconfig")
			if err != nil {
				return ""
			}
			return firstNonLoopback(reInetBare, out)
		},
	}

	for i, stage := range stages {
		if i > 0 {
			time.Sleep(ipStageSpacing)
		}
		if ip := stage(); ip != "" {
			return ip
		}
	}
	util.GetLogger().Debug("tracker: no IP resolved", "device", id)
	return ""
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func firstNonLoopback(re *regexp.Regexp, text string) string {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		if strings.HasPrefix(m[1], "127.") {
			continue
		}
		return m[1]
	}
	return ""
}
