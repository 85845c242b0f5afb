// Package adbforward resolves a device's scrcpy-style TCP socket to a
// local WebSocket URL by establishing an ADB host-side TCP forward to a
// free local port, the same lazy-forward idiom the teacher's connection
// lifecycle code uses before talking to a device's scrcpy socket.
package adbforward

import (
	"fmt"
	"net"

	"github.com/basiooo/goadb"
	"github.com/pkg/errors"
)

// Forward opens a host TCP forward from a free local port to remote
// (e.g. "tcp:8886") on the given device and returns that local port.
// The on-device endpoint behind remote is
// expected to already speak the WebSocket upgrade (an external
// companion process is responsible for that bridge; see Non-goals) — the
// gateway's job is only to route a session to the right forwarded port.
func Forward(client *goadb.Adb, serial, remote string) (port int, err error) {
	device := client.Device(goadb.DeviceWithSerial(serial))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, errors.Wrap(err, "reserving local port")
	}
	port = listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	local := fmt.Sprintf("tcp:%d", port)
	if err := device.ForwardPort(local, remote); err != nil {
		return 0, errors.Wrapf(err, "adb forward %s %s", local, remote)
	}
	return port, nil
}

// ForwardToWebSocketURL is the convenience wrapper the WebSocket handler
// uses: forward then format the loopback URL the proxy should dial.
func ForwardToWebSocketURL(client *goadb.Adb, serial, remote string) (string, error) {
	port, err := Forward(client, serial, remote)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ws://127.0.0.1:%d", port), nil
}
