// Package fsls implements the ADB sync-protocol-like LIST/STAT/RECV/SEND
// file channel, framed as multiplexer grandchild channels rather than raw
// ADB sync-protocol TCP frames: the gateway already has a goadb client
// for the device, so this package is the browser-facing re-framing of
// those calls, not a second sync-protocol implementation.
package fsls

import (
	"io"
	"time"

	"github.com/basiooo/goadb"
	"github.com/pkg/errors"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/mux"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/wire"
)

// Session is one FSLS session: a multiplexer channel scoped to one
// device serial, hosting one grandchild channel per file operation.
type Session struct {
	channel *mux.Channel
	device  *goadb.Device
}

// Attach wires opHandling onto channel, which must be the FSLS session
// channel created with init = "FSLS" | u32-LE len | serial.
func Attach(channel *mux.Channel, client *goadb.Adb, serial string) *Session {
	s := &Session{
		channel: channel,
		device:  client.Device(goadb.DeviceWithSerial(serial)),
	}
	channel.OnChannel(func(child *mux.Channel, init []byte) {
		s.handleOp(child, init)
	})
	return s
}

func (s *Session) handleOp(child *mux.Channel, init []byte) {
	if len(init) < 4 {
		failAndClose(child, "missing opcode")
		return
	}
	op := string(init[:4])
	body := init[4:]

	switch op {
	case "LIST":
		s.handleList(child, body)
	case "STAT":
		s.handleStat(child, body)
	case "RECV":
		s.handleRecv(child, body)
	case "SEND":
		s.handleSend(child)
	default:
		failAndClose(child, "unknown op "+op)
	}
}

func decodePath(body []byte) (string, bool) {
	if len(body) < 4 {
		return "", false
	}
	n := wire.U32LE(body[0:4])
	end := 4 + int(n)
	if end > len(body) {
		return "", false
	}
	return string(body[4:end]), true
}

func failAndClose(child *mux.Channel, msg string) {
	payload := wire.Concat(wire.PutU32LE(uint32(len(msg))), []byte(msg))
	_ = child.Send(wire.Concat([]byte("FAIL"), payload), true)
	child.Close(4003, msg)
}

func (s *Session) handleList(child *mux.Channel, body []byte) {
	path, ok := decodePath(body)
	if !ok {
		failAndClose(child, "bad LIST path")
		return
	}
	entries, err := s.device.ListDirEntries(path)
	if err != nil {
		failAndClose(child, errors.Wrap(err, "list").Error())
		return
	}
	for entries.Next() {
		e := entries.Entry()
		name := []byte(e.Name)
		dent := wire.Concat(
			[]byte("DENT"),
			wire.PutU32LE(uint32(e.Mode)),
			wire.PutU32LE(uint32(e.Size)),
			wire.PutU32LE(uint32(e.ModifiedAt.Unix())),
			wire.PutU32LE(uint32(len(name))),
			name,
		)
		_ = child.Send(dent, true)
	}
	if err := entries.Err(); err != nil {
		failAndClose(child, errors.Wrap(err, "list readdir").Error())
		return
	}
	child.Close(0, "")
}

func (s *Session) handleStat(child *mux.Channel, body []byte) {
	path, ok := decodePath(body)
	if !ok {
		failAndClose(child, "bad STAT path")
		return
	}
	info, err := s.device.Stat(path)
	if err != nil {
		failAndClose(child, errors.Wrap(err, "stat").Error())
		return
	}
	payload := wire.Concat(
		[]byte("STAT"),
		wire.PutU32LE(uint32(info.Mode)),
		wire.PutU32LE(uint32(info.Size)),
		wire.PutU32LE(uint32(info.ModifiedAt.Unix())),
	)
	_ = child.Send(payload, true)
	child.Close(0, "")
}

func (s *Session) handleRecv(child *mux.Channel, body []byte) {
	path, ok := decodePath(body)
	if !ok {
		failAndClose(child, "bad RECV path")
		return
	}
	r, err := s.device.OpenRead(path)
	if err != nil {
		failAndClose(child, errors.Wrap(err, "open for recv").Error())
		return
	}
	defer r.Close()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := wire.Concat([]byte("DATA"), buf[:n])
			_ = child.Send(chunk, true)
		}
		if readErr != nil {
			if readErr != io.EOF {
				failAndClose(child, errors.Wrap(readErr, "recv read").Error())
				return
			}
			break
		}
	}
	_ = child.Send([]byte("DONE"), true)
	child.Close(0, "")
}

// push sub-protocol message types, per the binary layout documented in
// the component spec: [type][id:i16-BE][state:i8][...].
const (
	pushMsgType   = 102
	stateNew      = 0
	stateStart    = 1
	stateAppend   = 2
	stateFinish   = 3
	stateCancel   = 4
)

const (
	sendAckTimeout    = 10 * time.Second
	sendFinishTimeout = 30 * time.Second
)

func (s *Session) handleSend(child *mux.Channel) {
	var (
		writer io.WriteCloser
		nextID int16
	)

	cleanup := func() {
		if writer != nil {
			_ = writer.Close()
		}
	}

	recv := child.Recv()
	for {
		timer := time.NewTimer(sendAckTimeout)
		var msg mux.Message
		var ok bool
		select {
		case msg, ok = <-recv:
			timer.Stop()
		case <-timer.C:
			failAndClose(child, "send timed out waiting for next step")
			cleanup()
			return
		}
		if !ok {
			cleanup()
			return
		}

		b := msg.Payload
		if len(b) < 4 || b[0] != pushMsgType {
			continue
		}
		id := int16(wire.U16BE(b[1:3]))
		state := b[3]

		switch state {
		case stateNew:
			nextID++
			ack := wire.Concat(wire.PutU16BE(uint16(nextID)), []byte{1})
			_ = child.Send(append([]byte{pushMsgType}, ack...), true)

		case stateStart:
			if len(b) < 10 {
				failAndClose(child, "malformed START")
				cleanup()
				return
			}
			nameLen := wire.U16BE(b[8:10])
			if len(b) < int(10+nameLen) {
				failAndClose(child, "malformed START name")
				cleanup()
				return
			}
			dest := string(b[10 : 10+nameLen])
			w, err := s.device.OpenWrite(dest, 0o644, time.Now())
			if err != nil {
				failAndClose(child, errors.Wrap(err, "open write").Error())
				cleanup()
				return
			}
			writer = w
			ackOK(child, id)

		case stateAppend:
			if writer == nil || len(b) < 8 {
				failAndClose(child, "APPEND before START")
				cleanup()
				return
			}
			n := wire.U32BE(b[4:8])
			end := 8 + int(n)
			if end > len(b) {
				failAndClose(child, "malformed APPEND length")
				cleanup()
				return
			}
			if _, err := writer.Write(b[8:end]); err != nil {
				failAndClose(child, errors.Wrap(err, "append write").Error())
				cleanup()
				return
			}
			ackOK(child, id)

		case stateFinish:
			cleanup()
			writer = nil
			ackOK(child, id)
			child.Close(0, "")
			return

		case stateCancel:
			cleanup()
			writer = nil
			child.Close(4003, "cancelled")
			return
		}
	}
	cleanup()
}

func ackOK(child *mux.Channel, id int16) {
	ack := wire.Concat(wire.PutU16BE(uint16(id)), []byte{0})
	_ = child.Send(append([]byte{pushMsgType}, ack...), true)
}
