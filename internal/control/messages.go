// Package control encodes and decodes the fixed-layout binary control
// messages the browser sends upstream (key, touch, scroll, text) and the
// stream configuration header that precedes a scrcpy video stream.
//
// The proxy forwards these bytes opaquely and does not import this
// package; it holds the layouts so well-formed messages can be built and
// validated (its own tests do so) without duplicating them.
package control

import (
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/wire"
)

const (
	TypeKey    = 0
	TypeTouch  = 2
	TypeText   = 1
	TypeScroll = 3

	streamConfigMarker = 0x65
)

type KeyEvent struct {
	Action  uint8
	Keycode uint32
	Repeat  uint32
	Meta    uint32
}

// EncodeKeyEvent lays out [type=0][action][keycode][repeat][meta], 14 bytes.
func EncodeKeyEvent(e KeyEvent) []byte {
	return wire.Concat(
		[]byte{TypeKey, e.Action},
		wire.PutU32BE(e.Keycode),
		wire.PutU32BE(e.Repeat),
		wire.PutU32BE(e.Meta),
	)
}

func DecodeKeyEvent(b []byte) (KeyEvent, bool) {
	if len(b) != 14 || b[0] != TypeKey {
		return KeyEvent{}, false
	}
	return KeyEvent{
		Action:  b[1],
		Keycode: wire.U32BE(b[2:6]),
		Repeat:  wire.U32BE(b[6:10]),
		Meta:    wire.U32BE(b[10:14]),
	}, true
}

type TouchEvent struct {
	Action    uint8
	PointerID uint32
	X, Y      uint32
	ScreenW   uint16
	ScreenH   uint16
	Pressure  uint16
	Buttons   uint32
}

// EncodeTouchEvent lays out the 29-byte touch message defined by the
// stream protocol: [type=2][action][u32 zero][pointerId][x][y][w][h][pressure][buttons]
// followed by one trailing zero byte.
func EncodeTouchEvent(e TouchEvent) []byte {
	return wire.Concat(
		[]byte{TypeTouch, e.Action},
		wire.PutU32BE(0),
		wire.PutU32BE(e.PointerID),
		wire.PutU32BE(e.X),
		wire.PutU32BE(e.Y),
		wire.PutU16BE(e.ScreenW),
		wire.PutU16BE(e.ScreenH),
		wire.PutU16BE(e.Pressure),
		wire.PutU32BE(e.Buttons),
		[]byte{0},
	)
}

func DecodeTouchEvent(b []byte) (TouchEvent, bool) {
	if len(b) != 29 || b[0] != TypeTouch {
		return TouchEvent{}, false
	}
	return TouchEvent{
		Action:    b[1],
		PointerID: wire.U32BE(b[6:10]),
		X:         wire.U32BE(b[10:14]),
		Y:         wire.U32BE(b[14:18]),
		ScreenW:   wire.U16BE(b[18:20]),
		ScreenH:   wire.U16BE(b[20:22]),
		Pressure:  wire.U16BE(b[22:24]),
		Buttons:   wire.U32BE(b[24:28]),
	}, true
}

type ScrollEvent struct {
	X, Y     uint32
	ScreenW  uint16
	ScreenH  uint16
	HScroll  int32
	VScroll  int32
}

// EncodeScrollEvent lays out the 21-byte scroll message:
// [type=3][x][y][w][h][hScroll][vScroll].
func EncodeScrollEvent(e ScrollEvent) []byte {
	return wire.Concat(
		[]byte{TypeScroll},
		wire.PutU32BE(e.X),
		wire.PutU32BE(e.Y),
		wire.PutU16BE(e.ScreenW),
		wire.PutU16BE(e.ScreenH),
		wire.PutI32BE(e.HScroll),
		wire.PutI32BE(e.VScroll),
	)
}

func DecodeScrollEvent(b []byte) (ScrollEvent, bool) {
	if len(b) != 21 || b[0] != TypeScroll {
		return ScrollEvent{}, false
	}
	return ScrollEvent{
		X:       wire.U32BE(b[1:5]),
		Y:       wire.U32BE(b[5:9]),
		ScreenW: wire.U16BE(b[9:11]),
		ScreenH: wire.U16BE(b[11:13]),
		HScroll: wire.I32BE(b[13:17]),
		VScroll: wire.I32BE(b[17:21]),
	}, true
}

// EncodeTextEvent lays out [type=1][utf-8 bytes][0x00].
func EncodeTextEvent(text string) []byte {
	return wire.Concat([]byte{TypeText}, []byte(text), []byte{0x00})
}

func DecodeTextEvent(b []byte) (string, bool) {
	if len(b) < 2 || b[0] != TypeText || b[len(b)-1] != 0x00 {
		return "", false
	}
	return string(b[1 : len(b)-1]), true
}

// StreamConfig is the 36-byte header the browser sends as the first frame
// of a scrcpy video stream, before any video data follows.
type StreamConfig struct {
	BitrateOver256       uint32
	MaxFPS               uint8
	IFrameInterval       uint8
	Width                uint16
	Height               uint16
	SendFrameMeta        bool
	LockedVideoOrientation int8
	DisplayID            uint32
}

func EncodeStreamConfig(c StreamConfig) []byte {
	buf := make([]byte, 36)
	buf[0] = streamConfigMarker
	copy(buf[1:5], wire.PutU32LE(c.BitrateOver256))
	buf[8] = c.MaxFPS
	buf[9] = c.IFrameInterval
	copy(buf[10:12], wire.PutU16BE(c.Width))
	copy(buf[12:14], wire.PutU16BE(c.Height))
	if c.SendFrameMeta {
		buf[22] = 1
	}
	buf[23] = byte(c.LockedVideoOrientation)
	copy(buf[24:28], wire.PutU32LE(c.DisplayID))
	return buf
}

func DecodeStreamConfig(b []byte) (StreamConfig, bool) {
	if len(b) != 36 || b[0] != streamConfigMarker {
		return StreamConfig{}, false
	}
	return StreamConfig{
		BitrateOver256:         wire.U32LE(b[1:5]),
		MaxFPS:                 b[8],
		IFrameInterval:         b[9],
		Width:                  wire.U16BE(b[10:12]),
		Height:                 wire.U16BE(b[12:14]),
		SendFrameMeta:          b[22] != 0,
		LockedVideoOrientation: int8(b[23]),
		DisplayID:              wire.U32LE(b[24:28]),
	}, true
}
