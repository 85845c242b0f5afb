package mux

import (
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/gwerrors"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/wire"
)

// FrameType is the outer multiplexer frame's first byte.
type FrameType uint8

const (
	FrameCreateChannel FrameType = 4
	FrameCloseChannel  FrameType = 8
	FrameRawBinary     FrameType = 16
	FrameRawString     FrameType = 32
	FrameData          FrameType = 64
)

// frame is a parsed outer multiplexer frame: [type:u8][channel_id:u32-LE][payload].
type frame struct {
	Type      FrameType
	ChannelID uint32
	Payload   []byte
}

func encodeFrame(t FrameType, channelID uint32, payload []byte) []byte {
	return wire.Concat([]byte{byte(t)}, wire.PutU32LE(channelID), payload)
}

func decodeFrame(b []byte) (frame, error) {
	if len(b) < 5 {
		return frame{}, gwerrors.New(gwerrors.ProtocolViolation, "frame shorter than header")
	}
	return frame{
		Type:      FrameType(b[0]),
		ChannelID: wire.U32LE(b[1:5]),
		Payload:   b[5:],
	}, nil
}

// encodeClosePayload builds the CloseChannel payload:
// [code:u16-LE][reason_len:u32-LE][reason utf-8].
func encodeClosePayload(code uint16, reason string) []byte {
	rb := []byte(reason)
	return wire.Concat(wire.PutU16LE(code), wire.PutU32LE(uint32(len(rb))), rb)
}

func decodeClosePayload(b []byte) (code uint16, reason string) {
	if len(b) < 2 {
		return 1000, ""
	}
	code = wire.U16LE(b[0:2])
	if len(b) < 6 {
		return code, ""
	}
	n := wire.U32LE(b[2:6])
	end := 6 + int(n)
	if end > len(b) {
		end = len(b)
	}
	return code, string(b[6:end])
}
