// Package wire provides the little/big-endian byte primitives and the
// Annex-B NAL splitter shared by the multiplexer, the control-message
// encoders and the FSLS file channel.
package wire

import (
	"encoding/binary"
	"hash/fnv"
)

// Concat joins byte slices without mutating any of them.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func PutU16LE(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func PutU32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func U16LE(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func U32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func PutU16BE(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func PutU32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func PutI32BE(v int32) []byte { return PutU32BE(uint32(v)) }

func U16BE(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func U32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func I32BE(b []byte) int32  { return int32(binary.BigEndian.Uint32(b)) }

// Tag4 builds a 4-byte ASCII tag (e.g. "FSLS", "SEND") used as an
// init/opcode marker for multiplexer channels.
func Tag4(s string) ([4]byte, bool) {
	var out [4]byte
	if len(s) != 4 {
		return out, false
	}
	copy(out[:], s)
	return out, true
}

// FNV1a32 hashes data with 32-bit FNV-1a, used to detect SPS/PPS changes
// in the downstream video without re-parsing every access unit.
func FNV1a32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}
