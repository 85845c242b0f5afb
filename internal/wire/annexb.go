package wire

import "bytes"

var (
	startCode3 = []byte{0x00, 0x00, 0x01}
	startCode4 = []byte{0x00, 0x00, 0x00, 0x01}
)

// maxPendingWithoutStartCode bounds the retained buffer when no start code
// has been observed yet, so malformed input can't grow memory unboundedly.
const maxPendingWithoutStartCode = 4096

// AnnexBSplitter consumes arbitrary byte chunks from a scrcpy video socket
// and emits complete NAL units, each still carrying its leading start code.
// It is the streaming generalization of a one-shot "split a whole buffer"
// helper: the proxy only ever sees partial TCP reads, so the splitter must
// retain state across Feed calls.
type AnnexBSplitter struct {
	buf []byte
}

func NewAnnexBSplitter() *AnnexBSplitter {
	return &AnnexBSplitter{}
}

// Feed appends chunk to the internal buffer and returns any complete NAL
// units (start code + payload) that can now be emitted. A unit is complete
// once the start of the NEXT unit has been observed.
func (s *AnnexBSplitter) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var units [][]byte
	for {
		first := findStartCode(s.buf)
		if first == -1 {
			if len(s.buf) > maxPendingWithoutStartCode {
				s.buf = s.buf[len(s.buf)-maxPendingWithoutStartCode:]
			}
			return units
		}
		firstLen := startCodeLen(s.buf, first)
		next := findStartCode(s.buf[first+firstLen:])
		if next == -1 {
			// Only one start code seen so far; wait for more data before
			// we know where this unit ends. Drop any leading garbage
			// before the start code.
			if first > 0 {
				s.buf = s.buf[first:]
			}
			return units
		}
		next += first + firstLen
		units = append(units, append([]byte(nil), s.buf[first:next]...))
		s.buf = s.buf[next:]
	}
}

// Flush returns any trailing unit buffered at stream close, or nil if
// nothing usable remains.
func (s *AnnexBSplitter) Flush() []byte {
	first := findStartCode(s.buf)
	if first == -1 {
		return nil
	}
	out := append([]byte(nil), s.buf[first:]...)
	s.buf = nil
	return out
}

func findStartCode(data []byte) int {
	pos := bytes.Index(data, startCode3)
	if pos > 0 && data[pos-1] == 0x00 {
		return pos - 1
	}
	return pos
}

func startCodeLen(data []byte, at int) int {
	if bytes.HasPrefix(data[at:], startCode4) {
		return len(startCode4)
	}
	return len(startCode3)
}

// NALUnitType is the 5-bit type field of an H.264 NAL unit header.
type NALUnitType uint8

const (
	NALUnitTypeSlice NALUnitType = 1
	NALUnitTypeIDR   NALUnitType = 5
	NALUnitTypeSEI   NALUnitType = 6
	NALUnitTypeSPS   NALUnitType = 7
	NALUnitTypePPS   NALUnitType = 8
	NALUnitTypeAUD   NALUnitType = 9
)

// NALUnitType extracts the type field from a unit returned by Feed/Flush
// (a unit always begins with a start code).
func (s *AnnexBSplitter) NALUnitType(unit []byte) (NALUnitType, bool) {
	n := startCodeLen(unit, 0)
	if len(unit) <= n {
		return 0, false
	}
	return NALUnitType(unit[n] & 0x1F), true
}

// IsKeyFrame reports whether unit carries an IDR slice.
func (s *AnnexBSplitter) IsKeyFrame(unit []byte) bool {
	t, ok := s.NALUnitType(unit)
	return ok && t == NALUnitTypeIDR
}
