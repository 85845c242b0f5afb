package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sps() []byte { return []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00} }
func pps() []byte { return []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xce} }
func idr() []byte { return []byte{0x00, 0x00, 0x01, 0x65, 0xaa, 0xbb} }

func TestAnnexBSplitterWholeBuffer(t *testing.T) {
	s := NewAnnexBSplitter()
	input := Concat(sps(), pps(), idr())

	units := s.Feed(input)
	require.Len(t, units, 2)
	assert.Equal(t, sps(), units[0])
	assert.Equal(t, pps(), units[1])

	last := s.Flush()
	assert.Equal(t, idr(), last)
}

func TestAnnexBSplitterAcrossChunks(t *testing.T) {
	s := NewAnnexBSplitter()
	input := Concat(sps(), pps(), idr())

	var units [][]byte
	for i := 0; i < len(input); i++ {
		units = append(units, s.Feed(input[i:i+1])...)
	}
	require.Len(t, units, 2)
	assert.Equal(t, sps(), units[0])
	assert.Equal(t, pps(), units[1])
	assert.Equal(t, idr(), s.Flush())
}

func TestAnnexBSplitterNALTypeAndKeyFrame(t *testing.T) {
	s := NewAnnexBSplitter()

	typ, ok := s.NALUnitType(sps())
	require.True(t, ok)
	assert.Equal(t, NALUnitTypeSPS, typ)
	assert.False(t, s.IsKeyFrame(sps()))

	typ, ok = s.NALUnitType(idr())
	require.True(t, ok)
	assert.Equal(t, NALUnitTypeIDR, typ)
	assert.True(t, s.IsKeyFrame(idr()))
}

func TestAnnexBSplitterFlushEmptyWhenNoStartCode(t *testing.T) {
	s := NewAnnexBSplitter()
	s.Feed([]byte{0x01, 0x02, 0x03})
	assert.Nil(t, s.Flush())
}
