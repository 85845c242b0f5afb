package proxy

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"

	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/util"
	"github.com/xtiangaming08/stream-phonefarm-solumate/internal/wire"
)

// codecWatcher splits upstream video bytes into NAL units and logs whenever
// the SPS changes, since a changed SPS means the browser's decoder must
// reinitialize (new resolution, profile, or level negotiated by scrcpy).
type codecWatcher struct {
	splitter *wire.AnnexBSplitter
	lastSPS  uint32
	haveSPS  bool
}

func newCodecWatcher() *codecWatcher {
	return &codecWatcher{splitter: wire.NewAnnexBSplitter()}
}

// inspect feeds a chunk of upstream bytes through the streaming splitter
// and, for any unit it recognizes as SPS, re-parses it with mediacommon's
// Annex-B unmarshaler to confirm the unit boundary before hashing it.
func (c *codecWatcher) inspect(sessionID string, chunk []byte) {
	for _, unit := range c.splitter.Feed(chunk) {
		typ, ok := c.splitter.NALUnitType(unit)
		if !ok || typ != wire.NALUnitTypeSPS {
			continue
		}

		var au h264.AnnexB
		if err := au.Unmarshal(unit); err != nil {
			util.GetLogger().Warn("proxy: SPS unit failed Annex-B validation", "session", sessionID, "error", err)
			continue
		}

		hash := wire.FNV1a32(unit)
		if c.haveSPS && hash == c.lastSPS {
			continue
		}
		c.haveSPS = true
		c.lastSPS = hash
		util.GetLogger().Info("proxy: video SPS changed", "session", sessionID, "nal_units", len(au))
	}
}
