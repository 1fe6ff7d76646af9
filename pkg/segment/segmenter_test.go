// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package segment

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestCutKind_String(t *testing.T) {
	assert.Equal(t, "segment_key", CutSegmentKey.String())
	assert.Equal(t, "partial", CutPartial.String())
	assert.Equal(t, "forced", CutForced.String())
}

func TestPtsDiffOrZero_ForwardProgressIsUnchanged(t *testing.T) {
	assert.Equal(t, uint64(90000), ptsDiffOrZero(190000, 100000))
}

func TestPtsDiffOrZero_BackwardJumpFoldsToZero(t *testing.T) {
	// b ahead of a by a small amount looks like "PTS went backward", not a
	// near-full wraparound, so ptsDiffOrZero folds it to 0 rather than
	// reporting billions of ticks.
	assert.Equal(t, uint64(0), ptsDiffOrZero(100, 200))
}

func TestMinBound_TreatsNegativeAsInfinity(t *testing.T) {
	assert.Equal(t, 5, minBound(-1, 5, 100))
	assert.Equal(t, 5, minBound(5, -1, 100))
	assert.Equal(t, 100, minBound(-1, -1, 100))
	assert.Equal(t, 3, minBound(3, 7, 100))
}

func TestPacketPid_ExtractsThirteenBits(t *testing.T) {
	// pid 0x0234 -> byte1 low 5 bits = 0x02, byte2 = 0x34
	packet := make([]byte, 188)
	packet[0] = 0x47
	packet[1] = 0x02
	packet[2] = 0x34
	assert.Equal(t, uint16(0x0234), packetPid(packet))
}

func TestSegmenter_SyncErrorOnBadPacket(t *testing.T) {
	var cuts int
	s := NewSegmenter(Config{}, func(Cut) { cuts++ })

	bad := make([]byte, 188)
	bad[0] = 0x00 // not the 0x47 sync byte
	s.FeedPacket(bad)

	assert.Equal(t, uint32(1), s.SyncErrorCount)
	assert.Equal(t, 0, cuts)
}

func TestSegmenter_CurrentPtsStartsAtZero(t *testing.T) {
	s := NewSegmenter(Config{}, func(Cut) {})
	assert.Equal(t, uint64(0), s.CurrentPts())
}
