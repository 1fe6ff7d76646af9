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

	"github.com/memseg/tsmemseg/pkg/bits"
	"github.com/memseg/tsmemseg/pkg/mpegts"
)

// The helpers below build the smallest TS packets that exercise the PAT ->
// PMT -> video-PES state machine end to end, the same shape tsmemseg.cpp's
// own packet loop is driven by.

func tsPacket(pid uint16, unitStart bool, cc uint8, payload []byte) []byte {
	p := make([]byte, mpegts.PacketSize)
	p[0] = mpegts.SyncByte
	p[1] = byte(pid >> 8 & 0x1f)
	if unitStart {
		p[1] |= 0x40
	}
	p[2] = byte(pid)
	p[3] = 0x10 | (cc & 0x0f) // adaptation_field_control = '01', payload only
	n := copy(p[4:], payload)
	for i := 4 + n; i < len(p); i++ {
		p[i] = 0xff
	}
	return p
}

func withCrc(body []byte) []byte {
	crc := bits.CRC32Mpeg2(0xFFFFFFFF, body)
	return append(append([]byte(nil), body...), byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func patPacket(pmtPid uint16, cc uint8) []byte {
	body := []byte{
		0x00, 0xb0, 0x0d, // table_id, section_length(13)
		0x00, 0x01, // transport_stream_id
		0xc3, 0x00, 0x00, // version/current_next, section_number, last_section_number
		0x00, 0x01, // program_number
		0xe0 | byte(pmtPid>>8), byte(pmtPid), // reserved + PMT_pid
	}
	section := withCrc(body)
	payload := append([]byte{0x00}, section...)
	return tsPacket(0, true, cc, payload)
}

func pmtPacket(pmtPid, videoPid uint16, cc uint8) []byte {
	body := []byte{
		0x02, 0xb0, 0x12, // table_id, section_length(18)
		0x00, 0x01, // program_number
		0xc3, 0x00, 0x00, // version/current_next, section_number, last_section_number
		0xff, 0xff, // reserved + PCR_PID
		0xf0, 0x00, // reserved + program_info_length(0)
		byte(mpegts.StreamTypeAvcVideo),
		0xe0 | byte(videoPid>>8), byte(videoPid),
		0xf0, 0x00, // reserved + ES_info_length(0)
	}
	section := withCrc(body)
	payload := append([]byte{0x00}, section...)
	return tsPacket(pmtPid, true, cc, payload)
}

func ptsBytes(pts uint64) [5]byte {
	var b [5]byte
	b[0] = 0x21 | byte((pts>>30)&0x07)<<1
	g1 := uint16((pts>>15)&0x7fff)<<1 | 1
	b[1] = byte(g1 >> 8)
	b[2] = byte(g1)
	g2 := uint16(pts&0x7fff)<<1 | 1
	b[3] = byte(g2 >> 8)
	b[4] = byte(g2)
	return b
}

// videoPesPacket builds a single TS packet carrying a whole PES packet (PTS
// only, no DTS) whose elementary stream is one Annex-B NAL unit of the
// given nal_unit_type -- 5 for an AVC IDR slice, 1 for a regular slice.
func videoPesPacket(videoPid uint16, pts uint64, cc uint8, nalType byte) []byte {
	pesHeader := make([]byte, 14)
	pesHeader[0], pesHeader[1], pesHeader[2] = 0x00, 0x00, 0x01
	pesHeader[3] = 0xe0 // stream_id: video
	pesHeader[4], pesHeader[5] = 0x00, 0x00 // PES_packet_length: unbounded
	pesHeader[6] = 0x80
	pesHeader[7] = 0x80 // PTS_DTS_flags = '10' (PTS only)
	pesHeader[8] = 5    // header_data_length
	pb := ptsBytes(pts)
	copy(pesHeader[9:14], pb[:])

	nal := []byte{0x00, 0x00, 0x01, nalType, 0xaa, 0xbb}
	payload := append(pesHeader, nal...)
	return tsPacket(videoPid, true, cc, payload)
}

const (
	testPmtPid   = 0x100
	testVideoPid = 0x101
)

func newTestSegmenter(cuts *[]Cut) *Segmenter {
	cfg := Config{
		TargetSegmentDuration:     4 * mpegts.PtsClockHz,
		NextTargetSegmentDuration: 4 * mpegts.PtsClockHz,
		TargetFragDuration:        1 * mpegts.PtsClockHz,
		SegMaxBytes:               10 * 1024 * 1024,
		FragmentationEnabled:      true,
	}
	return NewSegmenter(cfg, func(c Cut) { *cuts = append(*cuts, c) })
}

func acquirePatPmt(s *Segmenter) {
	s.FeedPacket(patPacket(testPmtPid, 0))
	s.FeedPacket(pmtPacket(testPmtPid, testVideoPid, 0))
}

func TestSegmenter_AcquiresPatAndPmt(t *testing.T) {
	var cuts []Cut
	s := newTestSegmenter(&cuts)
	acquirePatPmt(s)

	assert.Equal(t, uint16(testPmtPid), s.pat.FirstPmtPid)
	assert.Equal(t, uint16(testVideoPid), s.pmt.FirstVideoPid)
	assert.Equal(t, mpegts.StreamTypeAvcVideo, s.pmt.FirstVideoStreamType)
	assert.Equal(t, uint16(testVideoPid), s.effectiveKeyPid())
}

// TestSegmenter_PartialFragmentFiresOnNonKeyUnitStart is a regression test:
// before classifyAndCut was wired to run on every governing-PID unit start
// (not only isKey/forceSegment), a partial fragment mark that qualified
// between two ordinary (non-IDR) unit starts was never actually cut.
func TestSegmenter_PartialFragmentFiresOnNonKeyUnitStart(t *testing.T) {
	var cuts []Cut
	s := newTestSegmenter(&cuts)
	acquirePatPmt(s)

	s.FeedPacket(videoPesPacket(testVideoPid, 0, 0, 5)) // first key, latched, no cut
	assert.Equal(t, 0, len(cuts))

	// One full TargetFragDuration later: arms the partial mark. Not yet
	// past TargetFragDuration/4, so still no cut.
	s.FeedPacket(videoPesPacket(testVideoPid, mpegts.PtsClockHz, 1, 1))
	assert.Equal(t, 0, len(cuts))
	assert.Equal(t, true, s.marked)

	// A further TargetFragDuration/4 ticks on an ordinary, non-IDR unit
	// start: the partial condition now qualifies and must fire even
	// though this packet is neither a key frame nor a forced cut.
	s.FeedPacket(videoPesPacket(testVideoPid, mpegts.PtsClockHz+mpegts.PtsClockHz/4, 2, 1))

	assert.Equal(t, 1, len(cuts))
	assert.Equal(t, CutPartial, cuts[0].Kind)
}

// TestSegmenter_RealKeyFrameCutsSegment exercises the ordinary segment-key
// path once enough PTS has elapsed since the last segment boundary.
func TestSegmenter_RealKeyFrameCutsSegment(t *testing.T) {
	var cuts []Cut
	s := newTestSegmenter(&cuts)
	acquirePatPmt(s)

	s.FeedPacket(videoPesPacket(testVideoPid, 0, 0, 5))
	s.FeedPacket(videoPesPacket(testVideoPid, 4*mpegts.PtsClockHz, 1, 5))

	assert.Equal(t, 1, len(cuts))
	assert.Equal(t, CutSegmentKey, cuts[0].Kind)
}

// TestSegmenter_PmtPidChangeResetsStalePmt is a regression test for
// spec.md's "on PAT update, if the chosen PMT PID changes, the PMT is
// zeroed": without the reset, the old video PID association survives into
// the switch window before the new PMT section reassembles.
func TestSegmenter_PmtPidChangeResetsStalePmt(t *testing.T) {
	var cuts []Cut
	s := newTestSegmenter(&cuts)
	acquirePatPmt(s)
	assert.Equal(t, uint16(testVideoPid), s.effectiveKeyPid())

	const newPmtPid = 0x200
	s.FeedPacket(patPacket(newPmtPid, 1))

	assert.Equal(t, uint16(0), s.pmt.FirstVideoPid)
	assert.Equal(t, uint16(0), s.effectiveKeyPid())

	const newVideoPid = 0x301
	s.FeedPacket(pmtPacket(newPmtPid, newVideoPid, 0))
	assert.Equal(t, uint16(newVideoPid), s.effectiveKeyPid())
}
