// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package pipeline

import (
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"

	"github.com/memseg/tsmemseg/pkg/bits"
	"github.com/memseg/tsmemseg/pkg/mpegts"
)

// The helpers below build the smallest TS packets that exercise
// Segmenter -> (Fragmenter) -> Publisher end to end, the same shape
// tsmemseg.cpp's own packet loop is driven by.

const (
	testPmtPid   = 0x100
	testVideoPid = 0x101
)

func ipTsPacket(pid uint16, unitStart bool, cc uint8, payload []byte) []byte {
	p := make([]byte, mpegts.PacketSize)
	p[0] = mpegts.SyncByte
	p[1] = byte(pid >> 8 & 0x1f)
	if unitStart {
		p[1] |= 0x40
	}
	p[2] = byte(pid)
	p[3] = 0x10 | (cc & 0x0f)
	n := copy(p[4:], payload)
	for i := 4 + n; i < len(p); i++ {
		p[i] = 0xff
	}
	return p
}

func ipWithCrc(body []byte) []byte {
	crc := bits.CRC32Mpeg2(0xFFFFFFFF, body)
	return append(append([]byte(nil), body...), byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func ipPatPacket(pmtPid uint16, cc uint8) []byte {
	body := []byte{
		0x00, 0xb0, 0x0d,
		0x00, 0x01,
		0xc3, 0x00, 0x00,
		0x00, 0x01,
		0xe0 | byte(pmtPid>>8), byte(pmtPid),
	}
	payload := append([]byte{0x00}, ipWithCrc(body)...)
	return ipTsPacket(0, true, cc, payload)
}

func ipPmtPacket(pmtPid, videoPid uint16, cc uint8) []byte {
	body := []byte{
		0x02, 0xb0, 0x12,
		0x00, 0x01,
		0xc3, 0x00, 0x00,
		0xff, 0xff,
		0xf0, 0x00,
		byte(mpegts.StreamTypeAvcVideo),
		0xe0 | byte(videoPid>>8), byte(videoPid),
		0xf0, 0x00,
	}
	payload := append([]byte{0x00}, ipWithCrc(body)...)
	return ipTsPacket(pmtPid, true, cc, payload)
}

func ipPesHeader(pts uint64) []byte {
	h := make([]byte, 14)
	h[0], h[1], h[2] = 0x00, 0x00, 0x01
	h[3] = 0xe0
	h[4], h[5] = 0x00, 0x00
	h[6] = 0x80
	h[7] = 0x80
	h[8] = 5
	h[9] = 0x21 | byte((pts>>30)&0x07)<<1
	g1 := uint16((pts>>15)&0x7fff)<<1 | 1
	h[10] = byte(g1 >> 8)
	h[11] = byte(g1)
	g2 := uint16(pts&0x7fff)<<1 | 1
	h[12] = byte(g2 >> 8)
	h[13] = byte(g2)
	return h
}

// ipSliceVideoPesPacket builds one TS packet carrying a PES whose
// elementary stream is a single bare Annex-B NAL unit, enough to drive the
// Segmenter's IRAP scan (TS mode never needs SPS/PPS).
func ipSliceVideoPesPacket(pts uint64, cc uint8, nalType byte) []byte {
	payload := append(ipPesHeader(pts), 0x00, 0x00, 0x01, nalType, 0xaa, 0xbb)
	return ipTsPacket(testVideoPid, true, cc, payload)
}

// ipKeyframeWithParamsPesPacket builds one TS packet carrying a PES with a
// full SPS+PPS+IDR access unit -- fMP4 mode's Fragmenter needs SPS/PPS
// before it can build an init segment, so the very first key frame that
// ends up inside a cut's packets must carry them.
func ipKeyframeWithParamsPesPacket(pts uint64, cc uint8) []byte {
	sps := []byte{0x67, 0x42, 0x00, 0x1e, 0xf8, 0x28, 0x3f, 0x20}
	pps := []byte{0x68, 0xce, 0x3c, 0x80}
	idr := []byte{0x65, 0x88, 0x84, 0x00}
	startCode := []byte{0x00, 0x00, 0x01}

	out := ipPesHeader(pts)
	out = append(out, startCode...)
	out = append(out, sps...)
	out = append(out, startCode...)
	out = append(out, pps...)
	out = append(out, startCode...)
	out = append(out, idr...)
	return ipTsPacket(testVideoPid, true, cc, out)
}

func newIntegrationDriver(t *testing.T, isMp4 bool, partialTarget time.Duration) *Driver {
	cfg := Config{
		SegName:             "test",
		FifoDirectory:       t.TempDir(),
		IsMp4:               isMp4,
		TargetDuration:      4 * time.Second,
		PartialTarget:       partialTarget,
		SegmentCount:        3,
		MaxKBytes:           4096,
		ReadRatePercent:     100,
		FillReadRatePercent: 100,
	}
	d, err := NewDriver(cfg)
	assert.Equal(t, nil, err)
	return d
}

func acquireIpPatPmt(d *Driver) {
	d.segmenter.FeedPacket(ipPatPacket(testPmtPid, 0))
	d.segmenter.FeedPacket(ipPmtPacket(testPmtPid, testVideoPid, 0))
}

// TestDriver_TsMode_SegmentsAndAdvancesSlots drives a synthetic TS stream
// through the whole Segmenter -> Publisher chain in TS mode (no
// Fragmenter), the same path Run's read loop feeds packets through for
// every packet it reads.
func TestDriver_TsMode_SegmentsAndAdvancesSlots(t *testing.T) {
	d := newIntegrationDriver(t, false, 0)
	acquireIpPatPmt(d)

	assert.Equal(t, uint32(0), d.segmentNumber)

	d.segmenter.FeedPacket(ipSliceVideoPesPacket(0, 1, 5)) // first key: latched, no cut
	assert.Equal(t, uint32(0), d.segmentNumber)

	d.segmenter.FeedPacket(ipSliceVideoPesPacket(4*mpegts.PtsClockHz, 2, 5)) // real cut
	assert.Equal(t, uint32(1), d.segmentNumber)
	firstSlot := d.currentSlotIndex()

	d.segmenter.FeedPacket(ipSliceVideoPesPacket(8*mpegts.PtsClockHz, 3, 5)) // second cut
	assert.Equal(t, uint32(2), d.segmentNumber)
	assert.Equal(t, true, d.currentSlotIndex() != firstSlot)
}

// TestDriver_Mp4Mode_BuildsInitSegmentAndFragments drives a synthetic TS
// stream through the whole chain in fMP4 mode: Segmenter cuts feed
// Fragmenter.AddPackets, whose GetHeader()/FragmentSizes() then flow into
// Publisher.PublishSegment via onCut.
func TestDriver_Mp4Mode_BuildsInitSegmentAndFragments(t *testing.T) {
	d := newIntegrationDriver(t, true, 1*time.Second)
	acquireIpPatPmt(d)

	d.segmenter.FeedPacket(ipKeyframeWithParamsPesPacket(0, 1)) // first key: SPS+PPS+IDR, latched
	d.segmenter.FeedPacket(ipSliceVideoPesPacket(4*mpegts.PtsClockHz, 2, 5)) // real cut

	assert.Equal(t, uint32(1), d.segmentNumber)
	assert.Equal(t, true, len(d.frag.GetHeader()) > 0)
}

// TestDriver_Mp4Mode_PartialFragmentExtendsOpenSegment confirms a
// low-latency partial cut reaches the Fragmenter without finalizing the
// segment or advancing the slot, matching onCut's
// "CutPartial extends, doesn't finalize" dispatch.
func TestDriver_Mp4Mode_PartialFragmentExtendsOpenSegment(t *testing.T) {
	d := newIntegrationDriver(t, true, 1*time.Second)
	acquireIpPatPmt(d)

	d.segmenter.FeedPacket(ipKeyframeWithParamsPesPacket(0, 1))
	d.segmenter.FeedPacket(ipSliceVideoPesPacket(mpegts.PtsClockHz, 2, 1))
	assert.Equal(t, uint32(0), d.segmentNumber)

	d.segmenter.FeedPacket(ipSliceVideoPesPacket(mpegts.PtsClockHz+mpegts.PtsClockHz/4, 3, 1))

	assert.Equal(t, uint32(0), d.segmentNumber) // still open: a partial cut never finalizes
	assert.Equal(t, true, len(d.frag.GetHeader()) > 0)
}
