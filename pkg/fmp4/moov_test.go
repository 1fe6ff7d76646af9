// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

import (
	"encoding/binary"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

// findBox does a shallow, non-recursive scan for the first child box with
// the given fourcc directly inside body, returning that child's own bytes
// (header included) or nil if absent.
func findBox(body []byte, fourcc string) []byte {
	for i := 0; i+8 <= len(body); {
		size := int(binary.BigEndian.Uint32(body[i : i+4]))
		if size < 8 || i+size > len(body) {
			return nil
		}
		if string(body[i+4:i+8]) == fourcc {
			return body[i : i+size]
		}
		i += size
	}
	return nil
}

func newVideoOnlyFragmenter() *Fragmenter {
	f := NewFragmenter()
	f.codecWidth = 1280
	f.codecHeight = 720
	f.sarWidth = 1
	f.sarHeight = 1
	f.chromaFormatIdc = 1
	f.bitDepthLumaMinus8 = 0
	f.bitDepthChromaMinus8 = 0
	// profile_idc=100 (High), constraint flags=0, level_idc=31 -- a real
	// SPS parse would fill many more bytes, but avcC only reads sps[1..3].
	f.sps = []byte{0x67, 100, 0x00, 31, 0x11, 0x22, 0x33}
	f.pps = []byte{0x68, 0xce, 0x3c, 0x80}
	return f
}

func TestBuildFtypAndMoov_TopLevelBoxesWellFormed(t *testing.T) {
	f := newVideoOnlyFragmenter()
	out := f.buildFtypAndMoov()

	ftyp := findBox(out, "ftyp")
	assert.Equal(t, false, ftyp == nil)
	assert.Equal(t, uint32(len(ftyp)), binary.BigEndian.Uint32(ftyp[0:4]))

	moov := findBox(out[len(ftyp):], "moov")
	assert.Equal(t, false, moov == nil)
	assert.Equal(t, uint32(len(moov)), binary.BigEndian.Uint32(moov[0:4]))

	mvhd := findBox(moov[8:], "mvhd")
	assert.Equal(t, false, mvhd == nil)

	trak := findBox(moov[8:], "trak")
	assert.Equal(t, false, trak == nil)

	mvex := findBox(moov[8:], "mvex")
	assert.Equal(t, false, mvex == nil)
	trex := findBox(mvex[8:], "trex")
	assert.Equal(t, false, trex == nil)
	assert.Equal(t, uint32(videoTrackID), binary.BigEndian.Uint32(trex[8:12]))
}

// visualSampleEntryFixedLen is ISO/IEC 14496-12's VisualSampleEntry fixed
// prefix (reserved/data_reference_index through compressorname/depth)
// before the codec-specific configuration box begins.
const visualSampleEntryFixedLen = 78

func TestBuildVideoSampleEntry_UsesAvc1WhenNotHevc(t *testing.T) {
	f := newVideoOnlyFragmenter()
	entry := f.buildVideoSampleEntry()

	assert.Equal(t, "avc1", string(entry[4:8]))
	avcC := entry[8+visualSampleEntryFixedLen:]
	assert.Equal(t, "avcC", string(avcC[4:8]))
	assert.Equal(t, uint32(len(avcC)), binary.BigEndian.Uint32(avcC[0:4]))
	body := avcC[8:]
	assert.Equal(t, uint8(1), body[0]) // configurationVersion
	assert.Equal(t, f.sps[1], body[1]) // AVCProfileIndication
	assert.Equal(t, f.sps[2], body[2]) // profile_compatibility
	assert.Equal(t, f.sps[3], body[3]) // AVCLevelIndication
}

func TestBuildVideoSampleEntry_UsesHvc1WhenHevc(t *testing.T) {
	f := newVideoOnlyFragmenter()
	f.h265 = true
	f.vps = []byte{0x40, 0x01}
	f.generalProfileIdc = 1
	entry := f.buildVideoSampleEntry()

	assert.Equal(t, "hvc1", string(entry[4:8]))
	hvcC := entry[8+visualSampleEntryFixedLen:]
	assert.Equal(t, "hvcC", string(hvcC[4:8]))
	assert.Equal(t, uint32(len(hvcC)), binary.BigEndian.Uint32(hvcC[0:4]))
}

func TestBuildEsds_CarriesAudioSpecificConfig(t *testing.T) {
	f := NewFragmenter()
	f.aacProfile = 1 // AAC LC
	f.samplingFrequencyIndex = 4
	f.samplingFrequency = 44100
	f.channelConfiguration = 2

	esds := f.buildEsds()
	assert.Equal(t, uint8(0x03), esds[0]) // ES_DescrTag
}
