// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

import "github.com/memseg/tsmemseg/pkg/mpegts"

// buildFtypAndMoov builds the init segment (ftyp+moov) once every track
// this stream carries has its parameter sets / audio config captured,
// following mp4fragmenter.cpp's PushMoov: an mvhd, one trak per present
// track (video's avc1/hvc1 or audio's mp4a sample entry), and one mvex/trex
// per track so a player knows every sample's fragment defaults are all
// zero (explicit per-sample values arrive in each fragment's trun).
func (f *Fragmenter) buildFtypAndMoov() []byte {
	var out []byte
	out = box(out, "ftyp", cat([]byte("isom"), u32(1), []byte("isom"), []byte("avc1")))

	hasVideo := f.codecWidth >= 0
	hasAudio := f.aacProfile >= 0

	nextTrackID := uint32(audioTrackID + 1)
	mvhd := fullBox(nil, "mvhd", 0, 0, cat(
		u32(0), u32(0), // creation_time, modification_time
		u32(1000),        // timescale
		u32(0),           // duration
		u32(0x00010000),  // rate
		u16(0x0100), u16(0), // volume, reserved
		u32(0), u32(0), // reserved
		u32(0x00010000), u32(0), u32(0), // matrix row 1
		u32(0), u32(0x00010000), u32(0), // matrix row 2
		u32(0), u32(0), u32(0x40000000), // matrix row 3
		u32(0), u32(0), u32(0), u32(0), u32(0), u32(0), // pre_defined
		u32(nextTrackID),
	))

	var moovBody []byte
	moovBody = append(moovBody, mvhd...)
	if hasVideo {
		moovBody = append(moovBody, f.buildVideoTrak()...)
	}
	if hasAudio {
		moovBody = append(moovBody, f.buildAudioTrak()...)
	}
	moovBody = append(moovBody, f.buildMvex(hasVideo, hasAudio)...)

	return box(out, "moov", moovBody)
}

func (f *Fragmenter) buildMvex(hasVideo, hasAudio bool) []byte {
	var mvex []byte
	if hasVideo {
		mvex = box(mvex, "trex", cat(u32(videoTrackID), u32(1), u32(0), u32(0), u32(0)))
	}
	if hasAudio {
		mvex = box(mvex, "trex", cat(u32(audioTrackID), u32(1), u32(0), u32(0), u32(0)))
	}
	return box(nil, "mvex", mvex)
}

// buildVideoTrak builds the video trak: tkhd, mdia (mdhd/hdlr/minf), minf's
// vmhd/dinf/stbl, and stbl's stsd carrying an avc1 (avcC) or hvc1 (hvcC)
// sample entry plus the all-zero stts/stsc/stsz/stco stubs a fragmented
// track's stbl carries (every real sample table lives in each fragment's
// traf/trun instead).
func (f *Fragmenter) buildVideoTrak() []byte {
	width := uint32((f.codecWidth*f.sarWidth + f.sarHeight - 1) / f.sarHeight)
	height := uint32(f.codecHeight)

	tkhd := fullBox(nil, "tkhd", 0, 0x00000003, cat(
		u32(0), u32(0), // creation/modification time
		u32(videoTrackID),
		u32(0), // reserved
		u32(0), // duration
		u32(0), u32(0), // reserved
		u16(0), u16(0), // layer, alternate_group
		u16(0), u16(0), // volume, reserved
		u32(0x00010000), u32(0), u32(0),
		u32(0), u32(0x00010000), u32(0),
		u32(0), u32(0), u32(0x40000000),
		u32(width<<16),  // width, 16.16 fixed point
		u32(height<<16), // height, 16.16 fixed point
	))

	mdhd := fullBox(nil, "mdhd", 0, 0, cat(u32(0), u32(0), u32(mpegts.PtsClockHz), u32(0), u16(0x55c4), u16(0)))
	hdlr := fullBox(nil, "hdlr", 0, 0, cat(u32(0), []byte("vide"), u32(0), u32(0), u32(0), []byte("Video Handler\x00")))

	sampleEntry := f.buildVideoSampleEntry()
	stsd := fullBox(nil, "stsd", 0, 0, cat(u32(1), sampleEntry))
	stts := fullBox(nil, "stts", 0, 0, u32(0))
	stsc := fullBox(nil, "stsc", 0, 0, u32(0))
	stsz := fullBox(nil, "stsz", 0, 0, cat(u32(0), u32(0)))
	stco := fullBox(nil, "stco", 0, 0, u32(0))
	stbl := box(nil, "stbl", cat(stsd, stts, stsc, stsz, stco))

	vmhd := fullBox(nil, "vmhd", 0, 0x00000001, cat(u16(0), u16(0), u16(0), u16(0)))
	url := fullBox(nil, "url ", 0, 0x00000001, nil)
	dref := fullBox(nil, "dref", 0, 0, cat(u32(1), url))
	dinf := box(nil, "dinf", dref)
	minf := box(nil, "minf", cat(vmhd, dinf, stbl))

	mdia := box(nil, "mdia", cat(mdhd, hdlr, minf))
	return box(nil, "trak", cat(tkhd, mdia))
}

func (f *Fragmenter) buildVideoSampleEntry() []byte {
	fourcc := "avc1"
	var codecConfig []byte
	if f.h265 {
		fourcc = "hvc1"
		codecConfig = box(nil, "hvcC", f.buildHvcC())
	} else {
		codecConfig = box(nil, "avcC", f.buildAvcC())
	}

	body := cat(
		u16(0), u16(0), u16(0), // reserved[6]
		u16(1), // data_reference_index
		u16(0), u16(0), // pre_defined, reserved
		u32(0), u32(0), u32(0), // pre_defined[3]
		u16(uint16(f.codecWidth)), u16(uint16(f.codecHeight)),
		u32(0x00480000), u32(0x00480000), // horizresolution, vertresolution (72dpi)
		u32(0),           // reserved
		u16(1),           // frame_count
		make([]byte, 32), // compressorname
		u16(24),          // depth
		u16(0xffff),      // pre_defined
		codecConfig,
	)
	return box(nil, fourcc, body)
}

func (f *Fragmenter) buildHvcC() []byte {
	body := cat(
		u8(1),
		u8(byte(f.generalProfileSpace<<6)|byte(boolBit(f.generalTierFlag)<<5)|byte(f.generalProfileIdc)),
		f.generalProfileCompatibilityFlags[:],
		f.generalConstraintIndicatorFlags[:],
		u8(byte(f.generalLevelIdc)),
		u16(0xf000|uint16(f.minSpatialSegmentationIdc)),
		u8(0xfc|byte(f.parallelismType)),
		u8(0xfc|byte(f.chromaFormatIdc)),
		u8(0xf8|byte(f.bitDepthLumaMinus8)),
		u8(0xf8|byte(f.bitDepthChromaMinus8)),
		u16(0), // avgFrameRate
		u8(byte((f.numTemporalLayers&0x07)<<3)|byte(boolBit(f.temporalIdNestingFlag)<<2)|0x03),
		u8(3), // numOfArrays
	)
	body = append(body, hvcCArray(0x80|32, f.vps)...)
	body = append(body, hvcCArray(0x80|33, f.sps)...)
	body = append(body, hvcCArray(0x80|34, f.pps)...)
	return body
}

func hvcCArray(arrayHeader byte, nalu []byte) []byte {
	return cat(u8(arrayHeader), u8(0), u8(1), u16(uint16(len(nalu))), nalu)
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// profilesWithoutChromaExt lists the AVC profile_idc values whose avcC must
// NOT carry the chroma_format/bit_depth/sps_ext trailer, per ISO/IEC
// 14496-15 5.3.3.1.2 -- Baseline, Main, and Extended.
var profilesWithoutChromaExt = map[byte]bool{66: true, 77: true, 88: true}

func (f *Fragmenter) buildAvcC() []byte {
	body := cat(
		u8(1),
		u8(f.sps[1]), u8(f.sps[2]), u8(f.sps[3]),
		u8(0xff), // lengthSizeMinusOne=3 | reserved
		u8(0xe1), // numOfSequenceParameterSets=1 | reserved bit
		u16(uint16(len(f.sps))), f.sps,
		u8(1), // numOfPictureParameterSets
		u16(uint16(len(f.pps))), f.pps,
	)
	if !profilesWithoutChromaExt[f.sps[1]] {
		body = cat(body,
			u8(0xfc|byte(f.chromaFormatIdc)),
			u8(0xf8|byte(f.bitDepthLumaMinus8)),
			u8(0xf8|byte(f.bitDepthChromaMinus8)),
			u8(0), // numOfSequenceParameterSetExt
		)
	}
	return body
}

// buildAudioTrak builds the audio trak: tkhd, mdia (mdhd/hdlr/minf), and
// minf's smhd/dinf/stbl, stbl's stsd carrying an mp4a (esds) sample entry
// plus the same all-zero stts/stsc/stsz/stco stubs the video trak carries.
func (f *Fragmenter) buildAudioTrak() []byte {
	tkhd := fullBox(nil, "tkhd", 0, 0x00000003, cat(
		u32(0), u32(0),
		u32(audioTrackID),
		u32(0),
		u32(0),
		u32(0), u32(0),
		u16(0), u16(0),
		u16(0x0100), u16(0),
		u32(0x00010000), u32(0), u32(0),
		u32(0), u32(0x00010000), u32(0),
		u32(0), u32(0), u32(0x40000000),
		u16(0), u16(0), u16(0), u16(0),
	))

	mdhd := fullBox(nil, "mdhd", 0, 0, cat(u32(0), u32(0), u32(uint32(f.samplingFrequency)), u32(0), u16(0x55c4), u16(0)))
	hdlr := fullBox(nil, "hdlr", 0, 0, cat(u32(0), []byte("soun"), u32(0), u32(0), u32(0), []byte("Sound Handler\x00")))

	esds := box(nil, "esds", f.buildEsds())
	sampleEntry := box(nil, "mp4a", cat(
		u32(0), u16(0), // reserved x6
		u16(0), u16(1), // reserved, data_reference_index
		u16(0), u16(0), // version, revision_level
		u32(0), // vendor
		u16(uint16(f.channelConfiguration)),
		u16(16), // samplesize
		u16(0), u16(0), // pre_defined, reserved
		u16(uint16(f.samplingFrequency)), u16(0), // samplerate.16 fixed point
		esds,
	))
	stsd := fullBox(nil, "stsd", 0, 0, cat(u32(1), sampleEntry))
	stts := fullBox(nil, "stts", 0, 0, u32(0))
	stsc := fullBox(nil, "stsc", 0, 0, u32(0))
	stsz := fullBox(nil, "stsz", 0, 0, cat(u32(0), u32(0)))
	stco := fullBox(nil, "stco", 0, 0, u32(0))
	stbl := box(nil, "stbl", cat(stsd, stts, stsc, stsz, stco))

	smhd := fullBox(nil, "smhd", 0, 0, cat(u16(0), u16(0)))
	url := fullBox(nil, "url ", 0, 0x00000001, nil)
	dref := fullBox(nil, "dref", 0, 0, cat(u32(1), url))
	dinf := box(nil, "dinf", dref)
	minf := box(nil, "minf", cat(smhd, dinf, stbl))

	mdia := box(nil, "mdia", cat(mdhd, hdlr, minf))
	return box(nil, "trak", cat(tkhd, mdia))
}

// buildEsds builds the ES_Descriptor ISO/IEC 14496-1 carries AAC's
// DecoderConfigDescriptor/AudioSpecificConfig in, per ISO/IEC 14496-3
// 1.6.2.1 -- the byte layout mp4fragmenter.cpp's PushMoov writes literally.
func (f *Fragmenter) buildEsds() []byte {
	audioSpecificConfig := []byte{
		byte((f.aacProfile+1)<<3) | byte(f.samplingFrequencyIndex>>1),
		byte((f.samplingFrequencyIndex&1)<<7) | byte(f.channelConfiguration<<3),
	}
	decSpecificInfo := cat(u8(0x05), u8(2), audioSpecificConfig)
	decoderConfig := cat(
		u8(0x40),       // objectTypeIndication: Audio ISO/IEC 14496-3
		u8(0x15),       // streamType=AudioStream<<2 | upStream<<1 | reserved
		u24(0),         // bufferSizeDB
		u32(0), u32(0), // maxBitrate, avgBitrate
		decSpecificInfo,
	)
	decoderConfigDescr := cat(u8(0x04), u8(byte(len(decoderConfig))), decoderConfig)
	slConfigDescr := cat(u8(0x06), u8(1), u8(2))
	esDescr := cat(u16(1), u8(0), decoderConfigDescr, slConfigDescr)
	return cat(u8(0x03), u8(byte(len(esDescr))), esDescr)
}
