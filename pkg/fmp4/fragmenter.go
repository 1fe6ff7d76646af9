// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

import (
	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/memseg/tsmemseg/pkg/aac"
	"github.com/memseg/tsmemseg/pkg/avc"
	"github.com/memseg/tsmemseg/pkg/bits"
	"github.com/memseg/tsmemseg/pkg/hevc"
	"github.com/memseg/tsmemseg/pkg/mpegts"
)

const (
	videoTrackID = 1
	audioTrackID = 2

	// pesIdBasePrivate1 is the PES stream_id ID3 timed-metadata (PID
	// stream_type 0x15) rides on, per ISO/IEC 13818-1 Table 2-18's
	// private_stream_1.
	pesIdBasePrivate1 = 0xbd

	noTime = int64(-1)
)

type videoSampleInfo struct {
	sampleSize uint32
	isKey      bool
	duration   int // -1 means "not yet known", resolved against the next sample with a known duration
	ctsOffset  int
}

// Fragmenter turns a Segmenter's key-aligned TS byte runs into fragmented
// MP4, following original_source/mp4fragmenter.cpp's CMp4Fragmenter: build
// one init segment (ftyp+moov) the first time every elementary stream's
// parameter sets are known, then one moof+mdat pair per track per call to
// AddPackets.
type Fragmenter struct {
	fragmentCount            uint32
	fragmentDurationResidual int
	fragments                []byte
	fragmentSizes            []int
	fragmentDurationsMsec    []int

	videoAcc mpegts.PesAccumulator
	audioAcc mpegts.PesAccumulator
	id3Acc   mpegts.PesAccumulator

	videoPts           int64
	videoDts           int64
	videoDecodeTime    int64
	videoDecodeTimeDts int64

	audioPts           int64
	audioDecodeTime    int64
	audioDecodeTimePts int64

	emsg      []byte
	videoMdat []byte
	audioMdat []byte
	moov      []byte

	codecWidth           int
	codecHeight          int
	sarWidth             int
	sarHeight            int
	chromaFormatIdc      uint32
	bitDepthLumaMinus8   uint32
	bitDepthChromaMinus8 uint32
	h265                 bool

	generalProfileSpace              int
	generalTierFlag                  bool
	generalProfileIdc                int
	generalLevelIdc                  int
	generalProfileCompatibilityFlags [4]byte
	generalConstraintIndicatorFlags  [6]byte
	minSpatialSegmentationIdc        int
	parallelismType                  int
	numTemporalLayers                int
	temporalIdNestingFlag            bool

	vps []byte
	sps []byte
	pps []byte

	videoSampleInfos []videoSampleInfo

	aacProfile             int // -1 until known
	samplingFrequency      int
	samplingFrequencyIndex int
	channelConfiguration   int
	audioSampleSizes       []int
}

// NewFragmenter creates an empty Fragmenter; AddPackets builds the init
// segment lazily once the needed parameter sets / audio config arrive.
func NewFragmenter() *Fragmenter {
	return &Fragmenter{
		videoPts: noTime, videoDts: noTime, videoDecodeTimeDts: noTime,
		audioPts: noTime, audioDecodeTimePts: noTime,
		codecWidth: -1, sarWidth: 1, sarHeight: 1,
		aacProfile: -1,
	}
}

// GetFragments returns the bytes accumulated since the last ClearFragments.
func (f *Fragmenter) GetFragments() []byte { return f.fragments }

// FragmentSizes returns, for each fragment produced since the last
// ClearFragments, its size in bytes within GetFragments().
func (f *Fragmenter) FragmentSizes() []int { return f.fragmentSizes }

// FragmentDurationsMs mirrors FragmentSizes but in milliseconds of media
// duration, derived from the 90kHz sample durations written into trun.
func (f *Fragmenter) FragmentDurationsMs() []int { return f.fragmentDurationsMsec }

// GetHeader returns the init segment (ftyp+moov), empty until enough
// parameter sets / audio config have arrived to build it.
func (f *Fragmenter) GetHeader() []byte { return f.moov }

// ClearFragments discards everything GetFragments/FragmentSizes/
// FragmentDurationsMs would return, the way a Publisher drains a slot after
// handing its bytes to a pipe.
func (f *Fragmenter) ClearFragments() {
	f.fragments = nil
	f.fragmentSizes = nil
	f.fragmentDurationsMsec = nil
}

// AddPackets consumes one Segmenter cut's worth of raw TS packets, updating
// per-track PES accumulators, and -- once there's something to flush --
// appends a new moof+mdat run to GetFragments(). packetsMaybeNotEndAtUnitStart
// lets a caller feeding a still-open, partial run (a low-latency fragment
// boundary, not a real segment boundary) hold back an in-progress,
// unbounded video PES that won't see its own unit start until later bytes
// arrive, instead of flushing it early.
func (f *Fragmenter) AddPackets(packets []byte, pmt mpegts.Pmt, packetsMaybeNotEndAtUnitStart bool) {
	baseVideoDts := noTime
	baseAudioPts := noTime

	for i := 0; i+mpegts.PacketSize <= len(packets); i += mpegts.PacketSize {
		packet := packets[i : i+mpegts.PacketSize]
		header := mpegts.ParseTsPacketHeader(packet)
		offset, size := mpegts.PayloadOffset(packet, header.Adaptation)
		if size <= 0 || offset+size > len(packet) {
			continue
		}
		payload := packet[offset : offset+size]
		unitStart := header.PayloadUnitStart == 1

		switch {
		case pmt.FirstVideoPid != 0 && header.Pid == pmt.FirstVideoPid:
			if pes := f.videoAcc.Feed(payload, unitStart); pes != nil {
				f.AddVideoPes(pes, pmt.IsHevc())
				if baseVideoDts == noTime {
					baseVideoDts = f.videoDts
				}
			}
		case pmt.FirstAdtsAudioPid != 0 && header.Pid == pmt.FirstAdtsAudioPid:
			if pes := f.audioAcc.Feed(payload, unitStart); pes != nil {
				f.AddAudioPes(pes)
				if baseAudioPts == noTime {
					baseAudioPts = f.audioPts
				}
			}
		case pmt.FirstId3MetadataPid != 0 && header.Pid == pmt.FirstId3MetadataPid:
			if pes := f.id3Acc.Feed(payload, unitStart); pes != nil {
				f.AddID3Pes(pes)
			}
		}
	}

	if !packetsMaybeNotEndAtUnitStart {
		if pes := f.videoAcc.Flush(); pes != nil {
			f.AddVideoPes(pes, pmt.IsHevc())
			if baseVideoDts == noTime {
				baseVideoDts = f.videoDts
			}
		}
		if pes := f.audioAcc.Flush(); pes != nil {
			f.AddAudioPes(pes)
			if baseAudioPts == noTime {
				baseAudioPts = f.audioPts
			}
		}
		if pes := f.id3Acc.Flush(); pes != nil {
			f.AddID3Pes(pes)
		}
	}

	if len(f.moov) == 0 {
		if (pmt.FirstVideoPid == 0 || f.codecWidth >= 0) &&
			(pmt.FirstAdtsAudioPid == 0 || f.aacProfile >= 0) {
			f.moov = f.buildFtypAndMoov()
		}
	}
	if len(f.moov) == 0 {
		return
	}

	fragStart := len(f.fragments)
	fragDurationMsec := 0
	f.fragments = append(f.fragments, f.emsg...)
	f.emsg = nil

	if len(f.videoSampleInfos) > 0 || len(f.audioSampleSizes) > 0 {
		f.anchorDecodeTimes(baseVideoDts, baseAudioPts)

		f.fragmentCount++
		num, den := f.buildMoof()
		if num > 0 {
			total := int64(num)*1000 + int64(f.fragmentDurationResidual)
			fragDurationMsec = int(total / int64(den))
			f.fragmentDurationResidual = int(total % int64(den))
		}
	}

	fragSize := len(f.fragments) - fragStart
	if fragSize > 0 {
		f.fragmentSizes = append(f.fragmentSizes, fragSize)
		f.fragmentDurationsMsec = append(f.fragmentDurationsMsec, fragDurationMsec)
	}
}

// anchorDecodeTimes is mp4fragmenter.cpp's AddPackets cross-track dance:
// each track's moving decode-time clock is advanced by however much its own
// PTS/DTS base moved since the last call, and whichever track is missing
// its own anchor borrows the other's -- capped at 900000 ticks (10s) so a
// bad timestamp can't desynchronize playback forever.
func (f *Fragmenter) anchorDecodeTimes(baseVideoDts, baseAudioPts int64) {
	if baseVideoDts != noTime && f.videoDecodeTimeDts != noTime {
		f.videoDecodeTime += diff33(baseVideoDts, f.videoDecodeTimeDts)
		f.videoDecodeTimeDts = baseVideoDts
	}
	if baseAudioPts != noTime && f.audioDecodeTimePts != noTime {
		f.audioDecodeTime += diff33(baseAudioPts, f.audioDecodeTimePts)
		f.audioDecodeTimePts = baseAudioPts
	}

	if f.videoDecodeTimeDts == noTime && baseVideoDts != noTime {
		switch {
		case f.audioDecodeTimePts != noTime:
			f.videoDecodeTime = minCap(f.audioDecodeTime + diff33(baseVideoDts, f.audioDecodeTimePts))
		case baseAudioPts != noTime:
			f.videoDecodeTime = minCap(diff33(baseVideoDts, baseAudioPts))
		}
		f.videoDecodeTimeDts = baseVideoDts
	}
	if f.audioDecodeTimePts == noTime && baseAudioPts != noTime {
		if f.videoDecodeTimeDts != noTime {
			f.audioDecodeTime = minCap(f.videoDecodeTime + diff33(baseAudioPts, f.videoDecodeTimeDts))
		}
		f.audioDecodeTimePts = baseAudioPts
	}
}

// diff33 is the wrap-safe (a-b) over the 33-bit PTS/DTS range, folded to 0
// once it looks like a backward jump (i.e. exceeds half the range).
func diff33(a, b int64) int64 {
	const mod = int64(1) << 33
	d := (mod + a - b) & (mod - 1)
	if d >= int64(1)<<32 {
		return 0
	}
	return d
}

func minCap(v int64) int64 {
	if v > 900000 {
		return 900000
	}
	return v
}

// AddVideoPes demuxes one reassembled video PES into Annex-B NAL units,
// captures VPS/SPS/PPS the first time they're seen (before the init
// segment is built), drops AUD/SEI, and appends every remaining NAL's
// length-prefixed bytes to the pending video mdat.
func (f *Fragmenter) AddVideoPes(raw []byte, h265 bool) {
	if len(raw) < 9 {
		return
	}
	pes, headerLength := mpegts.ParsePes(raw)
	if pes.StreamId&0xf0 != 0xe0 || headerLength >= len(raw) {
		return
	}

	lastDts := f.videoDts
	if pes.PtsDtsFlag&0x2 != 0 {
		f.videoPts = int64(pes.Pts)
		f.videoDts = int64(pes.Dts)
	}

	parameterChanged := false
	isKey := false
	var sampleSize uint32

	for _, nalu := range bits.SplitAnnexB(raw[headerLength:]) {
		if len(nalu) == 0 {
			continue
		}

		if h265 {
			naluType := hevc.CalcNaluType(nalu)
			switch naluType {
			case hevc.NaluTypeVps:
				f.captureVps(nalu, &parameterChanged)
				continue
			case hevc.NaluTypeSps:
				f.captureHevcSps(nalu, &parameterChanged)
				continue
			case hevc.NaluTypePps:
				f.captureHevcPps(nalu, &parameterChanged)
				continue
			case hevc.NaluTypeAud, hevc.NaluTypeSei, hevc.NaluTypeSeiSuffix:
				continue
			}
			if hevc.IsIrapNalu(naluType) {
				isKey = true
			}
		} else {
			naluType := avc.CalcNaluType(nalu)
			switch naluType {
			case avc.NaluUnitTypeSps:
				f.captureAvcSps(nalu, &parameterChanged)
				continue
			case avc.NaluUnitTypePps:
				f.capturePps(nalu, &parameterChanged)
				continue
			case avc.NaluUnitTypeAud, avc.NaluUnitTypeSei:
				continue
			}
			if naluType == avc.NaluUnitTypeIdrSlice {
				isKey = true
			} else if naluType == avc.NaluUnitTypeSlice && avc.IsIntraSliceType(firstMbSkippedSliceType(nalu)) {
				isKey = true
			}
		}

		sampleSize += 4 + uint32(len(nalu))
		f.videoMdat = append(f.videoMdat, u32(uint32(len(nalu)))...)
		f.videoMdat = append(f.videoMdat, nalu...)
	}

	if len(f.moov) == 0 {
		f.h265 = h265
	} else if f.h265 != h265 {
		parameterChanged = true
	}

	if f.codecWidth < 0 || parameterChanged {
		f.videoMdat = nil
		f.videoSampleInfos = nil
		return
	}
	if sampleSize == 0 {
		return
	}

	info := videoSampleInfo{sampleSize: sampleSize, isKey: isKey, duration: -1}
	if lastDts != noTime {
		d := diff33(f.videoDts, lastDts)
		if d <= 900000 {
			info.duration = int(d)
		}
	}
	cts := diff33(f.videoPts, f.videoDts)
	if cts <= 900000 {
		info.ctsOffset = int(cts)
	}
	f.videoSampleInfos = append(f.videoSampleInfos, info)
}

// firstMbSkippedSliceType reads past first_mb_in_slice to get at
// slice_type, mirroring mp4fragmenter.cpp's inline check for a non-IDR I
// slice. It bails out (returning a value IsIntraSliceType never matches)
// the moment an emulation-prevention byte could be in play, since properly
// unescaping just to read two exp-Golomb fields isn't worth it here.
func firstMbSkippedSliceType(nalu []byte) uint32 {
	if len(nalu) < 5 || (nalu[1] == 0 && nalu[2] == 0 && nalu[3] == 3) {
		return 0xff
	}
	br := nazabits.NewBitReader(nalu[1:5])
	if _, err := br.ReadGolomb(); err != nil { // first_mb_in_slice
		return 0xff
	}
	sliceType, err := br.ReadGolomb()
	if err != nil {
		return 0xff
	}
	return sliceType
}

func (f *Fragmenter) captureVps(nalu []byte, parameterChanged *bool) {
	if bytesEqual(f.vps, nalu) {
		return
	}
	if len(f.moov) != 0 {
		*parameterChanged = true
		return
	}
	f.vps = append([]byte(nil), nalu...)
	if vps, err := hevc.ParseVps(nalu[2:]); err == nil {
		f.numTemporalLayers = vps.NumTemporalLayers
		f.temporalIdNestingFlag = vps.TemporalIdNestingFlag
	}
}

func (f *Fragmenter) captureHevcSps(nalu []byte, parameterChanged *bool) {
	if bytesEqual(f.sps, nalu) {
		return
	}
	if len(f.moov) != 0 {
		*parameterChanged = true
		return
	}
	f.sps = append([]byte(nil), nalu...)
	if sps, err := hevc.ParseSps(nalu[2:]); err == nil {
		f.applyHevcSps(sps)
	} else {
		f.codecWidth = -1
	}
}

func (f *Fragmenter) captureHevcPps(nalu []byte, parameterChanged *bool) {
	if bytesEqual(f.pps, nalu) {
		return
	}
	if len(f.moov) != 0 {
		*parameterChanged = true
		return
	}
	f.pps = append([]byte(nil), nalu...)
	if pps, err := hevc.ParsePps(nalu[2:]); err == nil {
		f.parallelismType = pps.ParallelismType
	}
}

func (f *Fragmenter) captureAvcSps(nalu []byte, parameterChanged *bool) {
	if bytesEqual(f.sps, nalu) {
		return
	}
	if len(f.moov) != 0 {
		*parameterChanged = true
		return
	}
	f.sps = append([]byte(nil), nalu...)
	if sps, err := avc.ParseSps(nalu[1:]); err == nil {
		f.applyAvcSps(sps)
	} else {
		f.codecWidth = -1
	}
}

func (f *Fragmenter) capturePps(nalu []byte, parameterChanged *bool) {
	if bytesEqual(f.pps, nalu) {
		return
	}
	if len(f.moov) != 0 {
		*parameterChanged = true
		return
	}
	f.pps = append([]byte(nil), nalu...)
}

func (f *Fragmenter) applyAvcSps(sps avc.Sps) {
	f.codecWidth = sps.CodecWidth
	f.codecHeight = sps.CodecHeight
	f.sarWidth = orOne(sps.SarWidth)
	f.sarHeight = orOne(sps.SarHeight)
	f.chromaFormatIdc = sps.ChromaFormatIdc
	f.bitDepthLumaMinus8 = sps.BitDepthLumaMinus8
	f.bitDepthChromaMinus8 = sps.BitDepthChromaMinus8
}

func (f *Fragmenter) applyHevcSps(sps hevc.Sps) {
	f.codecWidth = sps.CodecWidth
	f.codecHeight = sps.CodecHeight
	f.sarWidth = orOne(sps.SarWidth)
	f.sarHeight = orOne(sps.SarHeight)
	f.chromaFormatIdc = sps.ChromaFormatIdc
	f.bitDepthLumaMinus8 = sps.BitDepthLumaMinus8
	f.bitDepthChromaMinus8 = sps.BitDepthChromaMinus8
	f.generalProfileSpace = sps.GeneralProfileSpace
	f.generalTierFlag = sps.GeneralTierFlag
	f.generalProfileIdc = sps.GeneralProfileIdc
	f.generalProfileCompatibilityFlags = sps.GeneralProfileCompatibilityFlags
	f.generalConstraintIndicatorFlags = sps.GeneralConstraintIndicatorFlags
	f.generalLevelIdc = sps.GeneralLevelIdc
	f.minSpatialSegmentationIdc = sps.MinSpatialSegmentationIdc
}

func orOne(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}

// AddAudioPes demuxes one reassembled audio PES's ADTS framing into raw AAC
// payloads, capturing the stream's AAC profile/sample-rate/channel config
// the first time it's seen and silently dropping frames that later
// disagree with it (AAC config can't legally change mid-stream in fMP4).
func (f *Fragmenter) AddAudioPes(raw []byte) {
	if len(raw) < 9 {
		return
	}
	pes, headerLength := mpegts.ParsePes(raw)
	if pes.StreamId&0xe0 != 0xc0 || headerLength >= len(raw) {
		return
	}
	if pes.PtsDtsFlag&0x2 != 0 {
		f.audioPts = int64(pes.Pts)
	}

	buf := raw[headerLength:]
	for len(buf) > 0 {
		if buf[0] != 0xff {
			resync := aac.Resync(buf)
			if resync < 0 {
				return
			}
			buf = buf[resync:]
			continue
		}
		h, ok := aac.ParseHeader(buf)
		if !ok {
			buf = buf[1:]
			continue
		}
		if len(buf) < int(h.FrameLength) {
			return
		}

		if len(f.moov) == 0 {
			f.aacProfile = int(h.Profile)
			f.samplingFrequency = h.SamplingFrequency()
			f.samplingFrequencyIndex = int(h.SamplingFrequencyIndex)
			f.channelConfiguration = int(h.ChannelConfiguration)
		}
		if f.aacProfile == int(h.Profile) &&
			f.samplingFrequencyIndex == int(h.SamplingFrequencyIndex) &&
			f.channelConfiguration == int(h.ChannelConfiguration) {
			f.audioMdat = append(f.audioMdat, buf[h.HeaderLength:h.FrameLength]...)
			f.audioSampleSizes = append(f.audioSampleSizes, int(h.FrameLength)-h.HeaderLength)
		}
		buf = buf[h.FrameLength:]
	}
}

// AddID3Pes turns one reassembled ID3 (PID 0x15 / private_stream_1) PES
// into an emsg box synced to whichever track currently has a decode-time
// anchor, per the https://aomedia.org/emsg/ID3 scheme HLS timed metadata
// uses.
func (f *Fragmenter) AddID3Pes(raw []byte) {
	if len(raw) < 14 {
		return
	}
	pes, headerLength := mpegts.ParsePes(raw)
	if pes.StreamId != pesIdBasePrivate1 || pes.PtsDtsFlag&0x2 == 0 || headerLength >= len(raw) {
		return
	}

	emsgTime := f.audioDecodeTime
	anchorPts := f.audioDecodeTimePts
	if f.videoDecodeTimeDts != noTime {
		emsgTime = f.videoDecodeTime
		anchorPts = f.videoDecodeTimeDts
	}
	if anchorPts != noTime {
		emsgTime += minCap(diff33(int64(pes.Pts), anchorPts))
	}

	body := cat(
		u32(mpegts.PtsClockHz),
		u64(uint64(emsgTime)),
		u32(0xffffffff),
		u32(0),
		[]byte("https://aomedia.org/emsg/ID3"),
		[]byte{0},
		[]byte{0},
		raw[headerLength:],
	)
	f.emsg = fullBox(f.emsg, "emsg", 1, 0, body)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
