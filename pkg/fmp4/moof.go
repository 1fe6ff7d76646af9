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

	"github.com/memseg/tsmemseg/pkg/mpegts"
)

// buildMoof appends one moof+mdat pair per track that has pending samples
// to f.fragments, draining videoSampleInfos/videoMdat and
// audioSampleSizes/audioMdat in the process, and returns the reported
// fragment duration as a (ticks, timescale) pair -- video's 90kHz clock
// when video is present, otherwise audio's own sample rate, per
// mp4fragmenter.cpp's PushMoof.
func (f *Fragmenter) buildMoof() (durationNum, durationDen int) {
	if len(f.videoSampleInfos) > 0 {
		durationNum, durationDen = f.buildVideoMoof()
	}
	if len(f.audioSampleSizes) > 0 {
		audioNum, audioDen := f.buildAudioMoof()
		if len(f.videoSampleInfos) == 0 {
			durationNum, durationDen = audioNum, audioDen
		}
	}
	f.videoSampleInfos = nil
	f.videoMdat = nil
	f.audioSampleSizes = nil
	f.audioMdat = nil
	return
}

// buildVideoMoof emits one moof+mdat pair for the pending video samples.
// A sample whose own duration couldn't be computed (the usual case for the
// very last sample before a cut) borrows the next sample's known duration,
// falling back to 3000 ticks (33ms, a common encoder GOP's frame interval)
// if none is known, mirroring PushMoof's forward lookup.
func (f *Fragmenter) buildVideoMoof() (int, int) {
	infos := f.videoSampleInfos
	durations := make([]int, len(infos))
	for i, info := range infos {
		if info.duration >= 0 {
			durations[i] = info.duration
			continue
		}
		durations[i] = 3000
		for j := i + 1; j < len(infos); j++ {
			if infos[j].duration >= 0 {
				durations[i] = infos[j].duration
				break
			}
		}
	}

	total := 0
	trunBody := cat(u32(uint32(len(infos))), u32(0)) // sample_count, data_offset placeholder
	for i, info := range infos {
		total += durations[i]
		flags := uint32(0x01010000) // sample_depends_on=1 (yes), sample_is_non_sync_sample=1
		if info.isKey {
			flags = 0x02400000 // sample_depends_on=2 (no), sample_is_non_sync_sample=0
		}
		trunBody = cat(trunBody, u32(uint32(durations[i])), u32(info.sampleSize), u32(flags), u32(uint32(info.ctsOffset)))
	}

	tfhd := fullBox(nil, "tfhd", 0, 0, u32(videoTrackID))
	tfdt := fullBox(nil, "tfdt", 1, 0, u64(uint64(f.videoDecodeTime)))
	trun := fullBox(nil, "trun", 0, 0x00000f01, trunBody)
	traf := box(nil, "traf", cat(tfhd, tfdt, trun))
	mfhd := fullBox(nil, "mfhd", 0, 0, u32(f.fragmentCount))
	moof := box(nil, "moof", cat(mfhd, traf))

	patchDataOffset(moof, 8+len(mfhd)+8+len(tfhd)+len(tfdt))

	f.fragments = append(f.fragments, moof...)
	f.fragments = append(f.fragments, box(nil, "mdat", f.videoMdat)...)
	return total, mpegts.PtsClockHz
}

// buildAudioMoof emits one moof+mdat pair for the pending audio samples.
// Every sample shares tfhd's default_sample_duration (1024 PCM frames per
// AAC frame) and default_sample_flags, so trun only needs to carry sizes.
func (f *Fragmenter) buildAudioMoof() (int, int) {
	sizes := f.audioSampleSizes
	trunBody := cat(u32(uint32(len(sizes))), u32(0)) // sample_count, data_offset placeholder
	for _, sz := range sizes {
		trunBody = cat(trunBody, u32(uint32(sz)))
	}

	tfhdBody := cat(u32(audioTrackID), u32(1024), u32(0x02000000))
	tfhd := fullBox(nil, "tfhd", 0, 0x00000028, tfhdBody) // default-sample-duration-present | default-sample-flags-present
	audioDecodeTimeInSampleRate := f.audioDecodeTime * int64(f.samplingFrequency) / mpegts.PtsClockHz
	tfdt := fullBox(nil, "tfdt", 1, 0, u64(uint64(audioDecodeTimeInSampleRate)))
	trun := fullBox(nil, "trun", 0, 0x00000201, trunBody) // sample-size-present | data-offset-present
	traf := box(nil, "traf", cat(tfhd, tfdt, trun))
	mfhd := fullBox(nil, "mfhd", 0, 0, u32(f.fragmentCount))
	moof := box(nil, "moof", cat(mfhd, traf))

	patchDataOffset(moof, 8+len(mfhd)+8+len(tfhd)+len(tfdt))

	f.fragments = append(f.fragments, moof...)
	f.fragments = append(f.fragments, box(nil, "mdat", f.audioMdat)...)
	return 1024 * len(sizes), f.samplingFrequency
}

// patchDataOffset writes trun's data_offset field (the moof-box-relative
// byte offset to this trun's samples' first byte, i.e. moof's own length
// plus mdat's 8-byte box header) in place. trunOffset is the byte offset
// within moof at which the trun full-box begins; the data_offset field
// itself sits 16 bytes into a trun box (8-byte box header, 4-byte
// version+flags, 4-byte sample_count).
func patchDataOffset(moof []byte, trunOffset int) {
	dataOffset := uint32(len(moof) + 8)
	binary.BigEndian.PutUint32(moof[trunOffset+16:trunOffset+20], dataOffset)
}
