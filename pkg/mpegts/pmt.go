// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// Stream type values this segmenter recognizes inside a PMT's elementary
// stream loop. Anything else is skipped over (its es_info_length tells us
// how far).
const (
	StreamTypeAdtsAudio    uint8 = 0x0f
	StreamTypeId3Metadata  uint8 = 0x15
	StreamTypeAvcVideo     uint8 = 0x1b
	StreamTypeHevcVideo    uint8 = 0x24
)

// Pmt holds a program map table as it's reassembled across TS packets.
// util.hpp's PMT only ever tracked a single AVC video PID; this repo
// generalizes that to the full set of elementary streams the spec cares
// about (AVC or HEVC video, ADTS audio, ID3 timed metadata), still
// capped at one of each -- at most one video + one audio stream per
// program is this repo's whole remit, same as the original.
//
// ----------------------------------------
// Program Map Table
// <iso13818-1.pdf> <2.4.4.8> <page 64/174>
// table_id                 [8b]  *
// section_syntax_indicator [1b]
// 0                        [1b]
// reserved                 [2b]
// section_length           [12b] **
// program_number           [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// reserved                 [3b]
// PCR_PID                  [13b] **
// reserved                 [4b]
// program_info_length      [12b] **
// -----loop-----
// stream_type              [8b]  *
// reserved                 [3b]
// elementary_PID           [13b] **
// reserved                 [4b]
// ES_info_length           [12b] **
// --------------
// CRC32                    [32b] ****
// ----------------------------------------
type Pmt struct {
	Psi
	ProgramNumber        uint16
	PcrPid               uint16
	FirstVideoStreamType uint8
	FirstVideoPid        uint16
	FirstAdtsAudioPid    uint16
	FirstId3MetadataPid  uint16
}

// Feed reassembles one packet's worth of PMT payload and, once a full,
// current section has accumulated, rescans the elementary stream loop.
func (pmt *Pmt) Feed(payload []byte, unitStart bool, counter uint8) {
	pmt.Psi.Feed(payload, unitStart, counter)

	if pmt.VersionNumber == 0 || pmt.CurrentNextIndicator == 0 || pmt.TableId != 2 || pmt.SectionLength < 9 {
		return
	}

	table := pmt.Data()
	pmt.ProgramNumber = uint16(table[3])<<8 | uint16(table[4])
	pmt.PcrPid = (uint16(table[8]&0x1f) << 8) | uint16(table[9])
	programInfoLength := (uint16(table[10]&0x03) << 8) | uint16(table[11])

	pmt.FirstVideoStreamType = 0
	pmt.FirstVideoPid = 0
	pmt.FirstAdtsAudioPid = 0
	pmt.FirstId3MetadataPid = 0

	pos := 3 + 9 + int(programInfoLength)
	end := 3 + int(pmt.SectionLength) - 4
	for pos+4 < end {
		streamType := table[pos]
		pid := (uint16(table[pos+1]&0x1f) << 8) | uint16(table[pos+2])
		esInfoLength := (uint16(table[pos+3]&0x03) << 8) | uint16(table[pos+4])

		switch streamType {
		case StreamTypeAvcVideo, StreamTypeHevcVideo:
			if pmt.FirstVideoPid == 0 {
				pmt.FirstVideoStreamType = streamType
				pmt.FirstVideoPid = pid
			}
		case StreamTypeAdtsAudio:
			if pmt.FirstAdtsAudioPid == 0 {
				pmt.FirstAdtsAudioPid = pid
			}
		case StreamTypeId3Metadata:
			if pmt.FirstId3MetadataPid == 0 {
				pmt.FirstId3MetadataPid = pid
			}
		}

		pos += 5 + int(esInfoLength)
	}
}

// IsHevc reports whether the tracked video stream is HEVC rather than AVC.
func (pmt *Pmt) IsHevc() bool {
	return pmt.FirstVideoStreamType == StreamTypeHevcVideo
}
