// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/q191201771/naza/pkg/nazabits"
)

// PtsClockHz is the 90kHz clock PES PTS/DTS values and this repo's
// internal timestamps are both expressed in.
const PtsClockHz = 90000

// -----------------------------------------------------------
// <iso13818-1.pdf>
// <2.4.3.6 PES packet> <page 49/174>
// <Table E.1 - PES packet header example> <page 142/174>
// <F.0.2 PES packet> <page 144/174>
// packet_start_code_prefix  [24b] *** always 0x00, 0x00, 0x01
// stream_id                 [8b]  *
// PES_packet_length         [16b] **
// '10'                      [2b]
// PES_scrambling_control    [2b]
// PES_priority              [1b]
// data_alignment_indicator  [1b]
// copyright                 [1b]
// original_or_copy          [1b]  *
// PTS_DTS_flags             [2b]
// ESCR_flag                 [1b]
// ES_rate_flag              [1b]
// DSM_trick_mode_flag       [1b]
// additional_copy_info_flag [1b]
// PES_CRC_flag              [1b]
// PES_extension_flag        [1b]  *
// PES_header_data_length    [8b]  *
// -----------------------------------------------------------
type Pes struct {
	PacketStartCodePrefix uint32
	StreamId              uint8
	PacketLength          uint16 // 0 means "unbounded", only legal for video
	PtsDtsFlag            uint8
	HeaderDataLength      uint8
	Pts                   uint64
	Dts                   uint64
}

// ParsePes parses a PES header starting at b[0] and returns the header's
// total length in bytes (the offset of the first elementary stream byte).
func ParsePes(b []byte) (pes Pes, headerLength int) {
	br := nazabits.NewBitReader(b)
	pes.PacketStartCodePrefix, _ = br.ReadBits32(24)
	pes.StreamId, _ = br.ReadBits8(8)
	pes.PacketLength, _ = br.ReadBits16(16)

	_, _ = br.ReadBits8(8)
	pes.PtsDtsFlag, _ = br.ReadBits8(2)
	_, _ = br.ReadBits8(6)
	pes.HeaderDataLength, _ = br.ReadBits8(8)

	headerLength = 9 + int(pes.HeaderDataLength)

	if pes.PtsDtsFlag&0x2 != 0 {
		_, pes.Pts = readPts(b[9:])
	}
	if pes.PtsDtsFlag&0x1 != 0 {
		_, pes.Dts = readPts(b[14:])
	} else {
		pes.Dts = pes.Pts
	}

	return
}

// readPts reads a 5-byte PTS or DTS field (the format is identical for
// both, only the leading 4-bit marker value differs).
func readPts(b []byte) (leading uint8, pts uint64) {
	leading = b[0] >> 4
	pts |= uint64((b[0]>>1)&0x07) << 30
	pts |= (uint64(b[1])<<8 | uint64(b[2])) >> 1 << 15
	pts |= (uint64(b[3])<<8 | uint64(b[4])) >> 1
	return
}

// WrapSafeDiff33 computes (a - b) modulo 2^33, the wrap-safe difference
// used throughout this codebase for PTS/DTS arithmetic since the MPEG-2
// PTS/DTS field is only 33 bits wide and will wrap roughly every 26.5
// hours at the 90kHz clock.
func WrapSafeDiff33(a, b uint64) uint64 {
	const mod = uint64(1) << 33
	return (a - b + mod) % mod
}
