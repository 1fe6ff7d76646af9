// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package aac parses the ADTS framing this segmenter finds inside a TS
// audio PES (stream_type 0x0f), following ISO/IEC 13818-7 and the
// SyncAdtsPayload / AddAudioPes logic in mp4fragmenter.cpp.
package aac

import (
	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/memseg/tsmemseg/pkg/base"
)

var ErrAac = base.ErrSamplingFrequencyIndex

const (
	// HeaderLengthNoCrc is the ADTS fixed+variable header length when
	// protection_absent == 1 (no CRC word follows the header).
	HeaderLengthNoCrc = 7
	// HeaderLengthWithCrc is the header length when protection_absent == 0.
	HeaderLengthWithCrc = 9
)

// SamplingFrequencyTable maps ADTS's 4-bit samplingFrequencyIndex to Hz,
// ISO/IEC 13818-7 Table 35.
var SamplingFrequencyTable = [13]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000,
	22050, 16000, 12000, 11025, 8000, 7350,
}

// Header is one ADTS frame's fixed + variable header fields.
type Header struct {
	ProtectionAbsent       uint8
	Profile                uint8 // aac_frame_length's companion: ObjectType-1
	SamplingFrequencyIndex uint8
	ChannelConfiguration   uint8
	FrameLength            uint16 // includes the header itself
	HeaderLength           int
}

// SamplingFrequency returns the header's sample rate in Hz, or 0 if the
// index is out of the defined table (index values 13..15 are reserved).
func (h Header) SamplingFrequency() int {
	if int(h.SamplingFrequencyIndex) >= len(SamplingFrequencyTable) {
		return 0
	}
	return SamplingFrequencyTable[h.SamplingFrequencyIndex]
}

// ParseHeader parses one ADTS frame header starting at b[0]. b must have
// at least 7 bytes (9 if protection_absent == 0, but that's only known
// after reading byte 1, so callers should pass whatever's available and
// retry once more bytes arrive).
func ParseHeader(b []byte) (h Header, ok bool) {
	if len(b) < HeaderLengthNoCrc {
		return h, false
	}
	if b[0] != 0xff || b[1]&0xf0 != 0xf0 {
		return h, false
	}
	br := nazabits.NewBitReader(b)
	_, _ = br.ReadBits16(12) // syncword
	_, _ = br.ReadBits8(1)   // ID
	_, _ = br.ReadBits8(2)   // layer
	h.ProtectionAbsent, _ = br.ReadBits8(1)
	h.Profile, _ = br.ReadBits8(2)
	h.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	_, _ = br.ReadBits8(1) // private_bit
	h.ChannelConfiguration, _ = br.ReadBits8(3)
	_, _ = br.ReadBits8(4) // originality/home/copyright bits
	h.FrameLength, _ = br.ReadBits16(13)
	_, _ = br.ReadBits16(11) // adts_buffer_fullness
	_, _ = br.ReadBits8(2)   // number_of_raw_data_blocks_in_frame

	if h.ProtectionAbsent == 1 {
		h.HeaderLength = HeaderLengthNoCrc
	} else {
		h.HeaderLength = HeaderLengthWithCrc
	}
	if int(h.FrameLength) < h.HeaderLength {
		return h, false
	}
	return h, true
}

// Resync scans buf for the next valid ADTS frame start (syncword 0xFFF
// followed by a header whose declared frame length doesn't run past the
// buffer, when checkable), the way mp4fragmenter.cpp's SyncAdtsPayload
// recovers from a dropped or corrupted frame instead of giving up on the
// whole audio PES. It returns the offset of the resynced frame, or -1 if
// none was found.
func Resync(buf []byte) int {
	for i := 0; i+HeaderLengthNoCrc <= len(buf); i++ {
		if buf[i] != 0xff || buf[i+1]&0xf0 != 0xf0 {
			continue
		}
		h, ok := ParseHeader(buf[i:])
		if !ok {
			continue
		}
		// a frame length that would run past a second sync word right
		// where it's expected is strong evidence this is a real frame
		// boundary, not a coincidental 0xFFF bit pattern in the data.
		next := i + int(h.FrameLength)
		if next == len(buf) {
			return i
		}
		if next+1 < len(buf) && buf[next] == 0xff && buf[next+1]&0xf0 == 0xf0 {
			return i
		}
	}
	return -1
}
