// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"

	"github.com/memseg/tsmemseg/pkg/bits"
)

// buildPatSectionBody builds one PAT section (table_id through the single
// program_number/PMT_pid entry), not yet including its trailing CRC_32.
func buildPatSectionBody(pmtPid uint16) []byte {
	b := make([]byte, 12)
	b[0] = 0x00 // table_id
	b[1] = 0xb0 // ssi=1, reserved=11, section_length high nibble=0
	b[2] = 0x0d // section_length low byte = 13
	b[3] = 0x00 // transport_stream_id
	b[4] = 0x01
	b[5] = 0xc3 // reserved=11, version_number=00001, current_next_indicator=1
	b[6] = 0x00 // section_number
	b[7] = 0x00 // last_section_number
	b[8] = 0x00 // program_number
	b[9] = 0x01
	b[10] = 0xe0 | byte(pmtPid>>8) // reserved=111, PMT_pid high bits
	b[11] = byte(pmtPid)
	return b
}

func withCrc(body []byte) []byte {
	crc := bits.CRC32Mpeg2(0xFFFFFFFF, body)
	return append(append([]byte(nil), body...), byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// asPayload wraps a complete section (body+CRC) as a payload-unit-start TS
// payload: a zero pointer field followed immediately by the section.
func asPayload(section []byte) []byte {
	return append([]byte{0x00}, section...)
}

func TestPsi_VerifyCrc32_ValidSection(t *testing.T) {
	var pat Pat
	pat.Feed(asPayload(withCrc(buildPatSectionBody(0x0100))), true, 0)
	assert.Equal(t, true, pat.VerifyCrc32())
}

func TestPsi_VerifyCrc32_CorruptedSection(t *testing.T) {
	section := withCrc(buildPatSectionBody(0x0100))
	section[4] ^= 0xff // corrupt transport_stream_id after the CRC was computed

	var p Psi
	p.Feed(asPayload(section), true, 0)
	assert.Equal(t, false, p.VerifyCrc32())
}

func TestPat_Feed_ValidCrcPopulatesFirstPmtPid(t *testing.T) {
	var pat Pat
	pat.Feed(asPayload(withCrc(buildPatSectionBody(0x0100))), true, 0)
	assert.Equal(t, uint16(0x0100), pat.FirstPmtPid)
}

func TestPat_Feed_CorruptedCrcDropsSection(t *testing.T) {
	section := withCrc(buildPatSectionBody(0x0100))
	section[9] ^= 0xff // corrupt program_number, invalidating the CRC

	var pat Pat
	pat.Feed(asPayload(section), true, 0)
	assert.Equal(t, uint16(0), pat.FirstPmtPid)
}

func buildPmtSectionBody(videoPid uint16) []byte {
	b := make([]byte, 17)
	b[0] = 0x02 // table_id
	b[1] = 0xb0
	b[2] = 0x12 // section_length = 18
	b[3] = 0x00 // program_number
	b[4] = 0x01
	b[5] = 0xc3 // version_number=1, current_next_indicator=1
	b[6] = 0x00 // section_number
	b[7] = 0x00 // last_section_number
	b[8] = 0xff // reserved=111, PCR_PID high bits (0x1fff placeholder)
	b[9] = 0xff
	b[10] = 0xf0 // reserved=1111, program_info_length=0
	b[11] = 0x00
	b[12] = byte(StreamTypeAvcVideo)
	b[13] = 0xe0 | byte(videoPid>>8)
	b[14] = byte(videoPid)
	b[15] = 0xf0 // reserved=1111, ES_info_length=0
	b[16] = 0x00
	return b
}

func TestPmt_Feed_ValidCrcPopulatesFirstVideoPid(t *testing.T) {
	var pmt Pmt
	pmt.Feed(asPayload(withCrc(buildPmtSectionBody(0x0101))), true, 0)
	assert.Equal(t, uint16(0x0101), pmt.FirstVideoPid)
	assert.Equal(t, StreamTypeAvcVideo, pmt.FirstVideoStreamType)
}

func TestPmt_Feed_CorruptedCrcDropsSection(t *testing.T) {
	section := withCrc(buildPmtSectionBody(0x0101))
	section[13] ^= 0xff // corrupt the video PID, invalidating the CRC

	var pmt Pmt
	pmt.Feed(asPayload(section), true, 0)
	assert.Equal(t, uint16(0), pmt.FirstVideoPid)
}
