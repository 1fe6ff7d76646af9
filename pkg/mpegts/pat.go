// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// Pat holds a program association table as it's reassembled across TS
// packets. Only the first program's PMT PID is tracked -- this repo never
// follows more than one program, the same simplification util.hpp's PAT
// struct makes.
//
// ---------------------------------------------------------------------------------------------------
// Program association section
// <iso13818-1.pdf> <2.4.4.3> <page 61/174>
// table_id                 [8b] *
// section_syntax_indicator [1b]
// '0'                      [1b]
// reserved                 [2b]
// section_length           [12b] **
// transport_stream_id      [16b] **
// reserved                 [2b]
// version_number           [5b]
// current_next_indicator   [1b]  *
// section_number           [8b]  *
// last_section_number      [8b]  *
// -----loop-----
// program_number           [16b] **
// reserved                 [3b]
// program_map_PID          [13b] ** if program_number == 0 then network_PID else then program_map_PID
// --------------
// CRC_32                   [32b] ****
// ---------------------------------------------------------------------------------------------------
type Pat struct {
	Psi
	TransportStreamId uint16
	FirstPmtPid       uint16
}

// Feed reassembles one packet's worth of PAT payload and, once a full,
// current section has accumulated, updates TransportStreamId and
// FirstPmtPid. Mirrors util.cpp's extract_pat: the first program_number
// that isn't zero (zero means "this entry is the network PID, not a
// program") wins, and FirstPmtPid resets to 0 if the PAT stops naming any
// program at all -- so callers can detect "PMT went away" by the PID
// going back to 0.
func (pat *Pat) Feed(payload []byte, unitStart bool, counter uint8) {
	pat.Psi.Feed(payload, unitStart, counter)

	if pat.VersionNumber == 0 || pat.CurrentNextIndicator == 0 || pat.TableId != 0 || pat.SectionLength < 5 {
		return
	}

	table := pat.Data()
	pat.TransportStreamId = uint16(table[3])<<8 | uint16(table[4])

	pid := uint16(0)
	pos := 3 + 5
	end := 3 + int(pat.SectionLength) - 4
	for pos+3 < end {
		programNumber := uint16(table[pos])<<8 | uint16(table[pos+1])
		if programNumber != 0 {
			pid = (uint16(table[pos+2]&0x1f) << 8) | uint16(table[pos+3])
			break
		}
		pos += 4
	}
	pat.FirstPmtPid = pid
}
