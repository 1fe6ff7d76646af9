// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

import (
	"github.com/memseg/tsmemseg/pkg/bits"
)

// psiData is the maximum number of bytes a PSI accumulator will buffer
// across packets. Real PAT/PMT sections are a few hundred bytes at most;
// this mirrors util.hpp's fixed `data[1024]` member.
const psiData = 1024

// Psi accumulates a PSI section (PAT, PMT, ...) across however many TS
// packets its PID spans, the same way util.cpp's extract_psi does: the
// continuity counter is "primed" with a sentinel high bit (0x20) so a
// fresh accumulator can tell "never seen a packet" from "continuity
// counter wrapped to 0", and a payload-unit-start packet whose pointer
// field is nonzero first flushes the tail of the previous section before
// starting the new one.
type Psi struct {
	continuityCounter    uint8
	dataCount            int
	data                 [psiData]byte
	TableId              uint8
	SectionLength        uint16
	VersionNumber        uint8
	CurrentNextIndicator uint8
}

// Feed processes one TS packet's payload belonging to this PSI's PID,
// mirroring extract_pat/extract_pmt's do/while loop around extract_psi:
// when a payload-unit-start packet's pointer field closes out a prior
// section, the same payload is fed again (continuity_counter having
// already advanced) so the second pass starts the new section right
// after the pointer field.
func (p *Psi) Feed(payload []byte, unitStart bool, counter uint8) {
	for !p.feedOnce(payload, unitStart, counter) {
		unitStart = true
	}
}

func (p *Psi) feedOnce(payload []byte, unitStart bool, counter uint8) bool {
	copyPos := 0
	copySize := len(payload)
	done := true

	if unitStart {
		if len(payload) < 1 {
			p.continuityCounter, p.dataCount, p.VersionNumber = 0, 0, 0
			return true
		}
		pointer := int(payload[0])
		p.continuityCounter = (p.continuityCounter + 1) & 0x2f
		if pointer > 0 && p.continuityCounter == (0x20|counter) {
			copyPos = 1
			copySize = pointer
			done = false
		} else {
			p.continuityCounter = 0x20 | counter
			p.dataCount, p.VersionNumber = 0, 0
			copyPos = 1 + pointer
			copySize -= copyPos
		}
	} else {
		p.continuityCounter = (p.continuityCounter + 1) & 0x2f
		if p.continuityCounter != (0x20 | counter) {
			p.continuityCounter, p.dataCount, p.VersionNumber = 0, 0, 0
			return true
		}
	}

	if copySize > 0 && copyPos < len(payload) {
		if copySize > psiData-p.dataCount {
			copySize = psiData - p.dataCount
		}
		n := copy(p.data[p.dataCount:p.dataCount+copySize], payload[copyPos:copyPos+copySize])
		p.dataCount += n
	}

	if p.dataCount >= 3 {
		sectionLength := (uint16(p.data[1]&0x03) << 8) | uint16(p.data[2])
		if sectionLength >= 3 && p.dataCount >= 3+int(sectionLength) {
			p.TableId = p.data[0]
			p.SectionLength = sectionLength
			p.VersionNumber = 0x20 | ((p.data[5] >> 1) & 0x1f)
			p.CurrentNextIndicator = p.data[5] & 0x01
			if !p.VerifyCrc32() {
				// spec.md's "PSI CRC ... mismatch -> drop accumulated
				// section data for that table; next unit_start rearms":
				// zeroing VersionNumber puts Pat/Pmt.Feed's own
				// "VersionNumber == 0" guard back in its pre-section
				// state, so this table's fields are left untouched until
				// a fresh section reassembles and passes its own check.
				p.dataCount, p.VersionNumber = 0, 0
			}
		}
	}

	return done
}

// Data returns the raw, reassembled section bytes accumulated so far.
func (p *Psi) Data() []byte {
	return p.data[:p.dataCount]
}

// VerifyCrc32 checks the trailing CRC_32 field of a fully reassembled
// section against CRC-32/MPEG-2 computed over the section bytes that
// precede it. The original C++ never implemented this (its extract_psi
// has a `// TODO: CRC32` marker) -- we fill it in here since it's one of
// this repository's testable properties.
func (p *Psi) VerifyCrc32() bool {
	if p.SectionLength < 4 || p.dataCount < 3+int(p.SectionLength) {
		return false
	}
	sectionEnd := 3 + int(p.SectionLength)
	crcOffset := sectionEnd - 4
	want := uint32(p.data[crcOffset])<<24 | uint32(p.data[crcOffset+1])<<16 |
		uint32(p.data[crcOffset+2])<<8 | uint32(p.data[crcOffset+3])
	got := bits.CRC32Mpeg2(0xFFFFFFFF, p.data[:crcOffset])
	return got == want
}
