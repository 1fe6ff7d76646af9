// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package nal provides a small stateful scanner that answers one
// question as a byte stream trickles in packet by packet: "did an IRAP
// (AVC IDR / HEVC BLA-CRA-IDR) NAL unit start somewhere in what I've seen
// so far?" It's a direct generalization of tsmemseg.cpp's
// contains_nal_idr to also recognize HEVC's wider family of random-access
// point NAL types.
package nal

// scan state, named the way contains_nal_idr's inline comments name them.
const (
	stateSearchZero1 = 0
	stateSearchZero2 = 1
	stateSearchOne   = 2
	stateReadType    = 3
	stateDone        = 4
)

// IrapScanner carries NAL start-code scan state across TS-packet
// boundaries so a PES payload can be fed to it in arbitrarily small
// chunks without losing track of a start code that straddles two calls.
type IrapScanner struct {
	state int
	isH265 bool
}

// NewIrapScanner creates a scanner for either AVC (isH265 == false) or
// HEVC (isH265 == true) video.
func NewIrapScanner(isH265 bool) *IrapScanner {
	return &IrapScanner{isH265: isH265}
}

// Reset rearms the scanner so a new PES's bytes are scanned from scratch,
// the same way contains_nal_idr's caller reinitializes *nal_state to 0
// once it has already decided a given PES is or isn't a key frame.
func (s *IrapScanner) Reset() {
	s.state = stateSearchZero1
}

// Feed scans payload for an IRAP NAL unit's start. It returns true the
// first time one is found; once found, the scanner latches into "done"
// and keeps returning false until Reset.
func (s *IrapScanner) Feed(payload []byte) bool {
	for _, b := range payload {
		switch {
		case (s.state == stateSearchZero1 || s.state == stateSearchZero2) && b == 0:
			s.state++
		case s.state == stateSearchOne && b <= 1:
			if b == 1 {
				s.state = stateReadType
			}
		case s.state == stateReadType:
			naluType := b & 0x1f
			if s.isNaluTypeIrap(b, naluType) {
				s.state = stateDone
				return true
			}
			s.state = stateSearchZero1
		case s.state >= stateDone:
			return false
		default:
			s.state = stateSearchZero1
		}
	}
	return false
}

func (s *IrapScanner) isNaluTypeIrap(firstByte, avcType byte) bool {
	if !s.isH265 {
		return avcType == 5 // IDR slice
	}
	// HEVC's NAL unit type occupies bits 6..1 of the first header byte.
	hevcType := (firstByte & 0x7e) >> 1
	return hevcType >= 16 && hevcType <= 23
}
