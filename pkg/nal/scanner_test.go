// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package nal

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestIrapScanner_AvcIdrDetected(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, true, s.Feed([]byte{0x00, 0x00, 0x01, 0x65, 0x88, 0x84}))
}

func TestIrapScanner_AvcNonIdrNotDetected(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, false, s.Feed([]byte{0x00, 0x00, 0x01, 0x41, 0x9a}))
}

func TestIrapScanner_AvcFourByteStartCode(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, true, s.Feed([]byte{0x00, 0x00, 0x00, 0x01, 0x65}))
}

// TestIrapScanner_StartCodeStraddlesFeedCalls confirms the scanner carries
// its search state across Feed calls so a start code split across two TS
// packets' payloads is still recognized.
func TestIrapScanner_StartCodeStraddlesFeedCalls(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, false, s.Feed([]byte{0xaa, 0x00, 0x00}))
	assert.Equal(t, true, s.Feed([]byte{0x01, 0x65}))
}

// TestIrapScanner_TypeByteStraddlesFeedCalls covers the narrower case where
// the start code completes in one call and the NAL header byte itself only
// arrives in the next.
func TestIrapScanner_TypeByteStraddlesFeedCalls(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, false, s.Feed([]byte{0x00, 0x00, 0x01}))
	assert.Equal(t, true, s.Feed([]byte{0x65}))
}

// TestIrapScanner_LatchesUntilReset confirms a scanner that already found
// its IRAP keeps returning false on further Feed calls until Reset.
func TestIrapScanner_LatchesUntilReset(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, true, s.Feed([]byte{0x00, 0x00, 0x01, 0x65}))
	assert.Equal(t, false, s.Feed([]byte{0x00, 0x00, 0x01, 0x65}))

	s.Reset()
	assert.Equal(t, true, s.Feed([]byte{0x00, 0x00, 0x01, 0x65}))
}

func TestIrapScanner_HevcIrapDetected(t *testing.T) {
	s := NewIrapScanner(true)
	// nal_unit_type 19 (IDR_W_RADL) packed into the header's bits 6..1.
	assert.Equal(t, true, s.Feed([]byte{0x00, 0x00, 0x01, 0x26, 0x01}))
}

func TestIrapScanner_HevcNonIrapNotDetected(t *testing.T) {
	s := NewIrapScanner(true)
	// nal_unit_type 1 (TRAIL_R), well outside HEVC's 16-23 IRAP range.
	assert.Equal(t, false, s.Feed([]byte{0x00, 0x00, 0x01, 0x02, 0x01}))
}

// TestIrapScanner_SpuriousZeroRunDoesNotFalsePositive covers a long run of
// zero bytes (common padding/stuffing) followed by a non-start-code byte,
// which must not be mistaken for a start code.
func TestIrapScanner_SpuriousZeroRunDoesNotFalsePositive(t *testing.T) {
	s := NewIrapScanner(false)
	assert.Equal(t, false, s.Feed([]byte{0x00, 0x00, 0x00, 0x00, 0xff, 0xff}))
}
