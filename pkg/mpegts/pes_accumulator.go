// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// PesAccumulator reassembles one elementary stream's PES packets out of
// however many TS packets they span, the way mp4fragmenter.cpp's
// AddPackets loop accumulates m_videoPes/m_audioPes/m_id3Pes: payload is
// appended packet by packet, and a PES is "complete" the instant the next
// payload_unit_start_indicator arrives (video's PES_packet_length is
// routinely 0, meaning "read until the next unit start", so this is the
// only boundary every stream type can rely on).
type PesAccumulator struct {
	started bool
	buf     []byte
}

// Feed appends one packet's payload. If a previously accumulated PES was
// in progress, unitStart closes it out and Feed returns its bytes;
// otherwise it returns nil and the payload is merged into the
// in-progress PES.
func (a *PesAccumulator) Feed(payload []byte, unitStart bool) (completed []byte) {
	if unitStart {
		if a.started && len(a.buf) > 0 {
			completed = a.buf
		}
		a.buf = append([]byte(nil), payload...)
		a.started = true
		return completed
	}
	if !a.started {
		return nil
	}
	a.buf = append(a.buf, payload...)
	return nil
}

// Flush returns and clears whatever PES bytes are currently buffered,
// regardless of whether a unit-start boundary has been seen. Callers use
// this at the end of a packet batch, since an unbounded video PES
// (PES_packet_length == 0) only otherwise closes at the next unit start,
// which may not arrive until the next segment's packets.
func (a *PesAccumulator) Flush() []byte {
	if !a.started || len(a.buf) == 0 {
		return nil
	}
	b := a.buf
	a.buf = nil
	a.started = false
	return b
}

// Reset discards any in-progress PES without returning it.
func (a *PesAccumulator) Reset() {
	a.buf = nil
	a.started = false
}
