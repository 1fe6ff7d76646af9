// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package publish

import (
	"encoding/binary"
	"runtime"
	"time"
)

// maxFragmentsPerSlot is spec.md §6's fragment-size-bookkeeping cap: kept
// at 20 even though the stated theoretical upper bound is 38, per §9's
// "implementers should expose it as a constant" note.
const maxFragmentsPerSlot = 20

// foldFragments applies spec.md §6's fold rule: once more than
// maxFragmentsPerSlot fragments have accumulated for a segment, sum the
// durations of everything past the 20th into the 20th entry itself.
// incomplete hides that folded trailing entry until the segment finalizes.
func foldFragments(durations []int, incomplete bool) []int {
	if len(durations) <= maxFragmentsPerSlot {
		return durations
	}
	folded := append([]int(nil), durations[:maxFragmentsPerSlot]...)
	sum := 0
	for _, d := range durations[maxFragmentsPerSlot:] {
		sum += d
	}
	folded[maxFragmentsPerSlot-1] += sum
	if incomplete {
		return folded[:maxFragmentsPerSlot-1]
	}
	return folded
}

// rebuildListingLocked regenerates the listing frame from the current slot
// state and publishes it to slot 0's ring. Callers must hold p.mu.
func (p *Publisher) rebuildListingLocked() {
	n := p.cfg.SegmentCount
	now := uint32(time.Now().Unix())

	var extra []byte
	var ftypMoov []byte
	totalFragments := 0

	rows := make([]byte, 16*n)
	for i := 1; i <= n; i++ {
		s := p.slots[i]
		row := rows[(i-1)*16 : i*16]

		durations := foldFragments(s.fragmentDurations, !s.unavailable && s.segmentDurationMs == 0)
		row[0] = byte(i)
		binary.LittleEndian.PutUint16(row[2:4], uint16(len(durations)))
		row[4] = byte(s.segmentNumber)
		row[5] = byte(s.segmentNumber >> 8)
		row[6] = byte(s.segmentNumber >> 16)
		if s.unavailable {
			row[7] = 1
		}
		binary.LittleEndian.PutUint32(row[8:12], uint32(s.segmentDurationMs))
		binary.LittleEndian.PutUint32(row[12:16], p.slotCumulativeCentisec(i))

		for _, d := range durations {
			rec := make([]byte, 16)
			binary.LittleEndian.PutUint32(rec[0:4], uint32(d))
			extra = append(extra, rec...)
			totalFragments++
		}
		if len(s.ftypMoov) > 0 {
			ftypMoov = s.ftypMoov
		}
	}
	extra = append(extra, ftypMoov...)

	row0 := make([]byte, 16)
	row0[0] = byte(n)
	binary.LittleEndian.PutUint32(row0[4:8], now)
	if p.endList {
		row0[8] = 1
	}
	if p.anyIncompleteLocked() {
		row0[9] = 1
	}
	if p.cfg.IsMp4 {
		row0[10] = 1
	}
	binary.LittleEndian.PutUint32(row0[12:16], uint32(len(extra)))

	var frame []byte
	if runtime.GOOS != "windows" {
		frame = append(frame, listingSignaturePrefix(p.cfg.SegName)...)
	}
	frame = append(frame, row0...)
	frame = append(frame, rows...)
	frame = append(frame, extra...)

	p.slots[0].ring.publish(frame)
}

// listingSignaturePrefix is spec.md §6's "64-byte prefix containing the
// ASCII seg_name (used by readers as a signature), padded with zeros" --
// Unix FIFO only, since a Windows pipe name already embeds seg_name.
func listingSignaturePrefix(segName string) []byte {
	buf := make([]byte, 64)
	copy(buf, segName)
	return buf
}

func (p *Publisher) anyIncompleteLocked() bool {
	for i := 1; i <= p.cfg.SegmentCount; i++ {
		s := p.slots[i]
		if !s.unavailable && s.segmentDurationMs == 0 {
			return true
		}
	}
	return false
}

// slotCumulativeCentisec returns the running total, in centiseconds, of
// every completed segment's duration up to and including slot i's current
// segment -- spec.md §8 property 5's "cumulative_time_centiseconds" value.
func (p *Publisher) slotCumulativeCentisec(i int) uint32 {
	return p.slots[i].cumulativeCentisecSnapshot
}
