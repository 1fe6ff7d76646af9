// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package publish

// SegmentUpdate is everything the Pipeline driver knows about one slot's
// segment at the moment it dispatches bytes to Publisher: the raw TS
// packets (TS mode) or [emsg*]moof mdat runs (MP4 mode) to publish, plus
// the bookkeeping spec.md §6 asks the segment/listing frames to carry.
type SegmentUpdate struct {
	SlotIndex     int // 1..N
	SegmentNumber uint32
	Body          []byte
	FragmentSizes []int // bytes per fragment (MP4 mode); nil in TS mode
	// CountOfUnitsOrBytes is units of 188 (TS mode) or bytes (MP4 mode).
	CountOfUnitsOrBytes uint32
	Unavailable         bool
	// FragmentDurationsMs accumulates across calls within one still-open
	// segment; the caller passes the running total each time, not just
	// the delta, so Publisher can always rebuild the listing from it.
	FragmentDurationsMs []int
	SegmentDurationMs   int // 0 while the segment is still open
	FtypMoov            []byte
	Finalized           bool // true once this segment will receive no more fragments
}

// PublishSegment hands one slot's update to its ring and republishes the
// listing, holding p.mu across both so the two are atomic with respect to
// readers -- spec.md §5's "listing is rewritten after the slot" ordering
// guarantee.
func (p *Publisher) PublishSegment(u SegmentUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.slots[u.SlotIndex]
	s.segmentNumber = u.SegmentNumber
	s.unavailable = u.Unavailable
	s.fragmentDurations = u.FragmentDurationsMs
	s.segmentDurationMs = u.SegmentDurationMs
	if len(u.FtypMoov) > 0 {
		s.ftypMoov = u.FtypMoov
	}
	if u.Finalized && u.SegmentDurationMs > 0 {
		p.cumulativeCentisec += uint32(u.SegmentDurationMs / 10)
	}
	s.cumulativeCentisecSnapshot = p.cumulativeCentisec

	frame := buildSegmentFrame(p.cfg.SegName, u.SegmentNumber, u.Unavailable, u.CountOfUnitsOrBytes, p.cfg.IsMp4, u.FragmentSizes, u.Body)
	s.ring.publish(frame)

	p.rebuildListingLocked()
}

// FinalizeListing marks the listing end_list and republishes it, per
// spec.md §4.7 step 7's shutdown path.
func (p *Publisher) FinalizeListing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endList = true
	p.rebuildListingLocked()
}
