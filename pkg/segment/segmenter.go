// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package segment turns a raw MPEG-2 TS packet stream into a sequence of
// key-aligned byte runs, generalizing original_source/tsmemseg.cpp's main()
// packet loop into a reusable state machine: PAT/PMT tracking, per-PID
// unit-start bookkeeping, IRAP detection on the governing video (or, absent
// video, audio) PID, and the PAT/PMT bring-to-front packet reorder that
// keeps every emitted run independently playable from its first byte.
package segment

import (
	"github.com/memseg/tsmemseg/pkg/mpegts"
	"github.com/memseg/tsmemseg/pkg/nal"
)

// DefaultSegMaxBytes mirrors tsmemseg.cpp's -m default (4096 KiB).
const DefaultSegMaxBytes = 4096 * 1024

// CutKind classifies why a run was emitted.
type CutKind int

const (
	// CutSegmentKey is a real, key-aligned segment boundary.
	CutSegmentKey CutKind = iota
	// CutPartial is a low-latency HLS partial fragment inside an
	// otherwise still-open segment.
	CutPartial
	// CutForced is a boundary forced by a size ceiling with no usable
	// key alignment available; original_source/tsmemseg.cpp's
	// "forcedSegmentationError" case.
	CutForced
)

func (k CutKind) String() string {
	switch k {
	case CutSegmentKey:
		return "segment_key"
	case CutPartial:
		return "partial"
	default:
		return "forced"
	}
}

// Cut is one emitted byte run together with the bookkeeping a downstream
// Fragmenter or Publisher needs to act on it.
type Cut struct {
	Packets []byte
	Kind    CutKind
	PtsDiff uint64 // wrap-safe 90kHz ticks elapsed since the previous anchor of the same kind
	Pmt     mpegts.Pmt
}

// OnCut is invoked synchronously from FeedPacket every time a cut is produced.
type OnCut func(cut Cut)

// Config holds the per-run parameters a Segmenter needs. Durations are
// already expressed in 90kHz ticks (PtsClockHz) by the caller, matching the
// unit PES timestamps arrive in -- see pkg/pipeline's durationTicks for the
// duration-to-ticks conversion of the CLI values.
type Config struct {
	TargetSegmentDuration     uint64
	NextTargetSegmentDuration uint64
	TargetFragDuration        uint64
	SegMaxBytes               int
	FragMaxBytes              int
	FragmentationEnabled      bool
}

// Segmenter consumes one 188-byte TS packet at a time and emits Cuts.
type Segmenter struct {
	cfg   Config
	onCut OnCut

	pat mpegts.Pat
	pmt mpegts.Pmt

	unitStartMap map[uint16]*unitStart
	packets      []byte

	keyScanner       *nal.IrapScanner
	keyScannerIsHevc bool
	isFirstKey       bool

	pts            uint64
	lastSegPts     uint64
	lastFragPts    uint64
	markedFragPts  uint64
	marked         bool
	ptsInitialized bool

	firstAudioArrived bool

	targetSegmentDuration uint64

	SyncErrorCount               uint32
	ForcedSegmentationErrorCount uint32
}

// CurrentPts returns the most recently observed 90kHz PTS on the
// key-governing PID, for a Pipeline driver's read-rate pacing -- zero until
// the first PES with a PTS has arrived.
func (s *Segmenter) CurrentPts() uint64 {
	return s.pts
}

// NewSegmenter creates a Segmenter that reports every cut to onCut.
func NewSegmenter(cfg Config, onCut OnCut) *Segmenter {
	if cfg.SegMaxBytes <= 0 {
		cfg.SegMaxBytes = DefaultSegMaxBytes
	}
	return &Segmenter{
		cfg:                   cfg,
		onCut:                 onCut,
		unitStartMap:          make(map[uint16]*unitStart),
		isFirstKey:            true,
		targetSegmentDuration: cfg.TargetSegmentDuration,
	}
}

func (s *Segmenter) getUnitStart(pid uint16) *unitStart {
	us, ok := s.unitStartMap[pid]
	if !ok {
		u := newUnitStart()
		us = &u
		s.unitStartMap[pid] = us
	}
	return us
}

// effectiveKeyPid is the PID whose units govern segmentation: the video PID
// if the PMT names one, otherwise the ADTS audio PID. spec.md's extension
// of original_source/tsmemseg.cpp, which only ever looked at AVC_VIDEO.
func (s *Segmenter) effectiveKeyPid() uint16 {
	if s.pmt.FirstVideoPid != 0 &&
		(s.pmt.FirstVideoStreamType == mpegts.StreamTypeAvcVideo || s.pmt.FirstVideoStreamType == mpegts.StreamTypeHevcVideo) {
		return s.pmt.FirstVideoPid
	}
	return s.pmt.FirstAdtsAudioPid
}

// resetPmt zeroes the tracked PMT and the state derived from it, matching
// original_source/util.cpp's `pat->first_pmt = pmt_zero` when the chosen PMT
// PID changes: stale video/audio PID associations from the old PMT must not
// survive into the switch window before the new PMT section reassembles.
func (s *Segmenter) resetPmt() {
	s.pmt = mpegts.Pmt{}
	s.keyScanner = nil
	s.keyScannerIsHevc = false
	s.isFirstKey = true
}

// FeedPacket processes one 188-byte MPEG-TS packet, invoking onCut at most
// once per call.
func (s *Segmenter) FeedPacket(packet []byte) {
	if len(packet) != mpegts.PacketSize || packet[0] != mpegts.SyncByte {
		s.SyncErrorCount++
		return
	}

	header := mpegts.ParseTsPacketHeader(packet)
	pid := header.Pid
	unitStartFlag := header.PayloadUnitStart == 1

	if unitStartFlag {
		s.getUnitStart(pid).lastStart = len(s.packets)
	}

	offset, size := mpegts.PayloadOffset(packet, header.Adaptation)
	var payload []byte
	if size > 0 && offset+size <= len(packet) {
		payload = packet[offset : offset+size]
	}

	isKey := false
	keyPidUnitStart := false
	pmtPidChanged := false
	switch {
	case pid == 0:
		prevPmtPid := s.pat.FirstPmtPid
		s.pat.Feed(payload, unitStartFlag, header.Cc)
		pmtPidChanged = s.pat.FirstPmtPid != prevPmtPid
	case s.pat.FirstPmtPid != 0 && pid == s.pat.FirstPmtPid:
		s.pmt.Feed(payload, unitStartFlag, header.Cc)
	default:
		if s.pmt.FirstAdtsAudioPid != 0 && pid == s.pmt.FirstAdtsAudioPid && unitStartFlag {
			s.firstAudioArrived = true
		}
		if keyPid := s.effectiveKeyPid(); keyPid != 0 && pid == keyPid {
			isKey = s.feedKeyPid(pid, unitStartFlag, payload)
			keyPidUnitStart = unitStartFlag
		}
	}

	if pmtPidChanged {
		s.resetPmt()
	}

	forceSegment := len(s.packets)+mpegts.PacketSize > s.cfg.SegMaxBytes ||
		(s.cfg.FragmentationEnabled && s.cfg.FragMaxBytes > 0 && len(s.packets)+mpegts.PacketSize > s.cfg.FragMaxBytes)

	// Steps 2-7 (classifyAndCut) must run on every governing-PID unit
	// start, not only when isKey/forceSegment already fired -- the
	// partial-fragment mark (step 1) is evaluated independently of
	// isKey/forceSegment, so it needs its own chance to be checked.
	if isKey || forceSegment || keyPidUnitStart {
		s.classifyAndCut(isKey, forceSegment)
	}

	s.packets = append(s.packets, packet...)
}

// feedKeyPid processes a payload belonging to the current key-governing PID
// and reports whether it contains (or completes) an IRAP NAL unit -- or, for
// an audio-governed stream, simply that a new, independently decodable PES
// has started. On every unit start it also refreshes before_key_start for
// every known PID and evaluates the low-latency partial-fragment mark,
// mirroring the snapshot loop tsmemseg.cpp runs on every video PES start.
func (s *Segmenter) feedKeyPid(pid uint16, unitStartFlag bool, payload []byte) bool {
	isVideo := s.pmt.FirstVideoPid != 0 && pid == s.pmt.FirstVideoPid &&
		(s.pmt.FirstVideoStreamType == mpegts.StreamTypeAvcVideo || s.pmt.FirstVideoStreamType == mpegts.StreamTypeHevcVideo)

	if !unitStartFlag {
		if !isVideo || s.keyScanner == nil {
			return false
		}
		if s.keyScanner.Feed(payload) {
			return s.latchKey()
		}
		return false
	}

	for _, us := range s.unitStartMap {
		us.beforeKeyStart = us.lastStart
	}

	if len(payload) < 9 || payload[0] != 0 || payload[1] != 0 || payload[2] != 1 {
		return false
	}
	pes, headerLength := mpegts.ParsePes(payload)
	if pes.PtsDtsFlag&0x2 != 0 {
		s.pts = pes.Pts
		if !s.ptsInitialized {
			s.lastSegPts = s.pts
			s.lastFragPts = s.pts
			s.ptsInitialized = true
		}
	}

	s.maybeMarkPartial()

	if !isVideo {
		// No video stream: every audio PES is its own independently
		// decodable unit, so it always qualifies as a key candidate.
		return s.latchKey()
	}

	if s.keyScanner == nil || s.keyScannerIsHevc != s.pmt.IsHevc() {
		s.keyScanner = nal.NewIrapScanner(s.pmt.IsHevc())
		s.keyScannerIsHevc = s.pmt.IsHevc()
	} else {
		s.keyScanner.Reset()
	}

	if headerLength >= len(payload) {
		return false
	}
	if s.keyScanner.Feed(payload[headerLength:]) {
		return s.latchKey()
	}
	return false
}

// latchKey consumes the stream's very first key candidate without cutting
// on it -- there is nothing accumulated yet to split -- exactly as
// tsmemseg.cpp's isFirstKey does.
func (s *Segmenter) latchKey() bool {
	if s.isFirstKey {
		s.isFirstKey = false
		return false
	}
	return true
}

// maybeMarkPartial implements spec.md §4.4 step 1: once fragmentation is
// enabled and enough PTS has elapsed since the last fragment boundary,
// place a partial-segment mark so a later, not-yet-real key can still close
// a low-latency fragment early.
func (s *Segmenter) maybeMarkPartial() {
	if !s.cfg.FragmentationEnabled || s.marked || !s.ptsInitialized {
		return
	}
	if ptsDiffOrZero(s.pts, s.lastFragPts) >= s.cfg.TargetFragDuration {
		s.markedFragPts = s.pts
		s.marked = true
		for _, us := range s.unitStartMap {
			us.beforeMarkedKeyStart = us.lastStart
		}
	}
}

// ptsDiffOrZero is the wrap-safe elapsed ticks from b to a, folded to zero
// if the result looks like a backward jump -- tsmemseg.cpp's "PTS went
// back, rare case" guard, generalized from 32 to 33 bits.
func ptsDiffOrZero(a, b uint64) uint64 {
	diff := mpegts.WrapSafeDiff33(a, b)
	if diff >= uint64(1)<<32 {
		return 0
	}
	return diff
}

// classifyAndCut runs spec.md §4.4 steps 2-7: pick at most one of
// segment-key / partial / forced, and if one fires, split packets into the
// emitted run and the carried-forward remainder.
func (s *Segmenter) classifyAndCut(isKey, forceSegment bool) {
	var (
		kind           CutKind
		ptsDiff        uint64
		keyUnitStartPos int
		useMarked      bool
		produced       bool
	)

	switch {
	case isKey && ptsDiffOrZero(s.pts, s.lastSegPts) >= s.targetSegmentDuration:
		kind = CutSegmentKey
		ptsDiff = ptsDiffOrZero(s.pts, s.lastSegPts)
		keyUnitStartPos = s.getUnitStart(s.effectiveKeyPid()).beforeKeyStart
		produced = true

	case s.cfg.FragmentationEnabled && s.marked &&
		ptsDiffOrZero(s.pts, s.markedFragPts) >= s.cfg.TargetFragDuration/4:
		kind = CutPartial
		useMarked = true
		ptsDiff = ptsDiffOrZero(s.markedFragPts, s.lastFragPts)
		keyUnitStartPos = s.getUnitStart(s.effectiveKeyPid()).beforeMarkedKeyStart
		produced = true

	case forceSegment:
		kind = CutForced
		ptsDiff = ptsDiffOrZero(s.pts, s.lastSegPts)
		produced = true
	}

	if !produced {
		return
	}

	front := s.cutAt(keyUnitStartPos, useMarked, kind == CutForced)

	switch kind {
	case CutSegmentKey:
		s.lastSegPts = s.pts
		s.lastFragPts = s.pts
		s.targetSegmentDuration = s.cfg.NextTargetSegmentDuration
	case CutPartial:
		s.lastFragPts = s.markedFragPts
	case CutForced:
		s.lastSegPts = s.pts
		s.lastFragPts = s.pts
	}
	s.marked = false
	s.unitStartMap = make(map[uint16]*unitStart)

	s.onCut(Cut{
		Packets: front,
		Kind:    kind,
		PtsDiff: ptsDiff,
		Pmt:     s.pmt,
	})
}

// cutAt implements spec.md §4.4 step 5: the PAT/PMT bring-to-front walk
// over packets, splitting it into the emitted run and the remainder that
// replaces packets. forced bypasses key alignment entirely and takes the
// whole buffer, matching tsmemseg.cpp's "packets have accumulated over the
// limit, simply segment everything" fallback.
func (s *Segmenter) cutAt(keyUnitStartPos int, useMarked, forced bool) []byte {
	n := len(s.packets)

	if forced {
		s.ForcedSegmentationErrorCount++
		front := s.packets
		s.packets = nil
		return front
	}

	if keyUnitStartPos < 0 || keyUnitStartPos > n {
		keyUnitStartPos = n
	}
	pmtPid := s.pat.FirstPmtPid

	front := make([]byte, 0, n)
	back := make([]byte, 0, mpegts.PacketSize*4)

	bringState := 0
	for i := 0; i+mpegts.PacketSize <= n && i < keyUnitStartPos && bringState < 2; i += mpegts.PacketSize {
		pid := packetPid(s.packets[i : i+mpegts.PacketSize])
		if pid == 0 || pid == pmtPid {
			if pid == 0 {
				bringState = 1
			} else if bringState == 1 {
				bringState = 2
			}
			front = append(front, s.packets[i:i+mpegts.PacketSize]...)
		}
	}

	bringState = 0
	for i := 0; i+mpegts.PacketSize <= n; i += mpegts.PacketSize {
		packet := s.packets[i : i+mpegts.PacketSize]
		if i >= keyUnitStartPos {
			back = append(back, packet...)
			continue
		}
		pid := packetPid(packet)
		if (pid == 0 || pid == pmtPid) && bringState < 2 {
			if pid == 0 {
				bringState = 1
			} else if bringState == 1 {
				bringState = 2
			}
			continue // already placed in the first pass above
		}
		earliest := n
		if us, ok := s.unitStartMap[pid]; ok {
			bound := us.beforeKeyStart
			if useMarked {
				bound = us.beforeMarkedKeyStart
			}
			earliest = minBound(us.lastStart, bound, n)
		}
		if i < earliest {
			front = append(front, packet...)
		} else {
			back = append(back, packet...)
		}
	}

	s.packets = back
	return front
}

// minBound is min(a, b), treating noPosition ("never snapshotted") as the
// buffer length -- "no constraint" -- rather than as the smallest value.
func minBound(a, b, infinity int) int {
	if a < 0 {
		a = infinity
	}
	if b < 0 {
		b = infinity
	}
	if a < b {
		return a
	}
	return b
}

func packetPid(packet []byte) uint16 {
	return uint16(packet[1]&0x1f)<<8 | uint16(packet[2])
}
