// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package pipeline wires components B-F together, following
// original_source/tsmemseg.cpp's main(): an ARIB->ID3 pre-converter ahead
// of the Segmenter, a Fragmenter between Segmenter and Publisher in fMP4
// mode, read-rate pacing on the input loop, and an access-timeout/EOF
// shutdown path that finalizes the listing and closes every endpoint.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/memseg/tsmemseg/pkg/aribfilter"
	"github.com/memseg/tsmemseg/pkg/base"
	"github.com/memseg/tsmemseg/pkg/fmp4"
	"github.com/memseg/tsmemseg/pkg/mpegts"
	"github.com/memseg/tsmemseg/pkg/publish"
	"github.com/memseg/tsmemseg/pkg/segment"
)

// segmentNumberModulus is spec.md §8 property 3's 2^24 wraparound.
const segmentNumberModulus = 1 << 24

// readChunkPackets is how many 188-byte TS packets the driver reads from
// stdin per ARIB-filter call, balancing syscall overhead against pacing
// granularity.
const readChunkPackets = 64

// Config holds every pipeline-level parameter derived from CLI flags
// (cmd/tsmemseg/config.go owns the seconds-to-duration conversion;
// durationTicks below turns durations into 90kHz ticks).
type Config struct {
	SegName       string
	FifoDirectory string
	IsMp4         bool

	InitDuration   time.Duration
	TargetDuration time.Duration
	PartialTarget  time.Duration

	AccessTimeout  time.Duration
	ClosingCommand string

	ReadRatePercent     int
	FillReadRatePercent int

	SegmentCount int
	MaxKBytes    int
	AribFlags    int
}

// Driver owns one run of the pipeline: one Segmenter, an optional
// Fragmenter, and a Publisher, plus the accumulator tracking whichever
// segment is currently open.
type Driver struct {
	cfg Config

	filter    aribfilter.Filter
	segmenter *segment.Segmenter
	frag      *fmp4.Fragmenter
	publisher *publish.Publisher

	slotIndex     int
	segmentNumber uint32
	body          []byte
	fragmentSizes []int
	fragmentMsec  []int

	syncErrorCountAtLastReport   uint32
	forcedSegCountAtLastReport   uint32
}

// NewDriver creates a Driver and its Publisher's endpoints. Per spec.md
// §7, an endpoint-create failure here should lead the caller to print to
// stderr and exit 1 -- NewDriver just returns the error.
func NewDriver(cfg Config) (*Driver, error) {
	pubCfg := publish.Config{
		SegName:       cfg.SegName,
		FifoDirectory: cfg.FifoDirectory,
		SegmentCount:  cfg.SegmentCount,
		MaxSegBytes:   cfg.MaxKBytes * 1024,
		IsMp4:         cfg.IsMp4,
		AccessTimeout: cfg.AccessTimeout,
	}
	pub, err := publish.NewPublisher(pubCfg)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:       cfg,
		filter:    aribfilter.NewFilter(cfg.AribFlags),
		publisher: pub,
		slotIndex: cfg.SegmentCount, // so the first advance lands on slot 1
	}
	if cfg.IsMp4 {
		d.frag = fmp4.NewFragmenter()
	}

	segCfg := segment.Config{
		TargetSegmentDuration:     durationTicks(cfg.InitDuration),
		NextTargetSegmentDuration: durationTicks(cfg.TargetDuration),
		TargetFragDuration:        durationTicks(cfg.PartialTarget),
		SegMaxBytes:               cfg.MaxKBytes * 1024,
		FragMaxBytes:              cfg.MaxKBytes * 1024,
		FragmentationEnabled:      cfg.IsMp4 && cfg.PartialTarget > 0,
	}
	d.segmenter = segment.NewSegmenter(segCfg, d.onCut)

	return d, nil
}

func durationTicks(d time.Duration) uint64 {
	return uint64(d.Seconds() * float64(mpegts.PtsClockHz))
}

// Run installs the fatal-signal handler, starts the Publisher workers, and
// drives the read loop until r hits EOF or the access timeout fires,
// following spec.md §4.7's numbered steps 4-7.
func (d *Driver) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	installFatalSignalHandler(func() {
		d.shutdown()
	})

	d.publisher.Start(ctx)

	pace := newPacer(d.cfg.ReadRatePercent, d.cfg.FillReadRatePercent)

	buf := make([]byte, readChunkPackets*mpegts.PacketSize)
	startedAt := time.Now()
	lastAccessCheck := time.Now()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		default:
		}

		if time.Since(lastAccessCheck) >= 100*time.Millisecond {
			lastAccessCheck = time.Now()
			if d.accessTimedOut(startedAt) {
				d.shutdown()
				return nil
			}
		}

		pace.throttle(ctx, d.segmenter.CurrentPts())

		n, err := io.ReadFull(r, buf)
		if n > 0 {
			filtered := d.filter.Filter(buf[:n])
			for i := 0; i+mpegts.PacketSize <= len(filtered); i += mpegts.PacketSize {
				d.segmenter.FeedPacket(filtered[i : i+mpegts.PacketSize])
			}
		}
		if err != nil {
			// io.ErrUnexpectedEOF (a short final read) still carries
			// whatever whole packets it contained, handled above; any
			// read error ends the stream the same way EOF does.
			d.shutdown()
			return nil
		}
	}
}

// accessTimedOut reports whether no reader has made progress on any
// endpoint for cfg.AccessTimeout, measuring from process start until the
// first observed access so a stream that's never been read isn't timed
// out instantly.
func (d *Driver) accessTimedOut(startedAt time.Time) bool {
	if d.cfg.AccessTimeout <= 0 {
		return false
	}
	last := d.publisher.LastAccessTick()
	baseline := startedAt
	if last > 0 {
		baseline = time.Unix(last, 0)
	}
	return time.Since(baseline) >= d.cfg.AccessTimeout
}

// shutdown implements spec.md §4.7 step 7: finalize the listing with
// end_list=1, stop and close the Publisher, then run the closing command
// if one was configured.
func (d *Driver) shutdown() {
	d.publisher.FinalizeListing()
	d.publisher.Stop()
	d.publisher.Close()

	base.Log.Warnf("pipeline: shutting down. sync_errors=%d, forced_segmentations=%d",
		d.segmenter.SyncErrorCount, d.segmenter.ForcedSegmentationErrorCount)

	if d.cfg.ClosingCommand != "" {
		runClosingCommand(context.Background(), d.cfg.ClosingCommand)
	}
}

// onCut is the Segmenter's callback, implementing spec.md §4.7 step 6's
// dispatch: TS mode publishes cut.Packets directly, MP4 mode runs them
// through the Fragmenter first. A CutPartial cut extends the
// currently-open segment; CutSegmentKey/CutForced finalize it.
func (d *Driver) onCut(cut segment.Cut) {
	finalized := cut.Kind != segment.CutPartial

	if d.frag != nil {
		d.frag.AddPackets(cut.Packets, cut.Pmt, !finalized)
		d.body = append(d.body, d.frag.GetFragments()...)
		d.fragmentSizes = append(d.fragmentSizes, d.frag.FragmentSizes()...)
		d.fragmentMsec = append(d.fragmentMsec, d.frag.FragmentDurationsMs()...)
		d.frag.ClearFragments()
	} else {
		d.body = append(d.body, cut.Packets...)
	}

	count := uint32(len(d.body))
	if !d.cfg.IsMp4 {
		count = uint32(len(d.body) / mpegts.PacketSize)
	}

	segmentDurationMs := 0
	if finalized {
		segmentDurationMs = int(cut.PtsDiff * 1000 / mpegts.PtsClockHz)
	}

	var ftypMoov []byte
	if d.frag != nil {
		ftypMoov = d.frag.GetHeader()
	}

	d.publisher.PublishSegment(publish.SegmentUpdate{
		SlotIndex:           d.currentSlotIndex(),
		SegmentNumber:       d.currentSegmentNumber(),
		Body:                d.body,
		FragmentSizes:       d.fragmentSizes,
		CountOfUnitsOrBytes: count,
		Unavailable:         false,
		FragmentDurationsMs: d.fragmentMsec,
		SegmentDurationMs:   segmentDurationMs,
		FtypMoov:            ftypMoov,
		Finalized:           finalized,
	})

	if finalized {
		d.advanceSlot()
	}
}

func (d *Driver) currentSlotIndex() int {
	idx := d.slotIndex
	if idx == 0 {
		idx = d.cfg.SegmentCount
	}
	return idx%d.cfg.SegmentCount + 1
}

func (d *Driver) currentSegmentNumber() uint32 {
	return d.segmentNumber
}

// advanceSlot resets the per-segment accumulator and moves to the next
// slot/segment_number pair, ready for whatever the next cut delivers.
func (d *Driver) advanceSlot() {
	d.slotIndex = d.currentSlotIndex()
	d.segmentNumber = (d.segmentNumber + 1) % segmentNumberModulus
	d.body = nil
	d.fragmentSizes = nil
	d.fragmentMsec = nil
}
