// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package publish

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memseg/tsmemseg/pkg/base"
)

// slotsPerWindowsWorker is the "one thread per 20 slots" fan-out spec.md
// §4.6 gives the Windows worker; on Unix a single worker always handles
// every slot.
const slotsPerWindowsWorker = 20

// emptySegmentNumber is the sentinel segment_number a slot reports before
// its first cut ever lands, per spec.md §6's listing cardinality property.
const emptySegmentNumber = 0xffffff

// Config holds the parameters Publisher needs to name and size its
// endpoints. SegName, FifoDirectory and IsMp4 come straight from
// cmd/tsmemseg/config.go's parsed CLI flags.
type Config struct {
	SegName        string
	FifoDirectory  string
	SegmentCount   int // N
	MaxSegBytes    int // capacity hint for F_SETPIPE_SZ / named-pipe buffers
	IsMp4          bool
	AccessTimeout  time.Duration
}

// slot is one of the N+1 named resources: the listing (index 0) or a
// segment (index 1..N).
type slot struct {
	index    int
	ring     *ring
	endpoint endpoint

	segmentNumber     uint32
	unavailable       bool
	segmentDurationMs int
	fragmentDurations []int // per-fragment ms within this slot's current segment
	ftypMoov          []byte

	// cumulativeCentisecSnapshot is the stream-wide running total (in
	// centiseconds) of every finalized segment's duration, as of this
	// slot's most recent update -- spec.md §8 property 5.
	cumulativeCentisecSnapshot uint32
}

// Publisher owns the N+1 endpoints, the mutex-guarded listing
// rebuild, and the platform worker(s) that drain every slot's ring,
// following spec.md §4.6 in full.
type Publisher struct {
	cfg Config

	mu                sync.Mutex // serializes listing rebuild with slot mutation, per spec.md §5
	slots             []*slot // slots[0] is the listing
	cumulativeCentisec uint32

	endList bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPublisher creates the N+1 endpoints (index 0 = listing, 1..N =
// segments) but does not start the worker(s) yet -- call Start for that.
// It fails fast and closes everything already created if any endpoint
// cannot be made, matching spec.md §7's "close all created endpoints in
// reverse order" requirement.
func NewPublisher(cfg Config) (*Publisher, error) {
	p := &Publisher{cfg: cfg}
	p.slots = make([]*slot, cfg.SegmentCount+1)

	for i := 0; i <= cfg.SegmentCount; i++ {
		s := &slot{index: i, ring: newRing(), segmentNumber: emptySegmentNumber, unavailable: true}
		s.endpoint = newEndpointSlot(endpointName(cfg, i), cfg.MaxSegBytes)
		if err := s.endpoint.create(); err != nil {
			for j := i - 1; j >= 0; j-- {
				p.slots[j].endpoint.close()
			}
			return nil, fmt.Errorf("%w: %s: %v", base.ErrEndpointCreateFailed, endpointName(cfg, i), err)
		}
		p.slots[i] = s
	}

	p.rebuildListingLocked()
	return p, nil
}

// Start launches the platform worker(s) bound to ctx; they run until ctx
// is cancelled or Stop is called, and Stop waits for them to return.
func (p *Publisher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p.cancel = cancel
	p.group = g

	for _, batch := range p.workerBatches() {
		batch := batch
		g.Go(func() error {
			p.runWorker(gctx, batch)
			return nil
		})
	}
}

// workerBatches splits slots into groups of at most slotsPerWindowsWorker
// on Windows; on Unix it's always a single batch covering every slot,
// matching spec.md §4.6/§5's thread-count descriptions for each platform.
func (p *Publisher) workerBatches() [][]*slot {
	if runtime.GOOS != "windows" {
		return [][]*slot{p.slots}
	}
	var batches [][]*slot
	for i := 0; i < len(p.slots); i += slotsPerWindowsWorker {
		end := i + slotsPerWindowsWorker
		if end > len(p.slots) {
			end = len(p.slots)
		}
		batches = append(batches, p.slots[i:end])
	}
	return batches
}

// runWorker is the poll loop shared by both platforms: tick every
// pollInterval, service every slot in the batch, until ctx is cancelled.
func (p *Publisher) runWorker(ctx context.Context, batch []*slot) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range batch {
				s.endpoint.poll(ctx, s.ring)
			}
		}
	}
}

// Stop cancels the worker(s) and waits for them to return.
func (p *Publisher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		_ = p.group.Wait()
	}
}

// Close tears down every endpoint, unlinking FIFO paths / closing pipe
// handles. Call after Stop.
func (p *Publisher) Close() {
	for _, s := range p.slots {
		s.endpoint.close()
	}
}

// LastAccessTick returns the most recent unix-second timestamp any slot
// (listing included) observed reader activity, for the Pipeline driver's
// access-timeout check.
func (p *Publisher) LastAccessTick() int64 {
	var latest int64
	for _, s := range p.slots {
		if t := s.ring.lastAccess(); t > latest {
			latest = t
		}
	}
	return latest
}

func endpointName(cfg Config, index int) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf(`\\.\pipe\tsmemseg_%s%02d`, cfg.SegName, index)
	}
	return fmt.Sprintf("%s/tsmemseg_%s%02d.fifo", cfg.FifoDirectory, cfg.SegName, index)
}
