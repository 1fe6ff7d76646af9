// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package pipeline

import (
	"context"
	"time"

	"github.com/memseg/tsmemseg/pkg/mpegts"
)

// pacingSleepQuantum is spec.md §5's 10ms pacing sleep granularity.
const pacingSleepQuantum = 10 * time.Millisecond

// fillWindow is how much media time is let through at fillReadRatePercent
// before throttle falls back to the steady-state readRatePercent -- long
// enough that a reader's own buffer has something to work with before
// real-time pacing kicks in. Not specified numerically by spec.md; chosen
// as a round number and recorded as an open-question resolution in
// DESIGN.md.
const fillWindow = 2 * time.Second

// pacer implements spec.md §4.7/§5's "read-rate pacing against media PTS":
// the driver calls throttle before each read, and it sleeps in
// pacingSleepQuantum steps until wall-clock elapsed time has caught up to
// where the stream's own PTS says playback should be by now.
type pacer struct {
	readRatePercent     int
	fillReadRatePercent int

	started         bool
	wallStart       time.Time
	mediaStartTicks int64
}

func newPacer(readRatePercent, fillReadRatePercent int) *pacer {
	return &pacer{readRatePercent: readRatePercent, fillReadRatePercent: fillReadRatePercent}
}

// throttle blocks until it's time to read the next chunk, or ctx is
// cancelled. A readRatePercent of 0 disables pacing entirely (read as fast
// as the input allows), matching spec.md §6's "-r ... 0 or 20..500".
func (p *pacer) throttle(ctx context.Context, currentPtsTicks uint64) {
	if p.readRatePercent == 0 {
		return
	}
	if !p.started {
		p.started = true
		p.mediaStartTicks = int64(currentPtsTicks)
		p.wallStart = time.Now()
		return
	}

	mediaElapsed := time.Duration(int64(currentPtsTicks)-p.mediaStartTicks) * time.Second / time.Duration(mpegts.PtsClockHz)
	if mediaElapsed < 0 {
		mediaElapsed = 0
	}

	rate := p.readRatePercent
	if mediaElapsed < fillWindow && p.fillReadRatePercent > 0 {
		rate = p.fillReadRatePercent
	}
	targetWallElapsed := mediaElapsed * 100 / time.Duration(rate)

	for {
		wallElapsed := time.Since(p.wallStart)
		if wallElapsed >= targetWallElapsed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pacingSleepQuantum):
		}
	}
}
