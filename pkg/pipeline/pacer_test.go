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
	"testing"
	"time"

	"github.com/q191201771/naza/pkg/assert"

	"github.com/memseg/tsmemseg/pkg/mpegts"
)

func TestPacer_DisabledWhenReadRateZero(t *testing.T) {
	p := newPacer(0, 0)
	start := time.Now()
	p.throttle(context.Background(), uint64(10*mpegts.PtsClockHz))
	assert.Equal(t, true, time.Since(start) < 50*time.Millisecond)
}

func TestPacer_FirstCallOnlyAnchors(t *testing.T) {
	p := newPacer(100, 0)
	start := time.Now()
	p.throttle(context.Background(), 0)
	assert.Equal(t, true, time.Since(start) < 50*time.Millisecond)
	assert.Equal(t, true, p.started)
}

func TestPacer_CancelledContextReturnsPromptly(t *testing.T) {
	p := newPacer(100, 0)
	p.throttle(context.Background(), 0) // anchor at ticks=0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	// A huge PTS jump would otherwise demand a long sleep; a cancelled
	// context must cut that short instead of blocking until caught up.
	p.throttle(ctx, uint64(60*mpegts.PtsClockHz))
	assert.Equal(t, true, time.Since(start) < 200*time.Millisecond)
}
