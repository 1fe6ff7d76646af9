// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package publish

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestRing_PublishBeforeWriteLandsInFront(t *testing.T) {
	r := newRing()
	r.publish([]byte("abc"))

	front := r.beginWrite()
	assert.Equal(t, []byte("abc"), front)
}

func TestRing_PublishDuringWriteLandsInBackThenSwaps(t *testing.T) {
	r := newRing()
	r.publish([]byte("first"))

	front := r.beginWrite()
	assert.Equal(t, []byte("first"), front)

	// A publish while a write is in flight must not corrupt the buffer the
	// worker is currently reading from.
	r.publish([]byte("second"))
	assert.Equal(t, []byte("first"), front)

	r.endWrite()

	next := r.beginWrite()
	assert.Equal(t, []byte("second"), next)
}

func TestRing_BeginWriteOnEmptyRingReturnsNil(t *testing.T) {
	r := newRing()
	assert.Equal(t, true, r.beginWrite() == nil)
}

func TestRing_TouchAccessRecordsNonZeroTick(t *testing.T) {
	r := newRing()
	assert.Equal(t, int64(0), r.lastAccess())
	r.touchAccess()
	assert.Equal(t, false, r.lastAccess() == 0)
}
