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

func TestFoldFragments_UnderCapIsUnchanged(t *testing.T) {
	durations := make([]int, maxFragmentsPerSlot)
	for i := range durations {
		durations[i] = 500
	}
	got := foldFragments(durations, false)
	assert.Equal(t, maxFragmentsPerSlot, len(got))
	assert.Equal(t, durations, got)
}

func TestFoldFragments_OverCapSumsIntoLast(t *testing.T) {
	durations := make([]int, maxFragmentsPerSlot+3)
	for i := range durations {
		durations[i] = 100
	}
	got := foldFragments(durations, false)

	assert.Equal(t, maxFragmentsPerSlot, len(got))
	for i := 0; i < maxFragmentsPerSlot-1; i++ {
		assert.Equal(t, 100, got[i])
	}
	// the 20th entry absorbs its own duration plus the 3 folded ones.
	assert.Equal(t, 100+3*100, got[maxFragmentsPerSlot-1])
}

func TestFoldFragments_IncompleteHidesFoldedEntry(t *testing.T) {
	durations := make([]int, maxFragmentsPerSlot+1)
	for i := range durations {
		durations[i] = 250
	}
	got := foldFragments(durations, true)
	assert.Equal(t, maxFragmentsPerSlot-1, len(got))
}

func TestListingSignaturePrefix_PadsToSixtyFourBytes(t *testing.T) {
	prefix := listingSignaturePrefix("mystream")
	assert.Equal(t, 64, len(prefix))
	assert.Equal(t, "mystream", string(prefix[:8]))
	for _, b := range prefix[8:] {
		assert.Equal(t, byte(0), b)
	}
}
