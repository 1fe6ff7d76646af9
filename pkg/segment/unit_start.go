// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package segment

// unitStart tracks, for one PID, where in the accumulating packet buffer
// its most recent payload-unit-start packet landed, and where the most
// recent one before a key (or before a partial-fragment marker) landed.
// tsmemseg.cpp keeps this as a plain unitStartMap[pid] -> position; the
// extra "before marked key" slot is this repo's LL-HLS partial-fragment
// addition (see segmenter.go's maybeMarkPartial).
type unitStart struct {
	lastStart             int
	beforeKeyStart        int
	beforeMarkedKeyStart  int
}

const noPosition = -1

func newUnitStart() unitStart {
	return unitStart{lastStart: noPosition, beforeKeyStart: noPosition, beforeMarkedKeyStart: noPosition}
}
