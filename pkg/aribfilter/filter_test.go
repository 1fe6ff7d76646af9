// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package aribfilter

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestNewFilter_AlwaysPassesThrough(t *testing.T) {
	packets := []byte{0x47, 0x01, 0x02, 0x03}
	for _, flags := range []int{0, 1, 3} {
		f := NewFilter(flags)
		assert.Equal(t, packets, f.Filter(packets))
	}
}
