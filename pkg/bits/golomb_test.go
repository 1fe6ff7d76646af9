// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package bits

import (
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestEbspToRbsp_StripsEmulationPreventionByte(t *testing.T) {
	ebsp := []byte{0x00, 0x00, 0x03, 0x01, 0xff}
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0xff}, EbspToRbsp(ebsp))
}

func TestEbspToRbsp_LeavesRealRbspByteAloneWhenFollowerAboveThree(t *testing.T) {
	// 0x00 0x00 0x03 followed by a byte > 3 is legitimate RBSP content, not
	// an emulation-prevention sequence -- must not be stripped.
	ebsp := []byte{0x00, 0x00, 0x03, 0x04}
	assert.Equal(t, ebsp, EbspToRbsp(ebsp))
}

func TestEbspToRbsp_RoundTripIsIdentity(t *testing.T) {
	cases := [][]byte{
		{0x00, 0x00, 0x03, 0x00},
		{0x00, 0x00, 0x03, 0x01},
		{0x00, 0x00, 0x03, 0x02},
		{0x00, 0x00, 0x03, 0x03},
		{0x67, 0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x02, 0xaa},
		{0x01, 0x02, 0x03, 0x04, 0x05},
	}
	for _, ebsp := range cases {
		rbsp := EbspToRbsp(ebsp)
		assert.Equal(t, ebsp, RbspToEbsp(rbsp))
	}
}
