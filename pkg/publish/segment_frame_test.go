// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package publish

import (
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestBuildNullHeaderPacket_LayoutMatchesSpec(t *testing.T) {
	pkt := buildNullHeaderPacket(0x0203a1, true, 0x11223344, true, []int{10, 20, 30})

	assert.Equal(t, tsNullPacketSize, len(pkt))
	assert.Equal(t, segNullHeaderMagic[:], pkt[0:4])
	assert.Equal(t, byte(0xa1), pkt[4])
	assert.Equal(t, byte(0x03), pkt[5])
	assert.Equal(t, byte(0x02), pkt[6])
	assert.Equal(t, byte(1), pkt[7])
	assert.Equal(t, uint32(0x11223344), binary.LittleEndian.Uint32(pkt[8:12]))
	assert.Equal(t, byte(1), pkt[12])

	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(pkt[32:36]))
	assert.Equal(t, uint32(20), binary.LittleEndian.Uint32(pkt[36:40]))
	assert.Equal(t, uint32(30), binary.LittleEndian.Uint32(pkt[40:44]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(pkt[44:48])) // zero terminator
}

func TestBuildSegmentFrame_UnixCarriesSignatureBlock(t *testing.T) {
	frame := buildSegmentFrame("cam1", 5, false, 3, false, nil, []byte("body"))

	if runtime.GOOS == "windows" {
		assert.Equal(t, segNullHeaderMagic[:], frame[0:4])
		return
	}
	assert.Equal(t, tsNullPacketSize*2+len("body"), len(frame))
	assert.Equal(t, segNullHeaderUnixSignature[:], frame[0:4])
	assert.Equal(t, "cam1", string(frame[4:8]))
	assert.Equal(t, segNullHeaderMagic[:], frame[tsNullPacketSize:tsNullPacketSize+4])
	assert.Equal(t, []byte("body"), frame[len(frame)-4:])
}
