// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

import (
	"encoding/binary"
	"testing"

	"github.com/q191201771/naza/pkg/assert"
)

func TestBox_SizeFieldMatchesLength(t *testing.T) {
	body := []byte("hello, box body")
	b := box(nil, "test", body)

	assert.Equal(t, 8+len(body), len(b))
	assert.Equal(t, uint32(len(b)), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, "test", string(b[4:8]))
	assert.Equal(t, body, b[8:])
}

func TestBox_NestedSizeIsCumulative(t *testing.T) {
	child := box(nil, "chil", []byte{1, 2, 3})
	parent := box(nil, "prnt", child)

	assert.Equal(t, uint32(len(parent)), binary.BigEndian.Uint32(parent[0:4]))
	assert.Equal(t, len(parent), 8+len(child))
}

func TestFullBox_CarriesVersionAndFlags(t *testing.T) {
	b := fullBox(nil, "styp", 1, 0x020304, []byte{0xaa})

	assert.Equal(t, uint32(len(b)), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, "styp", string(b[4:8]))
	assert.Equal(t, uint8(1), b[8])
	assert.Equal(t, []byte{0x02, 0x03, 0x04}, b[9:12])
	assert.Equal(t, byte(0xaa), b[12])
}

func TestUintHelpers_BigEndian(t *testing.T) {
	assert.Equal(t, []byte{0x12}, u8(0x12))
	assert.Equal(t, []byte{0x01, 0x02}, u16(0x0102))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, u24(0x010203))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, u32(0x01020304))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, u64(1))
}

func TestCat_ConcatenatesInOrder(t *testing.T) {
	out := cat([]byte{1}, nil, []byte{2, 3}, []byte{})
	assert.Equal(t, []byte{1, 2, 3}, out)
}
