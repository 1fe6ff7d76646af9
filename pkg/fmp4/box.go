// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package fmp4 repackages the key-aligned byte runs a Segmenter emits into
// fragmented MP4, grounded in original_source/mp4fragmenter.cpp's
// CMp4Fragmenter: one init segment (ftyp+moov) built once the first video
// parameter sets and/or audio config are known, then one moof+mdat pair per
// emitted run.
package fmp4

import (
	"encoding/binary"
)

// box appends a full ISO/IEC 14496-12 box (4-byte size, 4-byte type, body)
// to buf and returns the result, the way psi.go's PSI builders back-patch a
// length once the body is known -- the size here is just computed up front
// instead, since Go slices make that cheaper than patching in place.
func box(buf []byte, fourcc string, body []byte) []byte {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(8+len(body)))
	copy(hdr[4:8], fourcc)
	buf = append(buf, hdr[:]...)
	buf = append(buf, body...)
	return buf
}

// fullBox is box with the version+flags word ISO/IEC 14496-12 "full boxes"
// (mvhd, tkhd, mdhd, stsd's children, tfhd, tfdt, trun, ...) carry right
// after their type.
func fullBox(buf []byte, fourcc string, version uint8, flags uint32, body []byte) []byte {
	var vf [4]byte
	vf[0] = version
	vf[1] = byte(flags >> 16)
	vf[2] = byte(flags >> 8)
	vf[3] = byte(flags)
	full := append(append([]byte{}, vf[:]...), body...)
	return box(buf, fourcc, full)
}

func u8(v uint8) []byte  { return []byte{v} }
func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}
func u24(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}
func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func cat(chunks ...[]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
