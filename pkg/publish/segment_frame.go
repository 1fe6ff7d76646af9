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
)

// segNullHeaderUnixSignature is spec.md §6's Unix-only leading 188-byte
// block's first 4 bytes: a conventional MPEG-TS null packet (PID 0x1FFF).
var segNullHeaderUnixSignature = [4]byte{0x47, 0x1f, 0xff, 0x10}

// segNullHeaderMagic is the mandatory 188-byte TS-NULL header packet's
// first 4 bytes every segment frame carries, per spec.md §6.
var segNullHeaderMagic = [4]byte{0x47, 0x01, 0xff, 0x10}

const tsNullPacketSize = 188

// buildSegmentFrame assembles one complete segment frame: the Unix-only
// signature block, the mandatory TS-NULL header packet carrying
// segment_number/unavailable/count/is_mp4/fragment-size array, and body
// (raw TS packets in TS mode, [emsg*]moof mdat runs in MP4 mode).
func buildSegmentFrame(segName string, segmentNumber uint32, unavailable bool, countOfUnitsOrBytes uint32, isMp4 bool, fragmentSizes []int, body []byte) []byte {
	var frame []byte
	if runtime.GOOS != "windows" {
		frame = append(frame, segmentSignatureBlock(segName)...)
	}
	frame = append(frame, buildNullHeaderPacket(segmentNumber, unavailable, countOfUnitsOrBytes, isMp4, fragmentSizes)...)
	frame = append(frame, body...)
	return frame
}

func segmentSignatureBlock(segName string) []byte {
	buf := make([]byte, tsNullPacketSize)
	copy(buf, segNullHeaderUnixSignature[:])
	copy(buf[4:], segName)
	return buf
}

// buildNullHeaderPacket lays out the mandatory 188-byte header per
// spec.md §6: bytes 0..3 magic, [4..6] segment_number (3-byte LE),
// [7] unavailable?, [8..11] count (LE), [12] is_mp4?, [32..] zero-terminated
// array of 4-byte LE fragment sizes, rest zero.
func buildNullHeaderPacket(segmentNumber uint32, unavailable bool, countOfUnitsOrBytes uint32, isMp4 bool, fragmentSizes []int) []byte {
	buf := make([]byte, tsNullPacketSize)
	copy(buf, segNullHeaderMagic[:])
	buf[4] = byte(segmentNumber)
	buf[5] = byte(segmentNumber >> 8)
	buf[6] = byte(segmentNumber >> 16)
	if unavailable {
		buf[7] = 1
	}
	binary.LittleEndian.PutUint32(buf[8:12], countOfUnitsOrBytes)
	if isMp4 {
		buf[12] = 1
	}

	off := 32
	for _, sz := range fragmentSizes {
		if off+4 > tsNullPacketSize-4 { // leave room for the zero terminator
			break
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(sz))
		off += 4
	}
	// buf is already zero-filled, so the terminator and the rest of the
	// packet need no explicit write.
	return buf
}
