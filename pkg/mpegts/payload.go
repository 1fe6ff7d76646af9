// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package mpegts

// PacketSize is the fixed size of an MPEG-2 TS packet.
const PacketSize = 188

// SyncByte is the byte every TS packet must begin with.
const SyncByte = 0x47

// PayloadOffset returns the offset into a 188-byte TS packet at which its
// payload bytes begin, and the payload's length. adaptation is the 2-bit
// adaptation_field_control value from the packet header (bit 0 set means
// a payload follows; bit 1 set means an adaptation field precedes it).
// Mirrors util.cpp's get_ts_payload_size, generalized to also return the
// offset instead of assuming the caller already knows it.
func PayloadOffset(packet []byte, adaptation uint8) (offset, size int) {
	if adaptation&0x1 == 0 {
		return 0, 0
	}
	if adaptation == 0x3 {
		adaptationLength := int(packet[4])
		if adaptationLength > 183 {
			return 0, 0
		}
		return 5 + adaptationLength, 183 - adaptationLength
	}
	return 4, 184
}
