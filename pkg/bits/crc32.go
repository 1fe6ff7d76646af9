// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package bits

// CRC-32/MPEG-2: poly 0x04C11DB7, init 0xFFFFFFFF, no input/output
// reflection, no final xor. This is NOT the same table as hash/crc32's
// IEEE variant (which reflects both poly and data) -- PSI sections carry
// the non-reflected form, so we build our own table instead of delegating
// to the standard library.
var crc32Mpeg2Table [256]uint32

func init() {
	const poly = uint32(0x04C11DB7)
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for b := 0; b < 8; b++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		crc32Mpeg2Table[i] = crc
	}
}

// CRC32Mpeg2 computes the CRC_32 field used by MPEG-2 PSI sections (PAT,
// PMT, ...) over buffer, continuing from a running crc. Callers processing
// a full section from scratch pass 0xFFFFFFFF as the initial crc.
func CRC32Mpeg2(crc uint32, buffer []byte) uint32 {
	for _, b := range buffer {
		crc = (crc << 8) ^ crc32Mpeg2Table[byte(crc>>24)^b]
	}
	return crc
}
