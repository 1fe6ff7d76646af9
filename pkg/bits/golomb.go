// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package bits

import (
	"github.com/q191201771/naza/pkg/nazabits"
)

// ReadSe reads a signed Exp-Golomb coded value (se(v)) per ISO/IEC
// 14496-10 9.1.1: se(v) = (-1)^(k+1) * ceil(k/2) where k = ue(v).
// naza's BitReader already implements ue(v) as ReadGolomb; se(v) just
// folds the sign back in.
func ReadSe(br *nazabits.BitReader) (int, error) {
	k, err := br.ReadGolomb()
	if err != nil {
		return 0, err
	}
	v := int((k + 1) >> 1)
	if k&0x01 == 0 {
		v = -v
	}
	return v, nil
}

// EbspToRbsp strips emulation-prevention bytes (the 0x03 in any
// 0x00 0x00 0x03 sequence whose following byte is <= 3) from an Annex-B
// NAL payload, yielding the raw byte sequence payload (RBSP) that
// parameter-set bitstream parsing expects. The byte-after-the-0x03 check
// is required -- ISO/IEC 14496-10 7.4.1 only inserts the emulation
// prevention byte ahead of 0x00/0x01/0x02/0x03, so a 0x03 followed by
// anything larger is real RBSP content, not an emulation-prevention byte.
func EbspToRbsp(ebsp []byte) []byte {
	rbsp := make([]byte, 0, len(ebsp))
	zeroRun := 0
	for i, b := range ebsp {
		if zeroRun >= 2 && b == 0x03 && i+1 < len(ebsp) && ebsp[i+1] <= 0x03 {
			zeroRun = 0
			continue
		}
		if b == 0x00 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		rbsp = append(rbsp, b)
	}
	return rbsp
}

// RbspToEbsp is EbspToRbsp's inverse: it inserts an emulation-prevention
// 0x03 byte ahead of any byte <= 0x03 that would otherwise follow two
// consecutive zero bytes, the same condition EbspToRbsp checks before
// stripping one back out.
func RbspToEbsp(rbsp []byte) []byte {
	ebsp := make([]byte, 0, len(rbsp)+len(rbsp)/2+1)
	zeroRun := 0
	for _, b := range rbsp {
		if zeroRun >= 2 && b <= 0x03 {
			ebsp = append(ebsp, 0x03)
			zeroRun = 0
		}
		ebsp = append(ebsp, b)
		if b == 0x00 {
			zeroRun++
		} else {
			zeroRun = 0
		}
	}
	return ebsp
}

// SplitAnnexB scans a buffer containing one or more Annex-B NAL units
// (each preceded by a 00 00 01 or 00 00 00 01 start code) and returns the
// payload of each NAL unit, start code stripped, trailing zero bytes
// trimmed.
func SplitAnnexB(buf []byte) [][]byte {
	var starts []int
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			starts = append(starts, i+3)
		}
	}
	if len(starts) == 0 {
		return nil
	}
	var nalus [][]byte
	for i, start := range starts {
		end := len(buf)
		if i+1 < len(starts) {
			end = starts[i+1] - 3
			// a 4-byte start code leaves one extra 0x00 before the next one
			if end > start && buf[end-1] == 0 {
				end--
			}
		}
		for end > start && buf[end-1] == 0 {
			end--
		}
		if end > start {
			nalus = append(nalus, buf[start:end])
		}
	}
	return nalus
}
