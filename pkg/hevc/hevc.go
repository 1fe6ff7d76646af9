// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

var NaluTypeMapping = map[uint8]string{
	NaluTypeSliceTrailR: "SLICE",
	NaluTypeSliceIdrWRadl: "IDR",
	NaluTypeSliceIdrNLp: "IDR",
	NaluTypeVps:          "VPS",
	NaluTypeSps:          "SPS",
	NaluTypePps:          "PPS",
	NaluTypeSei:          "SEI",
	NaluTypeSeiSuffix:    "SEI",
}

const (
	NaluTypeSliceTrailR uint8 = 1

	// BLA/CRA/IDR: every nal_unit_type from 16 through 23 is an IRAP
	// (intra random access point) per ITU-T H.265 Table 7-1.
	NaluTypeBlaWLp       uint8 = 16
	NaluTypeBlaWRadl     uint8 = 17
	NaluTypeBlaNLp       uint8 = 18
	NaluTypeSliceIdrWRadl uint8 = 19
	NaluTypeSliceIdrNLp  uint8 = 20
	NaluTypeCraNut       uint8 = 21
	NaluTypeRsvIrapVcl22 uint8 = 22
	NaluTypeRsvIrapVcl23 uint8 = 23

	NaluTypeVps       uint8 = 32
	NaluTypeSps       uint8 = 33
	NaluTypePps       uint8 = 34
	NaluTypeAud       uint8 = 35
	NaluTypeSei       uint8 = 39
	NaluTypeSeiSuffix uint8 = 40
)

// CalcNaluType extracts nal_unit_type (6 bits in the middle of the first
// NAL header byte: 0nnnnnn0).
func CalcNaluType(nalu []byte) uint8 {
	return (nalu[0] & 0x7e) >> 1
}

// IsIrapNalu reports whether a NAL unit's type falls in the IRAP range
// 16..23, the same test mp4fragmenter.cpp's AddVideoPes applies before
// marking a video sample as a key frame.
func IsIrapNalu(naluType uint8) bool {
	return naluType >= NaluTypeBlaWLp && naluType <= NaluTypeRsvIrapVcl23
}

func CalcNaluTypeReadable(nalu []byte) string {
	b, ok := NaluTypeMapping[CalcNaluType(nalu)]
	if !ok {
		return "unknown"
	}
	return b
}
