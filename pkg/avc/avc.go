// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

var NaluStartCode = []byte{0x0, 0x0, 0x0, 0x1}

var NaluUnitTypeMapping = map[uint8]string{
	1: "SLICE",
	5: "IDR",
	6: "SEI",
	7: "SPS",
	8: "PPS",
	9: "AUD",
}

var SliceTypeMapping = map[uint8]string{
	0: "P",
	1: "B",
	2: "I",
	3: "SP",
	4: "SI",
	5: "P",
	6: "B",
	7: "I",
	8: "SP",
	9: "SI",
}

const (
	NaluUnitTypeSlice    uint8 = 1
	NaluUnitTypeIdrSlice uint8 = 5
	NaluUnitTypeSei      uint8 = 6
	NaluUnitTypeSps      uint8 = 7
	NaluUnitTypePps      uint8 = 8
	NaluUnitTypeAud      uint8 = 9
)

const (
	SliceTypeI uint8 = 2
	SliceTypeSi uint8 = 4
	// additional I/SI codes used by non-IDR slices, per ITU-T H.264 Table 7-6
	SliceTypeI2  uint8 = 7
	SliceTypeSi2 uint8 = 9
)

// IsIntraSliceType reports whether a slice_type value (as read from a
// non-IDR slice header's first ue(v)) indicates an I or SI slice -- the
// two intra-only slice types that a fragmenter should also treat as a
// random access point even though they arrive in nal_unit_type 1
// (non-IDR) NAL units.
func IsIntraSliceType(sliceType uint32) bool {
	switch uint8(sliceType) {
	case SliceTypeI, SliceTypeSi, SliceTypeI2, SliceTypeSi2:
		return true
	}
	return false
}

func CalcNaluType(nalu []byte) uint8 {
	return nalu[0] & 0x1f
}

func CalcNaluTypeReadable(nalu []byte) string {
	t := nalu[0] & 0x1f
	ret, ok := NaluUnitTypeMapping[t]
	if !ok {
		return "unknown"
	}
	return ret
}
