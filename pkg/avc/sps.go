// Copyright 2019, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/memseg/tsmemseg/pkg/base"
	"github.com/memseg/tsmemseg/pkg/bits"
)

var ErrAvc = base.ErrAvc

// profileHasChromaInfo lists the AVC profile_idc values whose SPS carries
// chroma_format_idc / bit-depth / scaling-list fields, per ITU-T H.264
// 7.3.2.1.1. 100=High, 110=High10, 122=High 4:2:2, 244=High 4:4:4
// Predictive, 44=CAVLC 4:4:4, 83/86=Scalable High/High Intra,
// 118/128=Multiview/Stereo High, 138/139=Multiview Depth High/Enhanced,
// 134=MFC High.
var profileHasChromaInfo = map[uint32]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true, 139: true, 134: true,
}

// aspectRatioSarW/H hold the 16 explicit aspect_ratio_idc entries defined
// by Table E-1 (index 0 is unused/"unspecified"); idc 255 means the SAR
// is carried explicitly as two 16-bit fields instead.
var aspectRatioSarW = [17]int{1, 1, 12, 10, 16, 40, 24, 20, 32, 80, 18, 15, 64, 160, 4, 3, 2}
var aspectRatioSarH = [17]int{1, 1, 11, 11, 11, 33, 11, 11, 11, 33, 11, 11, 33, 99, 3, 2, 1}

// Sps holds the subset of an AVC sequence parameter set needed to derive
// coded picture dimensions and sample aspect ratio for an avcC box.
type Sps struct {
	ProfileIdc uint32
	LevelIdc   uint32

	ChromaFormatIdc     uint32
	BitDepthLumaMinus8   uint32
	BitDepthChromaMinus8 uint32

	PicWidthInMbsMinusOne      uint32
	PicHeightInMapUnitsMinusOne uint32
	FrameMbsOnlyFlag           uint32

	FrameCropLeftOffset   uint32
	FrameCropRightOffset  uint32
	FrameCropTopOffset    uint32
	FrameCropBottomOffset uint32

	CodecWidth  int
	CodecHeight int
	SarWidth    int
	SarHeight   int
}

// ParseSps parses an EBSP-encoded AVC SPS NAL unit payload (start-code
// and nal_unit_header byte already stripped) into width/height/SAR,
// following ITU-T H.264 7.3.2.1.1 and Annex E.2.1 exactly as
// mp4fragmenter.cpp's ParseSps does -- including the same
// profile-gated chroma/bit-depth/scaling-list fields and the same
// 16-entry SAR lookup table.
func ParseSps(ebspSps []byte) (Sps, error) {
	var sps Sps
	rbsp := bits.EbspToRbsp(ebspSps)
	br := nazabits.NewBitReader(rbsp)

	profileIdc, err := br.ReadBits8(8)
	if err != nil {
		return sps, ErrAvc
	}
	sps.ProfileIdc = uint32(profileIdc)
	if _, err = br.ReadBits8(8); err != nil { // constraint flags + reserved
		return sps, ErrAvc
	}
	levelIdc, err := br.ReadBits8(8)
	if err != nil {
		return sps, ErrAvc
	}
	sps.LevelIdc = uint32(levelIdc)

	if _, err = br.ReadGolomb(); err != nil { // seq_parameter_set_id
		return sps, ErrAvc
	}

	sps.ChromaFormatIdc = 1
	if profileHasChromaInfo[sps.ProfileIdc] {
		if sps.ChromaFormatIdc, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
		if sps.ChromaFormatIdc == 3 {
			if _, err = br.ReadBits8(1); err != nil { // separate_colour_plane_flag
				return sps, ErrAvc
			}
		}
		if sps.BitDepthLumaMinus8, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
		if sps.BitDepthChromaMinus8, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
		if _, err = br.ReadBits8(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return sps, ErrAvc
		}
		seqScalingMatrixPresent, err2 := br.ReadBits8(1)
		if err2 != nil {
			return sps, ErrAvc
		}
		if seqScalingMatrixPresent == 1 {
			count := 8
			if sps.ChromaFormatIdc == 3 {
				count = 12
			}
			for i := 0; i < count; i++ {
				present, e := br.ReadBits8(1)
				if e != nil {
					return sps, ErrAvc
				}
				if present == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := skipScalingList(&br, size); err != nil {
						return sps, ErrAvc
					}
				}
			}
		}
	}

	if _, err = br.ReadGolomb(); err != nil { // log2_max_frame_num_minus4
		return sps, ErrAvc
	}
	picOrderCntType, err := br.ReadGolomb()
	if err != nil {
		return sps, ErrAvc
	}
	if picOrderCntType == 0 {
		if _, err = br.ReadGolomb(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return sps, ErrAvc
		}
	} else if picOrderCntType == 1 {
		if _, err = br.ReadBits8(1); err != nil { // delta_pic_order_always_zero_flag
			return sps, ErrAvc
		}
		if _, err = bits.ReadSe(&br); err != nil { // offset_for_non_ref_pic
			return sps, ErrAvc
		}
		if _, err = bits.ReadSe(&br); err != nil { // offset_for_top_to_bottom_field
			return sps, ErrAvc
		}
		numRefFramesInCycle, err2 := br.ReadGolomb()
		if err2 != nil {
			return sps, ErrAvc
		}
		for i := uint32(0); i < numRefFramesInCycle; i++ {
			if _, err = bits.ReadSe(&br); err != nil {
				return sps, ErrAvc
			}
		}
	}

	if _, err = br.ReadGolomb(); err != nil { // max_num_ref_frames
		return sps, ErrAvc
	}
	if _, err = br.ReadBits8(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return sps, ErrAvc
	}
	if sps.PicWidthInMbsMinusOne, err = br.ReadGolomb(); err != nil {
		return sps, ErrAvc
	}
	if sps.PicHeightInMapUnitsMinusOne, err = br.ReadGolomb(); err != nil {
		return sps, ErrAvc
	}
	frameMbsOnly, err := br.ReadBits8(1)
	if err != nil {
		return sps, ErrAvc
	}
	sps.FrameMbsOnlyFlag = uint32(frameMbsOnly)
	if sps.FrameMbsOnlyFlag == 0 {
		if _, err = br.ReadBits8(1); err != nil { // mb_adaptive_frame_field_flag
			return sps, ErrAvc
		}
	}
	if _, err = br.ReadBits8(1); err != nil { // direct_8x8_inference_flag
		return sps, ErrAvc
	}
	frameCropping, err := br.ReadBits8(1)
	if err != nil {
		return sps, ErrAvc
	}
	if frameCropping == 1 {
		if sps.FrameCropLeftOffset, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
		if sps.FrameCropRightOffset, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
		if sps.FrameCropTopOffset, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
		if sps.FrameCropBottomOffset, err = br.ReadGolomb(); err != nil {
			return sps, ErrAvc
		}
	}

	sps.SarWidth, sps.SarHeight = 0, 0
	vuiPresent, _ := br.ReadBits8(1)
	if vuiPresent == 1 {
		parseVui(&br, &sps)
	}

	cropUnitX := uint32(2)
	if sps.ChromaFormatIdc == 0 || sps.ChromaFormatIdc == 3 {
		cropUnitX = 1
	}
	cropUnitY := 2 - sps.FrameMbsOnlyFlag
	if sps.ChromaFormatIdc == 1 {
		cropUnitY *= 2
	}

	width := (sps.PicWidthInMbsMinusOne+1)*16 - cropUnitX*(sps.FrameCropLeftOffset+sps.FrameCropRightOffset)
	height := (2-sps.FrameMbsOnlyFlag)*(sps.PicHeightInMapUnitsMinusOne+1)*16 - cropUnitY*(sps.FrameCropTopOffset+sps.FrameCropBottomOffset)
	sps.CodecWidth = int(width)
	sps.CodecHeight = int(height)

	return sps, nil
}

func skipScalingList(br *nazabits.BitReader, size int) error {
	lastScale, nextScale := 8, 8
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta, err := bits.ReadSe(br)
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

func parseVui(br *nazabits.BitReader, sps *Sps) {
	aspectRatioInfoPresent, _ := br.ReadBits8(1)
	if aspectRatioInfoPresent == 1 {
		aspectRatioIdc, _ := br.ReadBits8(8)
		if aspectRatioIdc == 255 {
			w, _ := br.ReadBits16(16)
			h, _ := br.ReadBits16(16)
			sps.SarWidth, sps.SarHeight = int(w), int(h)
		} else if int(aspectRatioIdc) < len(aspectRatioSarW) {
			sps.SarWidth = aspectRatioSarW[aspectRatioIdc]
			sps.SarHeight = aspectRatioSarH[aspectRatioIdc]
		}
	}
	// overscan/video-signal/chroma-loc/timing/HRD/bitstream-restriction
	// fields beyond sample aspect ratio do not affect moov construction
	// and are left unparsed, same as mp4fragmenter.cpp only consuming
	// what it needs before giving up on the rest of the VUI.
}
