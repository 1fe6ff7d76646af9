// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"github.com/q191201771/naza/pkg/nazabits"

	"github.com/memseg/tsmemseg/pkg/bits"
)

// Pps holds the one derived field an hvcC box needs out of the picture
// parameter set: parallelism_type, per ITU-T H.265 Annex A.3's informal
// derivation (also implemented literally in mp4fragmenter.cpp's
// ParseH265Pps):
//
//	tiles_enabled_flag  entropy_coding_sync_enabled_flag  parallelism_type
//	0                   0                                 1 (slices)
//	0                   1                                 3 (wavefront)
//	1                   0                                 2 (tiles)
//	1                   1                                 0 (mixed, unknown)
type Pps struct {
	ParallelismType int
}

// ParsePps parses an EBSP-encoded HEVC PPS NAL unit payload (the 2-byte
// nal_unit_header already stripped).
func ParsePps(ebspPps []byte) (Pps, error) {
	var pps Pps
	rbsp := bits.EbspToRbsp(ebspPps)
	br := nazabits.NewBitReader(rbsp)

	if _, err := br.ReadGolomb(); err != nil { // pps_pic_parameter_set_id
		return pps, ErrHevc
	}
	if _, err := br.ReadGolomb(); err != nil { // pps_seq_parameter_set_id
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // dependent_slice_segments_enabled_flag
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // output_flag_present_flag
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(3); err != nil { // num_extra_slice_header_bits
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // sign_data_hiding_enabled_flag
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // cabac_init_present_flag
		return pps, ErrHevc
	}
	if _, err := br.ReadGolomb(); err != nil { // num_ref_idx_l0_default_active_minus1
		return pps, ErrHevc
	}
	if _, err := br.ReadGolomb(); err != nil { // num_ref_idx_l1_default_active_minus1
		return pps, ErrHevc
	}
	if _, err := bits.ReadSe(&br); err != nil { // init_qp_minus26
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // constrained_intra_pred_flag
		return pps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // transform_skip_enabled_flag
		return pps, ErrHevc
	}
	cuQpDeltaEnabled, err := br.ReadBits8(1)
	if err != nil {
		return pps, ErrHevc
	}
	if cuQpDeltaEnabled == 1 {
		if _, err = br.ReadGolomb(); err != nil { // diff_cu_qp_delta_depth
			return pps, ErrHevc
		}
	}
	if _, err = bits.ReadSe(&br); err != nil { // pps_cb_qp_offset
		return pps, ErrHevc
	}
	if _, err = bits.ReadSe(&br); err != nil { // pps_cr_qp_offset
		return pps, ErrHevc
	}
	if _, err = br.ReadBits8(1); err != nil { // pps_slice_chroma_qp_offsets_present_flag
		return pps, ErrHevc
	}
	if _, err = br.ReadBits8(1); err != nil { // weighted_pred_flag
		return pps, ErrHevc
	}
	if _, err = br.ReadBits8(1); err != nil { // weighted_bipred_flag
		return pps, ErrHevc
	}
	if _, err = br.ReadBits8(1); err != nil { // transquant_bypass_enabled_flag
		return pps, ErrHevc
	}
	tilesEnabled, err := br.ReadBits8(1)
	if err != nil {
		return pps, ErrHevc
	}
	entropyCodingSync, err := br.ReadBits8(1)
	if err != nil {
		return pps, ErrHevc
	}

	switch {
	case entropyCodingSync == 1 && tilesEnabled == 0:
		pps.ParallelismType = 3 // wavefront
	case entropyCodingSync == 1 && tilesEnabled == 1:
		pps.ParallelismType = 0 // mixed, both tools enabled
	case entropyCodingSync == 0 && tilesEnabled == 1:
		pps.ParallelismType = 2 // tiles
	default: // entropyCodingSync == 0 && tilesEnabled == 0
		pps.ParallelismType = 1 // slices
	}

	return pps, nil
}
