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

	"github.com/memseg/tsmemseg/pkg/base"
	"github.com/memseg/tsmemseg/pkg/bits"
)

var ErrHevc = base.ErrHevc

// Vps holds the two VPS fields an hvcC box needs: the temporal
// sub-layering depth and whether temporal IDs nest, following
// mp4fragmenter.cpp's ParseVps.
type Vps struct {
	NumTemporalLayers     int
	TemporalIdNestingFlag bool
}

// ParseVps parses an EBSP-encoded HEVC VPS NAL unit payload (the 2-byte
// nal_unit_header already stripped).
func ParseVps(ebspVps []byte) (Vps, error) {
	var vps Vps
	rbsp := bits.EbspToRbsp(ebspVps)
	br := nazabits.NewBitReader(rbsp)

	if _, err := br.ReadBits8(4); err != nil { // vps_video_parameter_set_id
		return vps, ErrHevc
	}
	if _, err := br.ReadBits8(2); err != nil { // reserved
		return vps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // vps_base_layer_internal_flag
		return vps, ErrHevc
	}
	if _, err := br.ReadBits8(1); err != nil { // vps_base_layer_available_flag
		return vps, ErrHevc
	}
	if _, err := br.ReadBits8(6); err != nil { // vps_max_layers_minus1
		return vps, ErrHevc
	}
	maxSubLayersMinus1, err := br.ReadBits8(3)
	if err != nil {
		return vps, ErrHevc
	}
	vps.NumTemporalLayers = int(maxSubLayersMinus1) + 1
	nesting, err := br.ReadBits8(1)
	if err != nil {
		return vps, ErrHevc
	}
	vps.TemporalIdNestingFlag = nesting == 1
	return vps, nil
}
