// Copyright 2021, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"errors"
)

// ----- 通用的 ---------------------------------------------------------------------------------------------------------

var (
	ErrShortBuffer = errors.New("tsmemseg: buffer too short")
)

// ----- pkg/bits --------------------------------------------------------------------------------------------------

var (
	ErrExpGolombOverrun = errors.New("tsmemseg.bits: exp-golomb read ran past bit budget")
)

// ----- pkg/mpegts ------------------------------------------------------------------------------------------------

var (
	ErrBadSyncByte  = errors.New("tsmemseg.mpegts: packet does not start with sync byte 0x47")
	ErrShortPacket  = errors.New("tsmemseg.mpegts: packet shorter than 188 bytes")
	ErrBadPsiSyntax = errors.New("tsmemseg.mpegts: malformed PSI section")
)

// ----- pkg/avc / pkg/hevc ----------------------------------------------------------------------------------------

var (
	ErrAvc  = errors.New("tsmemseg.avc: malformed AVC parameter set")
	ErrHevc = errors.New("tsmemseg.hevc: malformed HEVC parameter set")
)

// ----- pkg/aac -----------------------------------------------------------------------------------------------------

var (
	ErrSamplingFrequencyIndex = errors.New("tsmemseg.aac: invalid sampling frequency index")
	ErrAdtsSyncLost           = errors.New("tsmemseg.aac: adts resync failed")
)

// ----- pkg/fmp4 ------------------------------------------------------------------------------------------------------

var (
	ErrNoCodecYet = errors.New("tsmemseg.fmp4: no parameter set parsed yet, cannot build moov")
)

// ----- pkg/publish ---------------------------------------------------------------------------------------------------

var (
	ErrEndpointCreateFailed = errors.New("tsmemseg.publish: failed to create endpoint")
)

// ----- pkg/pipeline --------------------------------------------------------------------------------------------------

var (
	ErrInvalidArgs = errors.New("tsmemseg.pipeline: invalid command line arguments")
)
