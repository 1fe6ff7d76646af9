// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "github.com/q191201771/naza/pkg/unique"

const (
	UKPreSegmenter = "SEG"
	UKPreFragmenter = "FRAG"
	UKPrePublisher  = "PUB"
	UKPrePipeline   = "PIPE"
)

func GenUKSegmenter() string {
	return siUKSegmenter.GenUniqueKey()
}

func GenUKFragmenter() string {
	return siUKFragmenter.GenUniqueKey()
}

func GenUKPublisher() string {
	return siUKPublisher.GenUniqueKey()
}

func GenUKPipeline() string {
	return siUKPipeline.GenUniqueKey()
}

var (
	siUKSegmenter  *unique.SingleGenerator
	siUKFragmenter *unique.SingleGenerator
	siUKPublisher  *unique.SingleGenerator
	siUKPipeline   *unique.SingleGenerator
)

func init() {
	siUKSegmenter = unique.NewSingleGenerator(UKPreSegmenter)
	siUKFragmenter = unique.NewSingleGenerator(UKPreFragmenter)
	siUKPublisher = unique.NewSingleGenerator(UKPrePublisher)
	siUKPipeline = unique.NewSingleGenerator(UKPrePipeline)
}
