// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"flag"
	"fmt"
	"regexp"
	"time"

	"github.com/memseg/tsmemseg/pkg/base"
	"github.com/memseg/tsmemseg/pkg/pipeline"
)

var segNamePattern = regexp.MustCompile(`^[0-9A-Za-z_]{1,65}$`)

// cliConfig is the raw, unvalidated set of flags spec.md §6 defines, one
// field per flag.
type cliConfig struct {
	isMp4          bool
	initDuration   float64
	targetDuration float64
	partialTarget  float64
	accessTimeout  float64
	closingCommand string
	readRatePercent     int
	fillReadRatePercent int
	fillReadRateSet     bool
	segmentCount   int
	maxKBytes      int
	fifoDirectory  string
	aribFlags      int
	segName        string
}

// parseFlags registers every flag from spec.md §6 and parses args,
// following lal's app/*/main.go convention of a package-level parseFlag
// helper built on the standard flag package.
func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("tsmemseg", flag.ContinueOnError)

	c := &cliConfig{}
	fs.BoolVar(&c.isMp4, "4", false, "enable fMP4 fragmented output")
	fs.Float64Var(&c.initDuration, "i", 1, "init segment duration in seconds (0..60)")
	fs.Float64Var(&c.targetDuration, "t", 2, "target segment duration in seconds (0..60)")
	fs.Float64Var(&c.partialTarget, "p", 0.5, "partial fragment target duration in seconds (0..60)")
	fs.Float64Var(&c.accessTimeout, "a", 10, "access timeout in seconds (0..600)")
	fs.StringVar(&c.closingCommand, "c", "", "shell command to run on shutdown")
	fs.IntVar(&c.readRatePercent, "r", 0, "read rate percent (0 or 20..500)")
	fs.IntVar(&c.fillReadRatePercent, "f", 0, "fill read rate percent (0 or 20..750, default 1.5x -r)")
	fs.IntVar(&c.segmentCount, "s", 8, "number of segment slots (2..99)")
	fs.IntVar(&c.maxKBytes, "m", 4096, "max KiB per segment (32..32768)")
	fs.StringVar(&c.fifoDirectory, "g", ".", "directory for FIFO endpoints (Unix only)")
	fs.IntVar(&c.aribFlags, "d", 0, "ARIB caption flags (0, 1, or 3)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c.fillReadRateSet = isFlagSet(fs, "f")

	if fs.NArg() != 1 {
		return nil, fmt.Errorf("%w: expected exactly one positional seg_name argument", base.ErrInvalidArgs)
	}
	c.segName = fs.Arg(0)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// validate applies every range check spec.md §6 lists, plus the seg_name
// pattern (or the "-" stdout-passthrough escape hatch).
func (c *cliConfig) validate() error {
	if c.segName != "-" && !segNamePattern.MatchString(c.segName) {
		return fmt.Errorf("%w: seg_name must match [0-9A-Za-z_]{1,65} or be \"-\"", base.ErrInvalidArgs)
	}
	if err := inRange("i", c.initDuration, 0, 60); err != nil {
		return err
	}
	if err := inRange("t", c.targetDuration, 0, 60); err != nil {
		return err
	}
	if err := inRange("p", c.partialTarget, 0, 60); err != nil {
		return err
	}
	if err := inRange("a", c.accessTimeout, 0, 600); err != nil {
		return err
	}
	if c.readRatePercent != 0 {
		if err := inRange("r", float64(c.readRatePercent), 20, 500); err != nil {
			return err
		}
	}
	if c.fillReadRatePercent != 0 {
		if err := inRange("f", float64(c.fillReadRatePercent), 20, 750); err != nil {
			return err
		}
	}
	if err := inRange("s", float64(c.segmentCount), 2, 99); err != nil {
		return err
	}
	if err := inRange("m", float64(c.maxKBytes), 32, 32768); err != nil {
		return err
	}
	if c.aribFlags != 0 && c.aribFlags != 1 && c.aribFlags != 3 {
		return fmt.Errorf("%w: -d must be 0, 1, or 3", base.ErrInvalidArgs)
	}
	return nil
}

func inRange(flagName string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: -%s must be within [%v, %v], got %v", base.ErrInvalidArgs, flagName, lo, hi, v)
	}
	return nil
}

// stdoutPassthrough reports whether seg_name selects the "-" special case,
// bypassing Publisher/FIFO setup entirely per spec.md §6.
func (c *cliConfig) stdoutPassthrough() bool {
	return c.segName == "-"
}

// toPipelineConfig converts validated CLI seconds/percentages into
// pipeline.Config's durations and defaults fill_read_rate_percent to
// 1.5x read_rate_percent when -f wasn't given, per spec.md §6.
func (c *cliConfig) toPipelineConfig() pipeline.Config {
	fillRate := c.fillReadRatePercent
	if !c.fillReadRateSet && c.readRatePercent != 0 {
		fillRate = c.readRatePercent * 3 / 2
	}
	return pipeline.Config{
		SegName:             c.segName,
		FifoDirectory:       c.fifoDirectory,
		IsMp4:               c.isMp4,
		InitDuration:        toDuration(c.initDuration),
		TargetDuration:      toDuration(c.targetDuration),
		PartialTarget:       toDuration(c.partialTarget),
		AccessTimeout:       toDuration(c.accessTimeout),
		ClosingCommand:      c.closingCommand,
		ReadRatePercent:     c.readRatePercent,
		FillReadRatePercent: fillRate,
		SegmentCount:        c.segmentCount,
		MaxKBytes:           c.maxKBytes,
		AribFlags:           c.aribFlags,
	}
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
