// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Command tsmemseg reads an MPEG-2 Transport Stream on stdin and republishes
// it as a rolling window of HLS/LL-HLS segments over named pipes, following
// original_source/tsmemseg.cpp's command-line contract.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/memseg/tsmemseg/pkg/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// run contains everything main would otherwise do inline, so tests can
// drive it with an in-memory reader/writer instead of the real stdio pair.
func run(args []string, stdin io.Reader, stdout io.Writer) int {
	cli, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "tsmemseg: %v\n", err)
		return 1
	}

	if cli.stdoutPassthrough() {
		// spec.md §6's "-" positional argument: skip Publisher/FIFO setup
		// entirely and just relay the filtered TS bytes, useful for piping
		// into a downstream player without ever touching disk.
		if _, err := io.Copy(stdout, stdin); err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintf(os.Stderr, "tsmemseg: stdout passthrough failed. err=%v\n", err)
			return 1
		}
		return 0
	}

	driver, err := pipeline.NewDriver(cli.toPipelineConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "tsmemseg: %v\n", err)
		return 1
	}

	if err := driver.Run(context.Background(), stdin); err != nil {
		fmt.Fprintf(os.Stderr, "tsmemseg: %v\n", err)
		return 1
	}

	return 0
}
