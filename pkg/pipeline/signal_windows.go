// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build windows

package pipeline

import (
	"os"
	"os/signal"

	"github.com/memseg/tsmemseg/pkg/base"
)

// installFatalSignalHandler is the Windows counterpart of signal_unix.go's
// unlink-then-re-raise handler. Windows has no SIGHUP/re-raise-with-default
// disposition equivalent for os.Interrupt, so this runs cleanup then exits
// directly -- the exit code itself, rather than a re-raised signal, is what
// tells a Windows service manager the process died on Ctrl-C/Ctrl-Break.
func installFatalSignalHandler(cleanup func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		s := <-c
		base.Log.Infof("pipeline: recv fatal signal. s=%+v", s)
		cleanup()
		os.Exit(1)
	}()
}
