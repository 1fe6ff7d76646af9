// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build !windows

package pipeline

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/memseg/tsmemseg/pkg/base"
)

// installFatalSignalHandler mirrors pkg/base/signal_unix.go's notify loop
// but adds the re-raise spec.md §7 asks for: unlink every FIFO path via
// cleanup, then restore the signal's default disposition and re-send it to
// ourselves so the process's exit status still reflects the original
// signal, instead of swallowing it the way base.RunSignalHandler does.
func installFatalSignalHandler(cleanup func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-c
		base.Log.Infof("pipeline: recv fatal signal. s=%+v", s)
		cleanup()

		signal.Stop(c)
		sig, ok := s.(syscall.Signal)
		if !ok {
			os.Exit(1)
		}
		signal.Reset(s)
		_ = syscall.Kill(os.Getpid(), sig)
	}()
}
