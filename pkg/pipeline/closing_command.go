// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package pipeline

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/memseg/tsmemseg/pkg/base"
)

// runClosingCommand runs the user's -c string through the platform shell
// and waits for it to exit, matching the original's "optional closing
// command timer thread" intent; a failure is logged as a warning and never
// retried.
func runClosingCommand(ctx context.Context, command string) {
	if command == "" {
		return
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	if err := cmd.Run(); err != nil {
		base.Log.Warnf("pipeline: closing command failed. command=%s, err=%v", command, err)
	}
}
