// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build !windows

package publish

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/memseg/tsmemseg/pkg/base"
)

// pollInterval is the 50 ms cadence spec.md §4.6 gives the Unix worker for
// scanning disconnected slots for a new reader.
const pollInterval = 50 * time.Millisecond

// unixFifo is one named FIFO on disk. A single Unix worker goroutine polls
// every slot's unixFifo each pollInterval; this type holds only the
// per-slot state that poll needs between ticks.
type unixFifo struct {
	path         string
	capacityHint int
	fd           int
	connected    bool
	sizedPipe    bool
}

func newPlatformEndpoint(path string, capacityHint int) endpoint {
	return &unixFifo{path: path, capacityHint: capacityHint, fd: -1}
}

// create makes the FIFO node. It tolerates the node already existing (a
// stale FIFO left behind by a prior, uncleanly-terminated run), matching
// original_source/util.hpp's "mkfifo, ignore EEXIST" behavior.
func (u *unixFifo) create() error {
	if err := unix.Mkfifo(u.path, 0o600); err != nil && err != unix.EEXIST {
		return err
	}
	return nil
}

// poll tries a non-blocking open if disconnected, then drains whatever the
// ring's front buffer holds via a non-blocking write+select loop, per
// spec.md §4.6's Unix worker description.
func (u *unixFifo) poll(ctx context.Context, r *ring) {
	if !u.connected {
		fd, err := unix.Open(u.path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			return
		}
		u.fd = fd
		u.connected = true
		u.sizedPipe = false
		r.touchAccess()
	}

	buf := r.beginWrite()
	if buf == nil {
		return
	}
	defer r.endWrite()

	if !u.sizedPipe {
		// Best-effort: grow the pipe's kernel buffer so a full segment can
		// land without the reader having drained the previous one yet.
		_, _ = unix.FcntlInt(uintptr(u.fd), unix.F_SETPIPE_SZ, u.capacityHint*pipeCapacityMultiplier)
		u.sizedPipe = true
	}

	for len(buf) > 0 {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.Write(u.fd, buf)
		if n > 0 {
			buf = buf[n:]
			r.touchAccess()
		}
		if err == nil {
			continue
		}
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			u.waitWritable(ctx)
			continue
		}
		// EPIPE or any other error: the reader went away mid-write. The
		// buffer in r is left untouched so the next connection can replay
		// it from the top (spec.md §7's "buffer remains valid for next
		// reader").
		base.Log.Debugf("publish: fifo write failed. path=%s, err=%v", u.path, err)
		u.disconnect()
		return
	}
}

// waitWritable blocks until the fd is writable again, or falls back to a
// short sleep when select can't represent the fd (it's >= FD_SETSIZE),
// exactly as spec.md §4.6 describes.
func (u *unixFifo) waitWritable(ctx context.Context) {
	if u.fd >= unix.FD_SETSIZE {
		time.Sleep(10 * time.Millisecond)
		return
	}
	var set unix.FdSet
	fdSetSet(&set, u.fd)
	tv := unix.Timeval{Sec: 0, Usec: 10000}
	_, _ = unix.Select(u.fd+1, nil, &set, nil, &tv)
}

func (u *unixFifo) disconnect() {
	if u.fd >= 0 {
		_ = unix.Close(u.fd)
	}
	u.fd = -1
	u.connected = false
}

func (u *unixFifo) close() {
	u.disconnect()
	_ = os.Remove(u.path)
}

// fdSetSet sets bit fd in set, mirroring the FD_SET macro; x/sys/unix
// exposes FdSet as a plain bitmask struct with no helper methods.
func fdSetSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}
