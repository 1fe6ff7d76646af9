// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

//go:build windows

package publish

import (
	"context"

	"golang.org/x/sys/windows"

	"github.com/memseg/tsmemseg/pkg/base"
)

// overlappedInstance is one of a slot's two named-pipe instances, so a
// finishing reader and a starting reader can briefly overlap, per
// spec.md §4.6's Windows worker description.
type overlappedInstance struct {
	handle    windows.Handle
	event     windows.Handle
	ov        windows.Overlapped
	connected bool
	writing   bool
}

// windowsPipe is one named resource's pair of overlapped instances.
type windowsPipe struct {
	name         string
	capacityHint int
	active       int // index of the instance currently primed to write
	inst         [2]overlappedInstance
}

func newPlatformEndpoint(name string, capacityHint int) endpoint {
	return &windowsPipe{name: name, capacityHint: capacityHint}
}

func (w *windowsPipe) create() error {
	for i := range w.inst {
		ev, err := windows.CreateEvent(nil, 1, 0, nil)
		if err != nil {
			return err
		}
		w.inst[i].event = ev
		w.inst[i].ov.HEvent = ev

		namePtr, err := windows.UTF16PtrFromString(w.name)
		if err != nil {
			return err
		}
		h, err := windows.CreateNamedPipe(
			namePtr,
			windows.PIPE_ACCESS_OUTBOUND|windows.FILE_FLAG_OVERLAPPED,
			windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
			windows.PIPE_UNLIMITED_INSTANCES,
			uint32(w.capacityHint*pipeCapacityMultiplier),
			uint32(w.capacityHint*pipeCapacityMultiplier),
			0,
			nil,
		)
		if err != nil {
			return err
		}
		w.inst[i].handle = h
	}
	return nil
}

// poll drives exactly one instance: if it's mid-write, checks for
// completion; if it's idle and unconnected, issues ConnectNamedPipe; once
// connected, issues the next overlapped WriteFile from the ring's front
// buffer. Overlapped errors cancel I/O and disconnect the instance; its
// handle stays open and is not recreated, and the next turn issues
// ConnectNamedPipe on it again.
func (w *windowsPipe) poll(ctx context.Context, r *ring) {
	for i := range w.inst {
		w.pollInstance(ctx, r, &w.inst[i])
	}
}

func (w *windowsPipe) pollInstance(ctx context.Context, r *ring, inst *overlappedInstance) {
	if inst.handle == windows.InvalidHandle {
		return
	}

	if inst.writing {
		var transferred uint32
		err := windows.GetOverlappedResult(inst.handle, &inst.ov, &transferred, false)
		switch err {
		case nil:
			inst.writing = false
			r.endWrite()
			r.touchAccess()
		case windows.ERROR_IO_INCOMPLETE:
			// Still in flight: leave the ring's buffer pinned via
			// r.writing and retry on the next poll.
			return
		default:
			inst.writing = false
			r.endWrite()
			base.Log.Debugf("publish: overlapped write failed. name=%s, err=%v", w.name, err)
			w.teardown(inst)
			return
		}
	}

	if !inst.connected {
		err := windows.ConnectNamedPipe(inst.handle, &inst.ov)
		switch err {
		case nil, windows.ERROR_PIPE_CONNECTED:
			inst.connected = true
			r.touchAccess()
		case windows.ERROR_IO_PENDING:
			return
		default:
			base.Log.Debugf("publish: connect failed. name=%s, err=%v", w.name, err)
			w.teardown(inst)
			return
		}
	}

	buf := r.beginWrite()
	if buf == nil {
		r.endWrite()
		return
	}
	var written uint32
	err := windows.WriteFile(inst.handle, buf, &written, &inst.ov)
	switch err {
	case nil:
		// Completed synchronously: buf is done being read, safe to
		// release now.
		r.endWrite()
	case windows.ERROR_IO_PENDING:
		// The kernel is still asynchronously reading buf's backing
		// array. Keep the ring's buffer pinned (r.writing stays true)
		// until GetOverlappedResult confirms completion above, so a
		// concurrent ring.publish() can't overwrite it mid-transfer.
		inst.writing = true
	default:
		r.endWrite()
		base.Log.Debugf("publish: write failed. name=%s, err=%v", w.name, err)
		w.teardown(inst)
	}
}

// teardown cancels I/O on and disconnects one instance. The handle is not
// closed or invalidated, and create is not called again: the next poll
// reconnects the same handle.
func (w *windowsPipe) teardown(inst *overlappedInstance) {
	_ = windows.CancelIo(inst.handle)
	_ = windows.DisconnectNamedPipe(inst.handle)
	inst.connected = false
	inst.writing = false
}

func (w *windowsPipe) close() {
	for i := range w.inst {
		inst := &w.inst[i]
		if inst.handle != 0 && inst.handle != windows.InvalidHandle {
			_ = windows.CancelIo(inst.handle)
			_ = windows.CloseHandle(inst.handle)
			inst.handle = windows.InvalidHandle
		}
		if inst.event != 0 {
			_ = windows.CloseHandle(inst.event)
		}
	}
}
