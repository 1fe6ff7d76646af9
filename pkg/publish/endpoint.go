// Copyright 2020, Chef.  All rights reserved.
// https://github.com/q191201771/lal
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package publish hands a Segmenter/Fragmenter's byte runs to readers
// through N+1 named pipes (a listing slot plus N segment slots), following
// original_source/util.hpp's "memory pipe" design: a platform worker polls
// for readers while a double buffer lets writers keep producing without
// blocking on a slow or absent reader.
//
// spec.md's §9 design note "platform pipe abstraction as a trait/interface"
// is implemented literally here: endpoint is the interface, unix_fifo.go and
// windows_pipe.go are its two build-tagged implementations, and ring.go's
// double buffer is platform-independent.
package publish

import "context"

// endpoint is one named pipe's platform-specific half: creating it on disk
// (or in the kernel namespace), and periodically polling it for a reader
// while draining whatever ring currently holds. The mutex that serializes
// buffer swaps with publishes lives in ring, not here -- an endpoint only
// ever sees the ring's buffers through beginWrite/endWrite.
type endpoint interface {
	// create allocates the underlying pipe/FIFO. Called once, before poll.
	create() error

	// poll services one tick of work against r: accepting a new reader if
	// none is connected, or advancing an in-flight write if one is. It
	// returns once it would otherwise block.
	poll(ctx context.Context, r *ring)

	// close tears the endpoint down and removes any on-disk path it owns.
	close()
}

// newEndpointSlot constructs the platform endpoint for one named resource.
// On Unix this is a single FIFO at path; on Windows name is the pipe name
// (\\.\pipe\...) and two overlapped instances are created internally.
func newEndpointSlot(nameOrPath string, capacityHint int) endpoint {
	return newPlatformEndpoint(nameOrPath, capacityHint)
}
