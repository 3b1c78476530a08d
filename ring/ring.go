// RX/TX ring interface
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ring defines the driver-device collaborator boundary of
// spec.md §4.6. The NIC-specific descriptor ring logic itself is out of
// scope (spec.md's Non-goals); this package only fixes the shape every
// queue implementation, real or test double, must present to the
// forwarding loop.
package ring

import "github.com/ixy-go/ixy/pool"

// Queue is a single hardware RX/TX queue pair, per spec.md §4.6. Both
// operations are non-blocking and reflect whatever the hardware head/tail
// pointers say at call time.
type Queue interface {
	// RxBatch fills out with up to max received buffers, returning how
	// many it filled. Ownership of the returned buffers transfers to the
	// caller.
	RxBatch(out []*pool.Buffer, max int) int

	// TxBatch transmits the first `sent` of in, returning sent. Ownership
	// of those buffers transfers to the NIC; the remaining in[sent:]
	// stay owned by the caller.
	TxBatch(in []*pool.Buffer) (sent int)
}
