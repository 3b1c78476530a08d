// Two-port forwarding loop
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package forward implements the poll-mode forwarding loop of spec.md
// §4.7, grounded on original_source/src/app/ixy-fwd.c's forward(). It
// has no notion of PCI addresses or device binding; it only drives
// ring.Queue values handed to it.
package forward

import (
	"github.com/ixy-go/ixy/pool"
	"github.com/ixy-go/ixy/ring"
)

// Batch is the fixed per-iteration batch size, per spec.md §4.7.
const Batch = 32

// Stats is the per-direction packet count from one Step call.
type Stats struct {
	Rx, Tx, Dropped uint64
}

// Step forwards one batch from rx to tx, per spec.md §4.7: receive up
// to Batch buffers, touch byte 1 of each (the original's anti-cheating
// workload marker, preventing the compiler or cache from ever letting a
// packet's bytes go unread), transmit as many as tx accepts, and free
// the rest rather than retry — backpressure is never applied.
func Step(rx, tx ring.Queue) Stats {
	var bufs [Batch]*pool.Buffer
	numRx := rx.RxBatch(bufs[:], Batch)
	if numRx == 0 {
		return Stats{}
	}

	for i := 0; i < numRx; i++ {
		if len(bufs[i].Data) > 1 {
			bufs[i].Data[1]++
		}
	}

	numTx := tx.TxBatch(bufs[:numRx])
	for i := numTx; i < numRx; i++ {
		pool.Free(bufs[i])
	}

	return Stats{Rx: uint64(numRx), Tx: uint64(numTx), Dropped: uint64(numRx - numTx)}
}

// Loop runs Step forever between two port pairs (A's rx to B's tx, and
// B's rx to A's tx), reporting each full round's combined stats to
// report. Loop never sleeps or yields, matching spec.md §5's
// single-threaded, busy-poll, cooperative model; it returns only when
// stop reports true, checked once per round so the check itself never
// becomes the bottleneck.
func Loop(aRx, aTx, bRx, bTx ring.Queue, report func(aToB, bToA Stats), stop func() bool) {
	for {
		if stop != nil && stop() {
			return
		}
		aToB := Step(aRx, bTx)
		bToA := Step(bRx, aTx)
		if report != nil {
			report(aToB, bToA)
		}
	}
}
