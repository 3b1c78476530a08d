package ring

import "github.com/ixy-go/ixy/pool"

// Loopback is a test double implementing Queue without real hardware.
// RxBatch hands out fresh buffers straight from a pool, simulating a
// NIC that always has packets queued; TxBatch accepts up to AcceptN
// buffers and immediately frees them back to the pool, simulating
// instantaneous hardware completion. Setting AcceptN to zero means
// "accept everything", matching an uncongested link.
//
// It exists to drive the forwarding loop's testable properties
// (spec.md §8 scenarios 5 and 6) without a real device binding.
type Loopback struct {
	Pool    *pool.Pool
	AcceptN int
}

func (l *Loopback) RxBatch(out []*pool.Buffer, max int) int {
	return l.Pool.AllocBatch(out, max)
}

func (l *Loopback) TxBatch(in []*pool.Buffer) int {
	accept := len(in)
	if l.AcceptN > 0 && l.AcceptN < accept {
		accept = l.AcceptN
	}
	for i := 0; i < accept; i++ {
		pool.Free(in[i])
	}
	return accept
}
