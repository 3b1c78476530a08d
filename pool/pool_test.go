package pool

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ixy-go/ixy/memory"
)

// fakeRegionPool builds a Pool around an in-process byte slice instead
// of a real hugetlbfs mapping, so these tests exercise the free-stack
// logic without root privileges or a mounted hugetlbfs. IOVirtual mode
// is used since it needs no pagemap access either.
func fakeRegionPool(t *testing.T, numEntries, entrySize int) *Pool {
	t.Helper()
	p := &Pool{
		region:      &memory.Region{Virt: make([]byte, numEntries*entrySize)},
		entrySize:   entrySize,
		numEntries:  numEntries,
		space:       memory.IOVirtual,
		freeStack:   make([]int, numEntries),
		freeTop:     numEntries,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for i := 0; i < numEntries; i++ {
		p.freeStack[i] = i
	}
	return p
}

// TestPoolBasicLIFO pins scenario 1 from spec.md §8: a pool of 4
// entries, alloc 3 (the stack pops slot indices 3, 2, 1), free bufs[0],
// bufs[1], bufs[2] in that order, then the next alloc must return the
// slot freed last, bufs[2] (LIFO), with the free_top trace 4→1→2→3→4→3.
func TestPoolBasicLIFO(t *testing.T) {
	p := fakeRegionPool(t, 4, 2048)
	if p.freeTop != 4 {
		t.Fatalf("initial free_top = %d, want 4", p.freeTop)
	}

	bufs := make([]*Buffer, 3)
	if got := p.AllocBatch(bufs, 3); got != 3 {
		t.Fatalf("AllocBatch(3) granted %d", got)
	}
	if p.freeTop != 1 {
		t.Fatalf("free_top after alloc(3) = %d, want 1", p.freeTop)
	}

	Free(bufs[0])
	if p.freeTop != 2 {
		t.Fatalf("free_top after 1st free = %d, want 2", p.freeTop)
	}
	Free(bufs[1])
	if p.freeTop != 3 {
		t.Fatalf("free_top after 2nd free = %d, want 3", p.freeTop)
	}
	Free(bufs[2])
	if p.freeTop != 4 {
		t.Fatalf("free_top after 3rd free = %d, want 4", p.freeTop)
	}

	next := p.AllocOne()
	if p.freeTop != 3 {
		t.Fatalf("free_top after next alloc = %d, want 3", p.freeTop)
	}
	if next.index != bufs[2].index {
		t.Fatalf("LIFO violation: next alloc returned index %d, want %d (last freed)", next.index, bufs[2].index)
	}
}

// TestPoolExhaustion pins scenario 2 from spec.md §8 literally.
func TestPoolExhaustion(t *testing.T) {
	p := fakeRegionPool(t, 2, 2048)

	bufs := make([]*Buffer, 5)
	granted := p.AllocBatch(bufs, 5)
	if granted != 2 {
		t.Fatalf("AllocBatch(5) on 2-entry pool granted %d, want 2", granted)
	}
	if p.freeTop != 0 {
		t.Fatalf("free_top after exhaustion = %d, want 0", p.freeTop)
	}

	more := make([]*Buffer, 1)
	if got := p.AllocBatch(more, 1); got != 0 {
		t.Fatalf("AllocBatch(1) on exhausted pool granted %d, want 0", got)
	}
}

// TestPoolConservation exercises spec.md §8's "Pool conservation" and
// "Unique indices" invariants across a scripted sequence of allocs and
// frees.
func TestPoolConservation(t *testing.T) {
	p := fakeRegionPool(t, 8, 2048)
	var held []*Buffer

	step := func(allocN int, freeIdx []int) {
		out := make([]*Buffer, allocN)
		granted := p.AllocBatch(out, allocN)
		held = append(held, out[:granted]...)

		seen := map[int]bool{}
		for _, b := range held {
			if seen[b.index] {
				t.Fatalf("duplicate index %d among outstanding buffers", b.index)
			}
			seen[b.index] = true
		}
		if p.freeTop+len(held) != p.numEntries {
			t.Fatalf("conservation violated: free_top=%d held=%d numEntries=%d", p.freeTop, len(held), p.numEntries)
		}

		for _, i := range freeIdx {
			Free(held[i])
		}
		for i := len(freeIdx) - 1; i >= 0; i-- {
			j := freeIdx[i]
			held = append(held[:j], held[j+1:]...)
		}
	}

	step(5, []int{0, 2})
	step(3, []int{1})
	step(4, nil)
}

// TestPoolSlotAlignment exercises the region layout behind spec.md §8's
// "Slot alignment" invariant: every slot carved at i*entrySize spans
// exactly entrySize bytes of the region. It does not check huge-page
// boundaries.
func TestPoolSlotAlignment(t *testing.T) {
	p := fakeRegionPool(t, 6, 2048)
	for i := 0; i < p.numEntries; i++ {
		slot := p.region.Virt[i*p.entrySize : (i+1)*p.entrySize]
		if len(slot) != p.entrySize {
			t.Fatalf("slot %d has length %d, want %d", i, len(slot), p.entrySize)
		}
	}
}

func TestNewRejectsBadEntrySize(t *testing.T) {
	_, err := New(4, 3, memory.IOVirtual, nil)
	if !errors.Is(err, ErrBadEntrySize) {
		t.Fatalf("New with non-dividing entry size = %v, want ErrBadEntrySize", err)
	}
}
