// Packet buffer pool
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pool implements the fixed-size packet buffer pool of
// spec.md §4.5: a single huge-page region sliced into equal-size
// entries, handed out and reclaimed through a LIFO free stack. A Pool
// has exactly one owner; it carries no internal locking, matching
// spec.md §5's "single-owner" resource policy.
package pool

import (
	"errors"
	"fmt"
	"log"
	"time"
	"unsafe"

	"golang.org/x/time/rate"

	"github.com/ixy-go/ixy/memory"
	"github.com/ixy-go/ixy/platform"
)

// DefaultEntrySize is the conventional packet buffer size, per spec.md
// §4.5's new_pool default.
const DefaultEntrySize = 2048

var ErrBadEntrySize = errors.New("pool: entry size does not divide huge page size")

// Buffer is one slot of a Pool, carrying the per-slot header fields
// spec.md §4.5 lists: bus address, owning pool, and slot index, plus the
// mutable Data view a caller fills with a received or outgoing packet.
type Buffer struct {
	// BusAddr is the device-visible address of this slot, fixed for the
	// buffer's lifetime (spec.md §8 "Bus address stability").
	BusAddr uintptr

	// Data is the slot's full entry-sized byte range. Size tracks how
	// much of Data holds a real packet; callers read/write Data[:Size].
	Data []byte
	Size int

	pool  *Pool
	index int
}

// Pool is a fixed-size packet buffer pool backed by one HugePageRegion,
// per spec.md §4.5.
type Pool struct {
	region     *memory.Region
	entrySize  int
	numEntries int
	space      memory.AddressSpace

	freeStack []int
	freeTop   int

	warnLimiter *rate.Limiter
}

// New constructs a pool of numEntries slots of entrySize bytes each,
// per spec.md §4.5's new_pool. space and mapper are forwarded to
// memory.Allocate to decide how each slot's bus address is derived.
func New(numEntries, entrySize int, space memory.AddressSpace, mapper memory.DMAMapper) (*Pool, error) {
	if entrySize <= 0 {
		entrySize = DefaultEntrySize
	}
	if memory.HugePageSize%entrySize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadEntrySize, entrySize)
	}

	region, err := memory.Allocate(numEntries*entrySize, false, space, mapper)
	if err != nil {
		return nil, err
	}

	return FromRegion(region, numEntries, entrySize, space)
}

// FromRegion builds a pool over an already-allocated region instead of
// carving out a fresh one, for callers that manage the backing
// HugePageRegion's lifetime themselves (and for tests, which substitute
// a plain byte slice for the real hugetlbfs mapping New would require).
func FromRegion(region *memory.Region, numEntries, entrySize int, space memory.AddressSpace) (*Pool, error) {
	if entrySize <= 0 {
		entrySize = DefaultEntrySize
	}
	if memory.HugePageSize%entrySize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadEntrySize, entrySize)
	}
	if region.Size() < numEntries*entrySize {
		return nil, fmt.Errorf("pool: region of %d bytes too small for %d entries of %d bytes", region.Size(), numEntries, entrySize)
	}

	p := &Pool{
		region:      region,
		entrySize:   entrySize,
		numEntries:  numEntries,
		space:       space,
		freeStack:   make([]int, numEntries),
		freeTop:     numEntries,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for i := 0; i < numEntries; i++ {
		p.freeStack[i] = i
	}
	return p, nil
}

func (p *Pool) slotBusAddr(index int) (uintptr, error) {
	slotVirt := p.region.Virt[index*p.entrySize : (index+1)*p.entrySize]
	base := uintptr(unsafe.Pointer(&slotVirt[0]))
	if p.space == memory.IOVirtual {
		return base, nil
	}
	return platform.VirtToPhys(base)
}

// NumEntries returns the pool's total slot count.
func (p *Pool) NumEntries() int {
	return p.numEntries
}

// EntrySize returns the pool's fixed slot size.
func (p *Pool) EntrySize() int {
	return p.entrySize
}

// Stats reports the pool's current occupancy, the supplement spec.md's
// testable properties rely on (free_top, conservation) without reaching
// into unexported fields.
type Stats struct {
	NumEntries int
	FreeTop    int
	InUse      int
}

func (p *Pool) Stats() Stats {
	return Stats{
		NumEntries: p.numEntries,
		FreeTop:    p.freeTop,
		InUse:      p.numEntries - p.freeTop,
	}
}

// AllocBatch pops up to n indices from the free stack, per spec.md
// §4.5. It never fails: when fewer than n entries are free, it grants
// what it can and emits a rate-limited warning, leaving the caller to
// decide whether to drop or retry.
func (p *Pool) AllocBatch(out []*Buffer, n int) int {
	if n > len(out) {
		n = len(out)
	}
	granted := n
	if granted > p.freeTop {
		granted = p.freeTop
		p.warnExhausted(n, granted)
	}

	for i := 0; i < granted; i++ {
		p.freeTop--
		idx := p.freeStack[p.freeTop]
		out[i] = p.bufferAt(idx)
	}
	return granted
}

// AllocOne is a single-buffer convenience over AllocBatch.
func (p *Pool) AllocOne() *Buffer {
	out := [1]*Buffer{}
	if p.AllocBatch(out[:], 1) == 0 {
		return nil
	}
	return out[0]
}

func (p *Pool) bufferAt(index int) *Buffer {
	bus, err := p.slotBusAddr(index)
	if err != nil {
		// Every slot was already faulted in by memory.Allocate's mlock at
		// construction time, so VirtToPhys should never report
		// NoMapping here; fall back to zero rather than panic on the hot
		// path.
		bus = 0
	}
	return &Buffer{
		BusAddr: bus,
		Data:    p.region.Virt[index*p.entrySize : (index+1)*p.entrySize],
		Size:    0,
		pool:    p,
		index:   index,
	}
}

func (p *Pool) warnExhausted(requested, granted int) {
	if p.warnLimiter.Allow() {
		log.Printf("pool: exhausted, requested %d got %d (free_top=0)", requested, granted)
	}
}

// Free returns buf to its owning pool's free stack, per spec.md §4.5.
// The caller must guarantee it actually owns buf; a double-free is a
// correctness bug this pool does not detect, matching spec.md's
// single-owner invariant.
func Free(buf *Buffer) {
	p := buf.pool
	p.freeStack[p.freeTop] = buf.index
	p.freeTop++
	buf.Size = 0
}
