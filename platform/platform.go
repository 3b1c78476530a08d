// Platform primitives for userspace device drivers
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package platform provides the small set of OS primitives that every
// other driver-core package builds on: virtual-to-physical address
// translation via the kernel's pagemap, and a monotonic clock for
// rate-sampling the hot path.
package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNoMapping is returned by VirtToPhys when the pagemap reports a zero
// page frame number, meaning the page was never faulted in.
var ErrNoMapping = errors.New("platform: no mapping for address")

const pagemapEntrySize = 8

// VirtToPhys translates a process virtual address to its physical
// address via /proc/self/pagemap, per spec.md §4.1.
func VirtToPhys(addr uintptr) (uintptr, error) {
	pageSize := uintptr(os.Getpagesize())

	f, err := os.Open("/proc/self/pagemap")
	if err != nil {
		return 0, fmt.Errorf("platform: open pagemap: %w", err)
	}
	defer f.Close()

	var entry [pagemapEntrySize]byte
	off := int64(addr/pageSize) * pagemapEntrySize
	if _, err := f.ReadAt(entry[:], off); err != nil {
		return 0, fmt.Errorf("platform: read pagemap: %w", err)
	}

	raw := uint64(0)
	for i := pagemapEntrySize - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(entry[i])
	}

	// bits 0-54 are the page frame number.
	pfn := raw & 0x7fffffffffffff
	if pfn == 0 {
		return 0, ErrNoMapping
	}

	phys := uintptr(pfn)*pageSize + addr%pageSize
	return phys, nil
}

// MonotonicNow returns a monotonic nanosecond timestamp suitable for
// rate-sampling the hot path. It reads CLOCK_MONOTONIC directly rather
// than time.Now().UnixNano(), which returns wall-clock time and can
// step backward under NTP correction or clock_settime.
func MonotonicNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(fmt.Sprintf("platform: clock_gettime(CLOCK_MONOTONIC): %v", err))
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
