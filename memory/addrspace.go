// Huge-page DMA memory allocation
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package memory

// AddressSpace selects how a buffer's device-visible bus address is
// derived, per spec.md §3 "AddressSpace policy".
type AddressSpace int

const (
	// Physical fills bus addresses with the machine physical address of
	// the backing page, obtained through platform.VirtToPhys. Used in
	// direct-PCI mode, where the NIC has no IOMMU translating its view
	// of memory.
	Physical AddressSpace = iota

	// IOVirtual fills bus addresses with the IOVA that was identity-mapped
	// into the IOMMU at allocation time (iova == virt). This is only
	// correct for a single process per IOMMU container: two processes,
	// or two regions of the same process sharing a numeric virtual
	// address, would collide in the device's address space. Per the
	// spec's Open Question on IOVA mapping, this repo keeps identity
	// mapping and documents the restriction rather than adding a
	// per-container IOVA allocator, since the core is explicitly
	// single-thread/single-process (spec.md §1 Non-goals).
	IOVirtual
)

func (a AddressSpace) String() string {
	switch a {
	case Physical:
		return "physical"
	case IOVirtual:
		return "iovirtual"
	default:
		return "unknown"
	}
}
