// Device binding layer
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package device binds a PCI network device for userspace polling, per
// spec.md §4.4. Two variants share one interface so callers never branch
// on how a device was bound: DirectPCI unbinds the kernel driver and
// maps BAR0 straight from sysfs; VFIO goes through the IOMMU container
// in package iommu.
package device

import (
	"errors"
	"fmt"
)

var (
	ErrNoDevice    = errors.New("device: no such PCI device under sysfs")
	ErrNoIommuGroup = errors.New("device: iommu_group symlink missing or unparseable")
	ErrBarMapFailed = errors.New("device: mmap of BAR0 failed")
)

// Handle is the shared trait both binding variants satisfy, per spec.md
// §REDESIGN FLAGS "Two device variants behind one callsite". Forwarding
// and pool-construction code depend only on this interface, never on
// which variant bound the device.
//
// Handle's MapDMA signature matches memory.DMAMapper's one method, so
// a Handle can be passed directly as the mapper argument to
// memory.Allocate when building an IOVirtual pool.
type Handle interface {
	// BAR0 returns the device's memory-mapped register space.
	BAR0() []byte

	// EnableBusMaster sets the PCIe command register's bus-master bit so
	// the device may initiate DMA.
	EnableBusMaster() error

	// MapDMA maps a virtual address range for device access at the
	// given IOVA. DirectPCI's implementation is a no-op: direct-PCI mode
	// has no IOMMU, so buffers carry a physical bus address obtained
	// separately via platform.VirtToPhys. VFIO's delegates to its
	// attached iommu.Container.
	MapDMA(virt, iova uintptr, size int) error

	// UnmapDMA reverses a MapDMA.
	UnmapDMA(iova uintptr, size int) error

	// Close releases the descriptors and mappings the handle holds.
	Close() error
}

func sysfsDevicePath(pciAddress string) string {
	return fmt.Sprintf("/sys/bus/pci/devices/%s", pciAddress)
}
