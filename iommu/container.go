// VFIO Type-1 IOMMU container
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package iommu manages the process-wide VFIO container and its Type-1
// IOMMU programming, per spec.md §4.3. At most one Container exists per
// process; it is created lazily by the first caller that binds a device
// in vfio mode and reused by every subsequent bind.
package iommu

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	ErrContainerOpenFailed     = errors.New("iommu: failed to open /dev/vfio/vfio")
	ErrContainerAPIMismatch    = errors.New("iommu: unexpected VFIO API version")
	ErrContainerTypeUnsupp     = errors.New("iommu: Type-1 IOMMU extension unsupported")
	ErrGroupNotViable          = errors.New("iommu: group is not viable (a sibling device is still bound to a host driver)")
	ErrMapFailed               = errors.New("iommu: VFIO_IOMMU_MAP_DMA failed")
	ErrUnmapFailed             = errors.New("iommu: VFIO_IOMMU_UNMAP_DMA failed")
	ErrAlreadyConfigured       = errors.New("iommu: container already programmed as Type-1")
)

// Container is the process-wide VFIO container singleton described in
// spec.md §3 "IommuContainer (process-scoped)". Its state machine
// (spec.md §4.4.2) is: opened without a group, a group attached, then
// Type-1 programmed exactly once; additional groups may attach silently
// once configured.
type Container struct {
	mu          sync.Mutex
	fd          int
	configured  bool
}

var (
	globalMu        sync.Mutex
	globalContainer *Container
)

// Get returns the process's IOMMU container, opening and verifying it
// on the first call. The boolean result reports whether this call
// created the container (needed by the device binder to know whether it
// must be the one to program Type-1 IOMMU, per spec.md §4.4.2 step 6).
func Get() (c *Container, created bool, err error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalContainer != nil {
		return globalContainer, false, nil
	}

	fd, err := unix.Open("/dev/vfio/vfio", unix.O_RDWR, 0)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrContainerOpenFailed, err)
	}

	version, err := ioctlNoArg(fd, vfioGetAPIVersion)
	if err != nil || version != vfioAPIVersion {
		unix.Close(fd)
		return nil, false, fmt.Errorf("%w: got %d, want %d", ErrContainerAPIMismatch, version, vfioAPIVersion)
	}

	ext, err := ioctlIntArg(fd, vfioCheckExtension, VFIOType1IOMMU)
	if err != nil || ext != 1 {
		unix.Close(fd)
		return nil, false, ErrContainerTypeUnsupp
	}

	globalContainer = &Container{fd: fd}
	return globalContainer, true, nil
}

// FD returns the container's file descriptor, for attaching groups.
func (c *Container) FD() int {
	return c.fd
}

// AttachGroup is called by the device binder once it has opened a group
// file descriptor. The first attach leaves the container in
// OPEN_WITH_GROUP; the caller that created the container then calls
// SetIOMMU exactly once. Later attaches on an already-configured
// container are legal no-ops beyond the ioctl itself.
func (c *Container) AttachGroup(groupFD int) error {
	return ioctlPtr(groupFD, vfioGroupSetContainer, unsafe.Pointer(&c.fd))
}

// SetIOMMU programs the container as Type-1. Legal only once per
// container; a second call is a programming error, since silently
// accepting it could corrupt in-flight mappings (spec.md §4.3).
func (c *Container) SetIOMMU() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.configured {
		return ErrAlreadyConfigured
	}
	if _, err := ioctlIntArgRaw(c.fd, vfioSetIOMMU, VFIOType1IOMMU); err != nil {
		return err
	}
	c.configured = true
	return nil
}

// MapDMA maps a virtual address range into the IOMMU's address space at
// the given IOVA, per spec.md §4.3. The effective size mapped is at
// least one page, matching the kernel's own rounding.
func (c *Container) MapDMA(virt, iova uintptr, size int) error {
	m := vfioIOMMUType1DMAMap{
		Argsz: uint32(unsafe.Sizeof(vfioIOMMUType1DMAMap{})),
		Flags: vfioDMAMapFlagRead | vfioDMAMapFlagWrite,
		Vaddr: uint64(virt),
		IOVA:  uint64(iova),
		Size:  uint64(effectiveSize(size)),
	}
	if err := ioctlPtr(c.fd, vfioIOMMUMapDMA, unsafe.Pointer(&m)); err != nil {
		return fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	return nil
}

// UnmapDMA reverses a prior MapDMA, per spec.md §4.3.
func (c *Container) UnmapDMA(iova uintptr, size int) error {
	u := vfioIOMMUType1DMAUnmap{
		Argsz: uint32(unsafe.Sizeof(vfioIOMMUType1DMAUnmap{})),
		Flags: vfioDMAMapFlagRead | vfioDMAMapFlagWrite,
		IOVA:  uint64(iova),
		Size:  uint64(effectiveSize(size)),
	}
	if err := ioctlPtr(c.fd, vfioIOMMUUnmapDMA, unsafe.Pointer(&u)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnmapFailed, err)
	}
	return nil
}

func effectiveSize(size int) int {
	pageSize := unix.Getpagesize()
	if size < pageSize {
		return pageSize
	}
	return size
}

// GroupViable checks a VFIO_GROUP_GET_STATUS result the way spec.md §9's
// Open Question resolution demands: (flags & VIABLE) == 0 means NOT
// viable. The original C source tested `!flags & VIABLE`, an
// operator-precedence bug that always evaluates to zero (false),
// silently accepting unviable groups.
func GroupViable(groupFD int) (bool, error) {
	st := vfioGroupStatus{Argsz: uint32(unsafe.Sizeof(vfioGroupStatus{}))}
	if err := ioctlPtr(groupFD, vfioGroupGetStatus, unsafe.Pointer(&st)); err != nil {
		return false, err
	}
	return st.Flags&vfioGroupFlagsViable != 0, nil
}

// GetDeviceFD requests a device descriptor for pciAddress from an
// attached group, via VFIO_GROUP_GET_DEVICE_FD.
func GetDeviceFD(groupFD int, pciAddress string) (int, error) {
	buf, err := unix.BytePtrFromString(pciAddress)
	if err != nil {
		return 0, err
	}
	fd, err := ioctlPtrRaw(groupFD, vfioGroupGetDeviceFD, unsafe.Pointer(buf))
	if err != nil {
		return 0, err
	}
	return int(fd), nil
}

// RegionInfo queries VFIO_DEVICE_GET_REGION_INFO for the given index
// (PCIConfigRegionIndex or BAR0RegionIndex, or any BAR index 0-5).
func RegionInfo(deviceFD int, index uint32) (offset uint64, size uint64, err error) {
	ri := vfioRegionInfo{
		Argsz: uint32(unsafe.Sizeof(vfioRegionInfo{})),
		Index: index,
	}
	if err := ioctlPtr(deviceFD, vfioDeviceGetRegionInfo, unsafe.Pointer(&ri)); err != nil {
		return 0, 0, err
	}
	return ri.Offset, ri.Size, nil
}
