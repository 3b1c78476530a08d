// VFIO ioctl ABI definitions
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package iommu

// The struct layouts and ioctl numbers below mirror <linux/vfio.h>.
// golang.org/x/sys/unix does not vendor VFIO's ABI (it lives in a
// driver-specific kernel header, not the generic syscall table), so
// this package defines its own minimal subset, the same way
// original_source/src/vfio.h keeps a private copy of the subset of
// vfio.h the driver actually uses, and the way gvisor vendors its own
// pkg/abi/gasket struct definitions for a different hardware ioctl ABI.

const (
	vfioType = uintptr(';') // VFIO_TYPE, <linux/vfio.h>
	vfioBase = 100          // VFIO_BASE, <linux/vfio.h>
)

// Generic ioctl request-number encoding, <asm-generic/ioctl.h>. VFIO
// uses only its _IO() form: direction iocNone and size 0, so a request
// number is just (type<<8|nr).
const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioreq(dir, nr, size uintptr) uintptr {
	return dir<<iocDirShift | size<<iocSizeShift | vfioType<<iocTypeShift | nr<<iocNRShift
}

type vfioGroupStatus struct {
	Argsz uint32
	Flags uint32
}

type vfioRegionInfo struct {
	Argsz     uint32
	Flags     uint32
	Index     uint32
	CapOffset uint32
	Size      uint64
	Offset    uint64
}

type vfioIOMMUType1DMAMap struct {
	Argsz uint32
	Flags uint32
	Vaddr uint64
	IOVA  uint64
	Size  uint64
}

type vfioIOMMUType1DMAUnmap struct {
	Argsz uint32
	Flags uint32
	IOVA  uint64
	Size  uint64
}

// ioctl request numbers. <linux/vfio.h> defines every VFIO request as a
// bare _IO(VFIO_TYPE, VFIO_BASE + n), with no direction or size bits,
// including the ones that carry a struct (or, for
// VFIO_GROUP_SET_CONTAINER, a pointer to a C int). The kernel's VFIO
// dispatch matches the whole request number, so a number carrying
// _IOR()/_IOW()/_IOWR() bits is rejected with ENOTTY.
var (
	vfioGetAPIVersion    = vfioType<<iocTypeShift | (vfioBase + 0)
	vfioCheckExtension   = vfioType<<iocTypeShift | (vfioBase + 1)
	vfioSetIOMMU         = vfioType<<iocTypeShift | (vfioBase + 2)
	vfioGroupGetDeviceFD = vfioType<<iocTypeShift | (vfioBase + 6)

	// VFIO_GROUP_GET_STATUS: argument is a struct vfio_group_status.
	vfioGroupGetStatus = ioreq(iocNone, vfioBase+3, 0)

	// VFIO_GROUP_SET_CONTAINER: argument points at the container fd,
	// a 4-byte C int.
	vfioGroupSetContainer = ioreq(iocNone, vfioBase+4, 0)

	// VFIO_DEVICE_GET_REGION_INFO: argument is a struct vfio_region_info.
	vfioDeviceGetRegionInfo = ioreq(iocNone, vfioBase+8, 0)

	// VFIO_IOMMU_MAP_DMA: argument is a struct vfio_iommu_type1_dma_map.
	vfioIOMMUMapDMA = ioreq(iocNone, vfioBase+13, 0)

	// VFIO_IOMMU_UNMAP_DMA: argument is a struct vfio_iommu_type1_dma_unmap.
	vfioIOMMUUnmapDMA = ioreq(iocNone, vfioBase+14, 0)
)

const (
	// vfioAPIVersion is the version VFIO_GET_API_VERSION must return.
	vfioAPIVersion = 0

	// VFIOType1IOMMU identifies the page-table-based Type-1 IOMMU model.
	VFIOType1IOMMU = 1

	vfioGroupFlagsViable       = 1 << 0
	vfioGroupFlagsContainerSet = 1 << 1

	vfioDMAMapFlagRead  = 1 << 0
	vfioDMAMapFlagWrite = 1 << 1

	// PCIConfigRegionIndex and BAR0RegionIndex select which device
	// region VFIO_DEVICE_GET_REGION_INFO describes, per <linux/vfio.h>'s
	// enum vfio_pci_device_region_index.
	PCIConfigRegionIndex = 7
	BAR0RegionIndex      = 0
)
