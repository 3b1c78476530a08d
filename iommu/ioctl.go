// Raw ioctl syscall wrappers
// https://github.com/ixy-go/ixy
//
// Copyright (c) The ixy-go Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package iommu

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// golang.org/x/sys/unix has no typed wrapper for VFIO's ioctls (they are
// not part of the generic syscall surface it covers), so this file goes
// straight to unix.Syscall the way gvisor's gasket ioctl shim and
// original_source/src/libixy-vfio.c both do: request number plus either
// no argument, an inline int, or a pointer to a request struct.

func ioctlNoArg(fd int, req uintptr) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

func ioctlIntArg(fd int, req uintptr, arg int) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}

// ioctlIntArgRaw is ioctlIntArg without interpreting the return value as
// meaningful data, for ioctls like VFIO_SET_IOMMU whose return is just a
// success/failure signal.
func ioctlIntArgRaw(fd int, req uintptr, arg int) (int, error) {
	return ioctlIntArg(fd, req, arg)
}

func ioctlPtr(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ioctlPtrRaw is ioctlPtr for ioctls (like VFIO_GROUP_GET_DEVICE_FD) whose
// return value, not just the argument struct, carries the result.
func ioctlPtrRaw(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}
