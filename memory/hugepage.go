package memory

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ixy-go/ixy/platform"
)

// HugePageSize is the size of a single huge page, 2 MiB, per spec.md's
// GLOSSARY. hugetlbfs is used instead of anonymous huge pages because the
// kernel only guarantees physical contiguity within a single huge page
// for file-backed mappings, and the NIC's ring-descriptor hardware can
// only express one bus address per descriptor.
const HugePageSize = 2 << 20

// ErrContiguityUnavailable is returned when a caller requests more than
// one huge page's worth of physically contiguous memory.
var ErrContiguityUnavailable = errors.New("memory: contiguous allocation beyond one huge page is unavailable")

// HugeDir is the hugetlbfs mount point allocations are carved from.
// Overridable by cmd/ixy-fwd's -huge-dir flag.
var HugeDir = "/mnt/huge"

var hugePageID uint32

// DMAMapper is implemented by an IOMMU container so that Allocate can
// identity-map freshly allocated huge pages when running in IOVirtual
// mode, without memory importing the iommu package directly.
type DMAMapper interface {
	MapDMA(virt, iova uintptr, size int) error
}

// Region is a pinned, DMA-capable block of memory backed by one or more
// huge pages, per spec.md §3 "HugePageRegion".
type Region struct {
	// Virt is the process-addressable view of the region.
	Virt []byte
	// Bus is the device-visible address of the region's first byte:
	// the machine physical address in Physical mode, or the IOVA
	// identity-mapped into the IOMMU in IOVirtual mode.
	Bus uintptr
}

// Size returns the region's length in bytes, always a positive multiple
// of HugePageSize.
func (r *Region) Size() int {
	return len(r.Virt)
}

// Allocate reserves size bytes of pinned, huge-page-backed memory
// suitable for device DMA, per spec.md §4.2.
//
// space selects how the region's Bus address is derived. In IOVirtual
// mode, mapper must be non-nil: each huge page within the region is
// identity-mapped (iova == virt) into the IOMMU as it is carved out.
func Allocate(size int, requireContiguous bool, space AddressSpace, mapper DMAMapper) (*Region, error) {
	if size < 1 {
		size = 1
	}
	size = roundUp(size, HugePageSize)
	if requireContiguous && size > HugePageSize {
		return nil, ErrContiguityUnavailable
	}

	id := atomic.AddUint32(&hugePageID, 1)
	path := fmt.Sprintf("%s/ixy-%d-%d", HugeDir, os.Getpid(), id)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o700)
	if err != nil {
		return nil, fmt.Errorf("memory: open hugetlbfs file (is %s mounted?): %w", HugeDir, err)
	}
	// The hugetlbfs entry is unlinked immediately after mapping so the
	// backing memory is reclaimed automatically once the mapping dies,
	// rather than leaking a persistent file on crash.
	defer os.Remove(path)
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("memory: truncate huge page file: %w", err)
	}

	virt, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_HUGETLB)
	if err != nil {
		return nil, fmt.Errorf("memory: mmap huge page region: %w", err)
	}

	if err := unix.Mlock(virt); err != nil {
		unix.Munmap(virt)
		return nil, fmt.Errorf("memory: mlock DMA region (disable swap): %w", err)
	}

	base := uintptr(unsafe.Pointer(&virt[0]))
	if space == IOVirtual {
		if mapper == nil {
			unix.Munmap(virt)
			return nil, errors.New("memory: IOVirtual mode requires a DMA mapper")
		}
		for off := 0; off < size; off += HugePageSize {
			pageVirt := base + uintptr(off)
			if err := mapper.MapDMA(pageVirt, pageVirt, HugePageSize); err != nil {
				unix.Munmap(virt)
				return nil, fmt.Errorf("memory: map huge page into IOMMU: %w", err)
			}
		}
	}

	bus := base
	if space == Physical {
		bus, err = platform.VirtToPhys(base)
		if err != nil {
			unix.Munmap(virt)
			return nil, fmt.Errorf("memory: translate region to physical address: %w", err)
		}
	}

	return &Region{Virt: virt, Bus: bus}, nil
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}
