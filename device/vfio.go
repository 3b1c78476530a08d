package device

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/ixy-go/ixy/iommu"
)

// VFIO binds a device through the kernel's VFIO framework: a container,
// a group, and a device file descriptor, per spec.md §4.4.2. DMA
// mappings go through the shared process-wide iommu.Container.
type VFIO struct {
	container *iommu.Container
	groupFD   int
	deviceFD  int
	bar0      []byte
}

// BindVFIO implements spec.md §4.4.2 steps 1-9.
func BindVFIO(pciAddress string) (*VFIO, error) {
	base := sysfsDevicePath(pciAddress)
	if _, err := os.Stat(base); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, pciAddress)
	}

	groupID, err := readIOMMUGroup(base)
	if err != nil {
		return nil, err
	}

	container, created, err := iommu.Get()
	if err != nil {
		return nil, err
	}

	groupFD, err := unix.Open(fmt.Sprintf("/dev/vfio/%d", groupID), unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open vfio group %d: %w", groupID, err)
	}

	viable, err := iommu.GroupViable(groupFD)
	if err != nil {
		unix.Close(groupFD)
		return nil, fmt.Errorf("device: query group status: %w", err)
	}
	if !viable {
		unix.Close(groupFD)
		return nil, iommu.ErrGroupNotViable
	}

	if err := container.AttachGroup(groupFD); err != nil {
		unix.Close(groupFD)
		return nil, fmt.Errorf("device: attach group to container: %w", err)
	}

	if created {
		if err := container.SetIOMMU(); err != nil {
			unix.Close(groupFD)
			return nil, err
		}
	}

	deviceFD, err := iommu.GetDeviceFD(groupFD, pciAddress)
	if err != nil {
		unix.Close(groupFD)
		return nil, fmt.Errorf("device: get device fd: %w", err)
	}

	v := &VFIO{
		container: container,
		groupFD:   groupFD,
		deviceFD:  deviceFD,
	}

	if err := v.EnableBusMaster(); err != nil {
		v.Close()
		return nil, err
	}

	bar0, err := v.mapRegion(iommu.BAR0RegionIndex)
	if err != nil {
		v.Close()
		return nil, err
	}
	v.bar0 = bar0

	return v, nil
}

// readIOMMUGroup implements spec.md §4.4.2 step 1.
func readIOMMUGroup(sysfsBase string) (int, error) {
	link, err := os.Readlink(sysfsBase + "/iommu_group")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoIommuGroup, err)
	}
	id, err := strconv.Atoi(filepath.Base(link))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoIommuGroup, err)
	}
	return id, nil
}

func (v *VFIO) mapRegion(index uint32) ([]byte, error) {
	offset, size, err := iommu.RegionInfo(v.deviceFD, index)
	if err != nil {
		return nil, fmt.Errorf("%w: region info: %v", ErrBarMapFailed, err)
	}
	mapped, err := unix.Mmap(v.deviceFD, int64(offset), int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBarMapFailed, err)
	}
	return mapped, nil
}

func (v *VFIO) BAR0() []byte {
	return v.bar0
}

// EnableBusMaster implements spec.md §4.4.2 step 8: a read-modify-write
// of the PCI config region's command register, reached through the
// device descriptor rather than the sysfs config file used by
// DirectPCI.
func (v *VFIO) EnableBusMaster() error {
	offset, _, err := iommu.RegionInfo(v.deviceFD, iommu.PCIConfigRegionIndex)
	if err != nil {
		return fmt.Errorf("device: config region info: %w", err)
	}

	var raw [2]byte
	if _, err := unix.Pread(v.deviceFD, raw[:], int64(offset)+commandRegisterOffset); err != nil {
		return fmt.Errorf("device: read command register: %w", err)
	}

	command := binary.LittleEndian.Uint16(raw[:])
	command |= busMasterBit
	binary.LittleEndian.PutUint16(raw[:], command)

	if _, err := unix.Pwrite(v.deviceFD, raw[:], int64(offset)+commandRegisterOffset); err != nil {
		return fmt.Errorf("device: write command register: %w", err)
	}
	return nil
}

func (v *VFIO) MapDMA(virt, iova uintptr, size int) error {
	return v.container.MapDMA(virt, iova, size)
}

func (v *VFIO) UnmapDMA(iova uintptr, size int) error {
	return v.container.UnmapDMA(iova, size)
}

func (v *VFIO) Close() error {
	if v.bar0 != nil {
		unix.Munmap(v.bar0)
	}
	if v.deviceFD != 0 {
		unix.Close(v.deviceFD)
	}
	if v.groupFD != 0 {
		unix.Close(v.groupFD)
	}
	return nil
}
