package device

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// commandRegisterOffset is the PCIe configuration space offset of the
// 16-bit command register; bit 2 is bus-master enable, per
// <linux/pci_regs.h>'s PCI_COMMAND / PCI_COMMAND_MASTER.
const (
	commandRegisterOffset = 4
	busMasterBit          = 1 << 2
)

// DirectPCI binds a device by unbinding its kernel driver and mapping
// its BAR0 straight out of sysfs, per spec.md §4.4.1. It requires no
// IOMMU and is the path original_source's `pci_open_resource`-style
// tooling uses when vfio is unavailable.
type DirectPCI struct {
	bar0    []byte
	pciAddr string
}

// BindDirectPCI implements spec.md §4.4.1 steps 1-3.
func BindDirectPCI(pciAddress string) (*DirectPCI, error) {
	base := sysfsDevicePath(pciAddress)
	if _, err := os.Stat(base); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, pciAddress)
	}

	if err := unbindKernelDriver(base, pciAddress); err != nil {
		return nil, err
	}

	d := &DirectPCI{pciAddr: pciAddress}
	if err := d.EnableBusMaster(); err != nil {
		return nil, err
	}

	bar0, err := mapResource0(base)
	if err != nil {
		return nil, err
	}
	d.bar0 = bar0
	return d, nil
}

// unbindKernelDriver writes the PCI address to driver/unbind. A missing
// file means no driver currently claims the device, which is not an
// error.
func unbindKernelDriver(sysfsBase, pciAddress string) error {
	path := sysfsBase + "/driver/unbind"
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("device: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(pciAddress); err != nil {
		return fmt.Errorf("device: unbind %s: %w", pciAddress, err)
	}
	return nil
}

func (d *DirectPCI) configPath() string {
	return sysfsDevicePath(d.pciAddr) + "/config"
}

// EnableBusMaster implements spec.md §4.4.1 step 2: read-modify-write
// the 16-bit command register at offset 4, setting the bus-master bit.
func (d *DirectPCI) EnableBusMaster() error {
	f, err := os.OpenFile(d.configPath(), os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("device: open %s: %w", d.configPath(), err)
	}
	defer f.Close()

	var raw [2]byte
	if _, err := f.ReadAt(raw[:], commandRegisterOffset); err != nil {
		return fmt.Errorf("device: read command register: %w", err)
	}

	command := binary.LittleEndian.Uint16(raw[:])
	command |= busMasterBit
	binary.LittleEndian.PutUint16(raw[:], command)

	if _, err := f.WriteAt(raw[:], commandRegisterOffset); err != nil {
		return fmt.Errorf("device: write command register: %w", err)
	}
	return nil
}

// mapResource0 opens resource0 and maps its full size R/W shared,
// implementing spec.md §4.4.1 step 3.
func mapResource0(sysfsBase string) ([]byte, error) {
	path := sysfsBase + "/resource0"
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrBarMapFailed, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrBarMapFailed, path, err)
	}

	bar0, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBarMapFailed, err)
	}
	return bar0, nil
}

func (d *DirectPCI) BAR0() []byte {
	return d.bar0
}

// MapDMA is a no-op: direct-PCI mode has no IOMMU to program. Bus
// addresses for DMA buffers come from platform.VirtToPhys instead, via
// memory.Allocate's Physical address-space path.
func (d *DirectPCI) MapDMA(virt, iova uintptr, size int) error {
	return nil
}

// UnmapDMA is a no-op for the same reason as MapDMA.
func (d *DirectPCI) UnmapDMA(iova uintptr, size int) error {
	return nil
}

func (d *DirectPCI) Close() error {
	if d.bar0 != nil {
		return unix.Munmap(d.bar0)
	}
	return nil
}
