package iommu

import "testing"

// TestGroupViableFlagLogic pins the corrected viability check from
// spec.md §9: a group is viable only when the VIABLE bit is actually
// set, not whenever the raw flags word happens to be zero.
func TestGroupViableFlagLogic(t *testing.T) {
	cases := []struct {
		flags uint32
		want  bool
	}{
		{0, false},
		{vfioGroupFlagsViable, true},
		{vfioGroupFlagsContainerSet, false},
		{vfioGroupFlagsViable | vfioGroupFlagsContainerSet, true},
	}
	for _, c := range cases {
		got := c.flags&vfioGroupFlagsViable != 0
		if got != c.want {
			t.Errorf("flags=%#x: got viable=%v, want %v", c.flags, got, c.want)
		}
	}
}

// TestEffectiveSizeRoundsUpToPage pins MapDMA/UnmapDMA's page-rounding
// behavior independent of any real ioctl.
func TestEffectiveSizeRoundsUpToPage(t *testing.T) {
	pageSize := effectiveSize(1)
	if pageSize < 1 {
		t.Fatalf("effectiveSize(1) = %d", pageSize)
	}
	if got := effectiveSize(pageSize * 4); got != pageSize*4 {
		t.Errorf("effectiveSize(%d) = %d, want unchanged", pageSize*4, got)
	}
}

// TestSetIOMMURejectsSecondCall exercises the state machine guard
// without touching /dev/vfio: a Container that already reports
// configured must refuse a second SetIOMMU.
func TestSetIOMMURejectsSecondCall(t *testing.T) {
	c := &Container{fd: -1, configured: true}
	if err := c.SetIOMMU(); err != ErrAlreadyConfigured {
		t.Fatalf("SetIOMMU() on configured container = %v, want ErrAlreadyConfigured", err)
	}
}

// TestGetReturnsSameContainer exercises the process-wide singleton
// property from spec.md §8: once a container exists, Get must return
// the exact same instance rather than opening a second file descriptor.
func TestGetReturnsSameContainer(t *testing.T) {
	globalMu.Lock()
	prev := globalContainer
	globalContainer = &Container{fd: -1, configured: true}
	defer func() {
		globalMu.Lock()
		globalContainer = prev
		globalMu.Unlock()
	}()
	globalMu.Unlock()

	c1, created1, err := Get()
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if created1 {
		t.Fatalf("Get() reported created=true for a pre-existing container")
	}
	c2, created2, err := Get()
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if created2 {
		t.Fatalf("Get() reported created=true on second call")
	}
	if c1 != c2 {
		t.Fatalf("Get() returned distinct containers: %p != %p", c1, c2)
	}
}
