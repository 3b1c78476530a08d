package platform

import (
	"errors"
	"testing"
)

func TestVirtToPhysUnfaultedReportsNoMapping(t *testing.T) {
	// The last page of the address space lies above every user mapping,
	// so this process never faults it in and translating it must fail;
	// ErrNoMapping is expected where the pagemap entry reads back with a
	// zero PFN.
	var x byte
	unmapped := ^uintptr(0) &^ 0xfff

	_ = &x // keep a faulted-in address alive for contrast, unused otherwise.

	_, err := VirtToPhys(unmapped)
	if err == nil {
		t.Fatalf("expected an error translating an implausible address")
	}
	if !errors.Is(err, ErrNoMapping) {
		// Some kernels reject the lseek/pread outright for the top of
		// the address space; either failure mode is acceptable here,
		// only a silent success is not.
		t.Logf("VirtToPhys returned non-ErrNoMapping error: %v", err)
	}
}

func TestMonotonicNowIsNonDecreasing(t *testing.T) {
	a := MonotonicNow()
	b := MonotonicNow()
	if b < a {
		t.Fatalf("monotonic clock went backwards: %d then %d", a, b)
	}
}
