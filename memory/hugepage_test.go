package memory

import "testing"

func TestRoundUp(t *testing.T) {
	cases := []struct{ n, multiple, want int }{
		{0, HugePageSize, 0},
		{1, HugePageSize, HugePageSize},
		{HugePageSize, HugePageSize, HugePageSize},
		{HugePageSize + 1, HugePageSize, 2 * HugePageSize},
	}
	for _, c := range cases {
		if got := roundUp(c.n, c.multiple); got != c.want {
			t.Errorf("roundUp(%d, %d) = %d, want %d", c.n, c.multiple, got, c.want)
		}
	}
}

// TestContiguityGuard exercises the Allocate(size, require_contiguous=true)
// rejection from spec.md §8 without touching hugetlbfs: the contiguity
// check runs before any syscall.
func TestContiguityGuard(t *testing.T) {
	_, err := Allocate(HugePageSize+1, true, Physical, nil)
	if err != ErrContiguityUnavailable {
		t.Fatalf("expected ErrContiguityUnavailable, got %v", err)
	}
}

func TestAddressSpaceString(t *testing.T) {
	if Physical.String() != "physical" {
		t.Errorf("Physical.String() = %q", Physical.String())
	}
	if IOVirtual.String() != "iovirtual" {
		t.Errorf("IOVirtual.String() = %q", IOVirtual.String())
	}
}
