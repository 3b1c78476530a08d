package device

import (
	"os"
	"path/filepath"
	"testing"
)

// TestReadIOMMUGroupParsesSymlinkLeaf exercises spec.md §4.4.2 step 1
// without a real PCI device: any directory whose iommu_group symlink
// leaf component parses as a decimal integer is accepted.
func TestReadIOMMUGroupParsesSymlinkLeaf(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "42")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatalf("mkdir target: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, "iommu_group")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	id, err := readIOMMUGroup(dir)
	if err != nil {
		t.Fatalf("readIOMMUGroup: %v", err)
	}
	if id != 42 {
		t.Fatalf("readIOMMUGroup() = %d, want 42", id)
	}
}

func TestReadIOMMUGroupMissingSymlink(t *testing.T) {
	dir := t.TempDir()
	if _, err := readIOMMUGroup(dir); err == nil {
		t.Fatal("expected error for missing iommu_group symlink")
	}
}
