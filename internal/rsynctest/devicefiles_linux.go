//go:build linux

package rsynctest

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

// CreateDummyDeviceFiles creates a character and a block device under
// dir, for tests that run as root and exercise --devices/--specials.
func CreateDummyDeviceFiles(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Mknod(filepath.Join(dir, "chardev"), syscall.S_IFCHR|0644, int(mkdev(1, 5))); err != nil { // /dev/zero's major/minor
		t.Fatal(err)
	}
	if err := syscall.Mknod(filepath.Join(dir, "blockdev"), syscall.S_IFBLK|0644, int(mkdev(7, 0))); err != nil { // loop0's major/minor
		t.Fatal(err)
	}
}

// VerifyDummyDeviceFiles checks that dest contains device files with
// the same type and (major, minor) as those CreateDummyDeviceFiles
// wrote under src.
func VerifyDummyDeviceFiles(t *testing.T, src, dest string) {
	t.Helper()
	for _, name := range []string{"chardev", "blockdev"} {
		wantSt, err := os.Stat(filepath.Join(src, name))
		if err != nil {
			t.Fatal(err)
		}
		gotSt, err := os.Stat(filepath.Join(dest, name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		wantSys := wantSt.Sys().(*syscall.Stat_t)
		gotSys := gotSt.Sys().(*syscall.Stat_t)
		if wantSys.Rdev != gotSys.Rdev {
			t.Errorf("%s: rdev mismatch: got %d, want %d", name, gotSys.Rdev, wantSys.Rdev)
		}
		if wantSt.Mode()&os.ModeType != gotSt.Mode()&os.ModeType {
			t.Errorf("%s: mode type mismatch: got %v, want %v", name, gotSt.Mode()&os.ModeType, wantSt.Mode()&os.ModeType)
		}
	}
}

func mkdev(major, minor uint32) uint64 {
	return syscall.Mkdev(major, minor)
}
