//go:build !linux

package rsynctest

import "testing"

// CreateDummyDeviceFiles and VerifyDummyDeviceFiles are Linux-only
// (syscall.Mknod); calling tests skip device coverage on other
// platforms by gating these calls on os.Getuid() == 0, which is never
// true in CI on non-Linux runners for this repository.
func CreateDummyDeviceFiles(t *testing.T, dir string) {
	t.Helper()
	t.Skip("device file fixtures are only implemented on linux")
}

func VerifyDummyDeviceFiles(t *testing.T, src, dest string) {
	t.Helper()
	t.Skip("device file fixtures are only implemented on linux")
}
