//go:build !(linux || darwin)

package rsyncmeta

import "fmt"

// OS is a no-op stub on platforms without supported extended-attribute
// syscalls.
type OS struct{}

func (OS) Get(path, name string) ([]byte, error) {
	return nil, fmt.Errorf("rsyncmeta: xattrs not supported on this platform")
}
func (OS) Set(path, name string, val []byte) error {
	return fmt.Errorf("rsyncmeta: xattrs not supported on this platform")
}
func (OS) List(path string) ([]string, error) { return nil, nil }
