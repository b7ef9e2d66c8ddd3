//go:build linux || darwin

package rsyncmeta

import "github.com/pkg/xattr"

// OS wraps the platform's native extended-attribute syscalls.
type OS struct{}

func (OS) Get(path, name string) ([]byte, error) { return xattr.Get(path, name) }
func (OS) Set(path, name string, val []byte) error {
	return xattr.Set(path, name, val)
}
func (OS) List(path string) ([]string, error) { return xattr.List(path) }
