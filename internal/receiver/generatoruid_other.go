//go:build !linux && !darwin

package receiver

import "io/fs"

// setUid is a no-op on platforms without POSIX uid/gid semantics.
func (rt *Transfer) setUid(f *File, local string, st fs.FileInfo) (fs.FileInfo, error) {
	return st, nil
}
