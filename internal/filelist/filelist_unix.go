//go:build linux || darwin

package filelist

import (
	"io/fs"
	"syscall"
)

// populateStat fills in the platform-specific fields of f (owner, device,
// inode) from info's underlying syscall.Stat_t.
func populateStat(f *File, info fs.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	f.Uid = int32(st.Uid)
	f.Gid = int32(st.Gid)
	f.Dev = uint64(st.Dev)
	f.Ino = uint64(st.Ino)
	if f.IsDevice() {
		f.Rdev = int32(st.Rdev)
	}
}
