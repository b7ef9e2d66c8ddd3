//go:build !linux && !darwin

package filelist

import "io/fs"

// populateStat is a no-op on platforms without syscall.Stat_t; owner and
// device information simply stays zero.
func populateStat(f *File, info fs.FileInfo) {}
