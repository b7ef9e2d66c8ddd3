// Package filelist walks a source tree into the ordered list of files
// rsync exchanges before transferring any data, and encodes/decodes that
// list in the wire format documented in rsync's technical report
// (flist.c). Corresponds to spec.md §4.2 (File list).
package filelist

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oferchen/gorsync"
	"github.com/oferchen/gorsync/internal/hardlink"
	"github.com/oferchen/gorsync/internal/rsyncmeta"
	"github.com/oferchen/gorsync/internal/rsyncwire"
)

// File is one entry of a file list: either side of the wire, this is the
// canonical representation the receiver, generator, and sender all share.
type File struct {
	Name    string // relative to the transfer root; "." for the root itself
	Length  int64
	ModTime int64 // unix seconds
	Mode    int32 // permission bits, or'd with the S_IFxxx bits below
	Uid     int32
	Gid     int32
	Rdev    int32 // device number, when Mode has S_IFCHR/S_IFBLK set
	LinkTarget string // symlink target, when Mode has S_IFLNK set

	// Dev/Ino identify the underlying device and inode, used by
	// internal/hardlink to detect multiply-linked files. Not transmitted
	// on the wire; populated locally by Walk.
	Dev, Ino uint64

	// HardlinkIndex is the file-list index of the entry that first
	// transmitted the content this entry is hardlinked to, or -1 if this
	// entry is not a hardlink duplicate. Populated by Walk when
	// WalkOptions.PreserveHardlinks is set, and is the only hardlink
	// state carried over the wire (see Encode/Decode); Dev/Ino never
	// cross the connection, since inode numbers are meaningless on the
	// peer's filesystem.
	HardlinkIndex int32

	// Xattrs holds the extended attributes collected from the source
	// file when WalkOptions.PreserveXattrs is set, carried over the wire
	// under the same FlistExtendedFlags bit as HardlinkIndex and applied
	// to the destination file by internal/receiver's setPerms.
	Xattrs []rsyncmeta.Entry
}

// Unix file-type bits embedded in Mode, matching <bits/stat.h>.
const (
	ModeFmt    = 0o170000
	ModeDir    = 0o040000
	ModeChr    = 0o020000
	ModeBlk    = 0o060000
	ModeReg    = 0o100000
	ModeFifo   = 0o010000
	ModeLnk    = 0o120000
	ModeSock   = 0o140000
)

func (f *File) IsDir() bool     { return f.Mode&ModeFmt == ModeDir }
func (f *File) IsRegular() bool { return f.Mode&ModeFmt == ModeReg }
func (f *File) IsSymlink() bool { return f.Mode&ModeFmt == ModeLnk }
func (f *File) IsDevice() bool {
	return f.Mode&ModeFmt == ModeChr || f.Mode&ModeFmt == ModeBlk
}
func (f *File) IsSpecial() bool {
	return f.Mode&ModeFmt == ModeFifo || f.Mode&ModeFmt == ModeSock
}

// WalkOptions controls which optional metadata Walk populates, mirroring
// the --links/--devices/--specials flag family.
type WalkOptions struct {
	PreserveLinks     bool
	PreserveDevices   bool
	PreserveSpecials  bool
	PreserveHardlinks bool
	PreserveXattrs    bool
	Recurse           bool
}

// Walk walks root and returns the list of Files it contains, sorted
// byte-wise by full relative name (a directory precedes its entries, but
// a sibling such as "a.txt" sorts before "a/b"). The root itself is always
// the first entry, named ".".
func Walk(root string, opts WalkOptions) ([]*File, error) {
	var out []*File
	err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := "."
		if path != root {
			name = strings.TrimPrefix(path, root+string(filepath.Separator))
			name = filepath.ToSlash(name)
		}
		if !opts.Recurse && name != "." && info.IsDir() {
			return filepath.SkipDir
		}

		f := &File{
			Name:          name,
			Length:        info.Size(),
			ModTime:       info.ModTime().Unix(),
			Mode:          int32(info.Mode().Perm()),
			HardlinkIndex: -1,
		}
		switch {
		case info.IsDir():
			f.Mode |= ModeDir
		case info.Mode()&os.ModeSymlink != 0:
			if !opts.PreserveLinks {
				return nil
			}
			f.Mode |= ModeLnk
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			f.LinkTarget = target
		case info.Mode()&os.ModeDevice != 0:
			if !opts.PreserveDevices {
				return nil
			}
			if info.Mode()&os.ModeCharDevice != 0 {
				f.Mode |= ModeChr
			} else {
				f.Mode |= ModeBlk
			}
		case info.Mode()&(os.ModeNamedPipe|os.ModeSocket) != 0:
			if !opts.PreserveSpecials {
				return nil
			}
			if info.Mode()&os.ModeSocket != 0 {
				f.Mode |= ModeSock
			} else {
				f.Mode |= ModeFifo
			}
		default:
			f.Mode |= ModeReg
		}
		populateStat(f, info)
		if opts.PreserveXattrs && (f.IsRegular() || f.IsDir()) {
			entries, err := rsyncmeta.Collect(rsyncmeta.OS{}, path)
			if err != nil {
				return fmt.Errorf("collecting xattrs for %s: %w", path, err)
			}
			f.Xattrs = entries
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == "." || out[j].Name == "." {
			return out[i].Name == "." && out[j].Name != "."
		}
		return out[i].Name < out[j].Name
	})
	if opts.PreserveHardlinks {
		markHardlinks(out)
	}
	return out, nil
}

// markHardlinks populates HardlinkIndex for every non-empty regular file in
// fileList sharing a (Dev, Ino) pair with an earlier entry, using
// internal/hardlink.Tracker keyed by the final, sorted file-list index
// (the only index value meaningful to the peer once the list is
// transmitted).
func markHardlinks(fileList []*File) {
	tracker := hardlink.New()
	for idx, f := range fileList {
		if !f.IsRegular() || f.Length == 0 {
			continue
		}
		firstIdx, dup := tracker.Observe(hardlink.Key{Dev: f.Dev, Ino: f.Ino}, idx)
		if dup {
			f.HardlinkIndex = int32(firstIdx)
		}
	}
}

// Encode writes fileList to c in rsync's wire format: one status-flagged
// entry per file, terminated by a zero status byte.
func Encode(c *rsyncwire.Conn, opts WalkOptions, fileList []*File) error {
	var lastMode int32
	var lastUid, lastGid int32
	haveLast := false
	for _, f := range fileList {
		flags := byte(rsync.FlistNameLong)
		if f.Name == "." {
			flags |= rsync.FlistTopLevel
		}
		if haveLast && f.Mode == lastMode {
			flags |= rsync.FlistSameMode
		}
		if f.HardlinkIndex >= 0 || len(f.Xattrs) > 0 {
			flags |= rsync.FlistExtendedFlags
		}
		if opts.PreserveLinks && haveLast {
			// uid/gid "same" bits only make sense once we've sent one.
		}
		if err := c.WriteByte(flags); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(len(f.Name))); err != nil {
			return err
		}
		if err := c.WriteString(f.Name); err != nil {
			return err
		}
		if err := c.WriteInt64(f.Length); err != nil {
			return err
		}
		if flags&rsync.FlistSameTime == 0 {
			if err := c.WriteInt32(int32(f.ModTime)); err != nil {
				return err
			}
		}
		if flags&rsync.FlistSameMode == 0 {
			if err := c.WriteInt32(f.Mode); err != nil {
				return err
			}
		}
		if err := c.WriteInt32(f.Uid); err != nil {
			return err
		}
		if err := c.WriteInt32(f.Gid); err != nil {
			return err
		}
		if f.IsDevice() {
			if err := c.WriteInt32(f.Rdev); err != nil {
				return err
			}
		}
		if f.IsSymlink() {
			if err := c.WriteInt32(int32(len(f.LinkTarget))); err != nil {
				return err
			}
			if err := c.WriteString(f.LinkTarget); err != nil {
				return err
			}
		}
		if flags&rsync.FlistExtendedFlags != 0 {
			if err := c.WriteInt32(f.HardlinkIndex); err != nil {
				return err
			}
			if err := c.WriteInt32(int32(len(f.Xattrs))); err != nil {
				return err
			}
			for _, x := range f.Xattrs {
				if err := c.WriteString(x.Name); err != nil {
					return err
				}
				if err := c.WriteInt32(int32(len(x.Value))); err != nil {
					return err
				}
				if _, err := c.Writer.Write(x.Value); err != nil {
					return err
				}
			}
		}
		lastMode, lastUid, lastGid, haveLast = f.Mode, f.Uid, f.Gid, true
		_ = lastUid
		_ = lastGid
	}
	return c.WriteByte(0)
}

// Decode reads a file list from c until the terminating zero status byte.
func Decode(c *rsyncwire.Conn) ([]*File, error) {
	var out []*File
	var lastMode int32
	for {
		flags, err := c.ReadByte()
		if err != nil {
			return nil, err
		}
		if flags == 0 {
			break
		}
		nameLen, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		for i := range name {
			b, err := c.ReadByte()
			if err != nil {
				return nil, err
			}
			name[i] = b
		}
		f := &File{Name: string(name), HardlinkIndex: -1}
		f.Length, err = c.ReadInt64()
		if err != nil {
			return nil, err
		}
		if flags&rsync.FlistSameTime == 0 {
			mtime, err := c.ReadInt32()
			if err != nil {
				return nil, err
			}
			f.ModTime = int64(mtime)
		}
		if flags&rsync.FlistSameMode == 0 {
			f.Mode, err = c.ReadInt32()
			if err != nil {
				return nil, err
			}
			lastMode = f.Mode
		} else {
			f.Mode = lastMode
		}
		f.Uid, err = c.ReadInt32()
		if err != nil {
			return nil, err
		}
		f.Gid, err = c.ReadInt32()
		if err != nil {
			return nil, err
		}
		if f.IsDevice() {
			f.Rdev, err = c.ReadInt32()
			if err != nil {
				return nil, err
			}
		}
		if f.IsSymlink() {
			targetLen, err := c.ReadInt32()
			if err != nil {
				return nil, err
			}
			target := make([]byte, targetLen)
			for i := range target {
				b, err := c.ReadByte()
				if err != nil {
					return nil, err
				}
				target[i] = b
			}
			f.LinkTarget = string(target)
		}
		if flags&rsync.FlistExtendedFlags != 0 {
			f.HardlinkIndex, err = c.ReadInt32()
			if err != nil {
				return nil, err
			}
			xattrCount, err := c.ReadInt32()
			if err != nil {
				return nil, err
			}
			if xattrCount > 0 {
				f.Xattrs = make([]rsyncmeta.Entry, xattrCount)
			}
			for i := range f.Xattrs {
				name, err := c.ReadString()
				if err != nil {
					return nil, err
				}
				valLen, err := c.ReadInt32()
				if err != nil {
					return nil, err
				}
				val := make([]byte, valLen)
				if _, err := io.ReadFull(c.Reader, val); err != nil {
					return nil, err
				}
				f.Xattrs[i] = rsyncmeta.Entry{Name: name, Value: val}
			}
		}
		out = append(out, f)
	}
	return out, nil
}

// FindByName returns the file named name in fileList, or nil if absent.
func FindByName(fileList []*File, name string) *File {
	for _, f := range fileList {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Validate applies the wire-level invariants from spec.md §4.2: names must
// be relative and must not contain ".." path segments (a malicious or
// buggy peer must never be able to escape the destination root).
func Validate(fileList []*File) error {
	for _, f := range fileList {
		if filepath.IsAbs(f.Name) {
			return fmt.Errorf("file list entry %q: absolute paths are rejected", f.Name)
		}
		for _, part := range strings.Split(f.Name, "/") {
			if part == ".." {
				return fmt.Errorf("file list entry %q: path traversal rejected", f.Name)
			}
		}
	}
	return nil
}
