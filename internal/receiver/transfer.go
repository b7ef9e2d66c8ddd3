// Package receiver implements the receiver role of an rsync transfer: the
// side that reads file lists and file data from the wire and reconstructs
// files on local disk. Corresponds to rsync/receiver.c.
package receiver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/gorsync/internal/filelist"
	"github.com/oferchen/gorsync/internal/log"
	"github.com/oferchen/gorsync/internal/rsyncmeta"
	"github.com/oferchen/gorsync/internal/rsyncos"
	"github.com/oferchen/gorsync/internal/rsyncwire"
)

// File is the file-list entry type shared with internal/filelist; the
// receiver never needs anything beyond what filelist.File already
// carries.
type File = filelist.File

// TransferOpts carries the subset of rsyncopts.Options the receiver role
// consults. It is a plain struct (rather than *rsyncopts.Options
// directly) so the receiver package has no dependency on the CLI flag
// parser, matching the teacher's separation of concerns.
type TransferOpts struct {
	Verbose bool
	DryRun  bool
	Server  bool

	DeleteMode        bool
	PreserveGid       bool
	PreserveUid       bool
	PreserveLinks     bool
	PreservePerms     bool
	PreserveDevices   bool
	PreserveSpecials  bool
	PreserveTimes     bool
	PreserveHardlinks bool
	PreserveXattrs    bool

	// CompressEnabled mirrors rsyncopts.Options.CompressEnabled(); when
	// set, recvToken decompresses each literal run with the codec named
	// by CompressChoice/CompressLevel instead of reading it raw.
	CompressEnabled bool
	CompressChoice  string
	CompressLevel   int
}

// Transfer holds everything the receiver role needs for one transfer:
// network connection, destination root, and the negotiated options/seed.
type Transfer struct {
	Logger log.Logger
	Opts   *TransferOpts
	Dest   string
	Env    rsyncos.Std
	Conn   *rsyncwire.Conn
	Seed   int32

	// Protocol is the negotiated protocol version, consulted by
	// GenerateFiles for the SignatureLayout block-size cap.
	Protocol int32

	DestRoot *Root

	// IOErrors counts non-fatal filesystem errors encountered while
	// receiving; deleteFiles refuses to run if this is non-zero, the same
	// safety rule rsync's --delete applies.
	IOErrors int
}

// ReceiveFileList reads the encoded file list the sender transmits at the
// start of a transfer and validates it before returning.
func (rt *Transfer) ReceiveFileList() ([]*File, error) {
	fileList, err := filelist.Decode(rt.Conn)
	if err != nil {
		return nil, fmt.Errorf("receiving file list: %w", err)
	}
	if err := filelist.Validate(fileList); err != nil {
		return nil, err
	}
	if rt.DestRoot == nil {
		rt.DestRoot = NewRoot(rt.Dest)
	}
	return fileList, nil
}

func findInFileList(fileList []*File, name string) bool {
	return filelist.FindByName(fileList, name) != nil
}

// setPerms applies the metadata carried on f (mode, times, ownership) to
// the just-written local file, following rsync/rsync.c:set_perms: only the
// aspects the negotiated options ask to preserve are touched.
func (rt *Transfer) setPerms(f *File) error {
	local := filepath.Join(rt.Dest, f.Name)

	if rt.Opts.PreservePerms {
		if err := os.Chmod(local, os.FileMode(f.Mode&0o7777)); err != nil {
			return err
		}
	}

	st, err := rt.DestRoot.Lstat(f.Name)
	if err != nil {
		return err
	}

	if rt.Opts.PreserveUid || rt.Opts.PreserveGid {
		if newSt, err := rt.setUid(f, local, st); err == nil {
			st = newSt
		} else {
			return err
		}
	}

	if rt.Opts.PreserveTimes {
		mtime := timeFromUnix(f.ModTime)
		if err := os.Chtimes(local, mtime, mtime); err != nil {
			return err
		}
	}

	if rt.Opts.PreserveXattrs && len(f.Xattrs) > 0 {
		if err := rsyncmeta.Apply(rsyncmeta.OS{}, local, f.Xattrs); err != nil {
			return fmt.Errorf("applying xattrs to %s: %w", local, err)
		}
	}

	_ = st
	return nil
}

// Root scopes filesystem operations to a destination directory, rejecting
// any relative name that would escape it. It stands in for os.Root (not
// yet used directly; see the TODO in generatoruid.go) while still
// centralizing path-join and traversal checks in one place.
type Root struct {
	base string
}

func NewRoot(base string) *Root {
	return &Root{base: base}
}

func (r *Root) resolve(name string) (string, error) {
	if name == "" {
		name = "."
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("refusing to escape destination root: %q", name)
		}
	}
	return filepath.Join(r.base, name), nil
}

func (r *Root) Open(name string) (*os.File, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (r *Root) Lstat(name string) (os.FileInfo, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Lstat(path)
}

func (r *Root) MkdirAll(name string, perm os.FileMode) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, perm)
}
