package receiver

import (
	"os"

	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/signature"
)

// GenerateFiles walks fileList and, for each regular file, computes the
// signature of whatever local copy already exists (or an empty signature
// for a brand new file) and sends it to the sender so it can compute a
// delta. Corresponds to rsync/generator.c:generate_files; runs
// concurrently with RecvFiles over the same connection, one goroutine
// generating signature requests while the other consumes the resulting
// data tokens (see Do in do.go).
func (rt *Transfer) GenerateFiles(fileList []*File) error {
	alg := checksum.ByName(checksum.MD4)

	for idx, f := range fileList {
		switch {
		case f.IsDir():
			if rt.Opts.DryRun {
				continue
			}
			if err := rt.DestRoot.MkdirAll(f.Name, os.FileMode(f.Mode&0o7777)|0o700); err != nil {
				rt.IOErrors++
				rt.Logger.Printf("mkdir %s: %v", f.Name, err)
			}
			continue
		case f.IsSymlink():
			if rt.Opts.DryRun || !rt.Opts.PreserveLinks {
				continue
			}
			if err := rt.restoreSymlink(f); err != nil {
				rt.IOErrors++
				rt.Logger.Printf("symlink %s: %v", f.Name, err)
			}
			continue
		case !f.IsRegular():
			continue
		}

		if rt.Opts.PreserveHardlinks && f.HardlinkIndex >= 0 {
			// A hardlink duplicate of an earlier entry: no signature
			// request or data transfer needed, linkHardlinks recreates
			// it once the earlier entry has been fully received.
			continue
		}

		sh, sums := rt.localSignature(f, alg)

		if err := rt.Conn.WriteInt32(int32(idx)); err != nil {
			return err
		}
		if err := sh.WriteTo(rt.Conn); err != nil {
			return err
		}
		if err := signature.WriteBlockSums(rt.Conn, sh, sums); err != nil {
			return err
		}
	}

	return rt.Conn.WriteInt32(-1)
}

// localSignature builds the block signature of the file's existing local
// copy, or an all-zero-block signature (forcing the sender to transmit
// the whole file as literal data) when no local copy exists yet.
func (rt *Transfer) localSignature(f *File, alg checksum.StrongAlgorithm) (signature.SumHead, []signature.BlockSum) {
	local, err := rt.DestRoot.Open(f.Name)
	if err != nil {
		return signature.SumSizesSqroot(0, alg.Size(), rt.Protocol), nil
	}
	defer local.Close()

	st, err := local.Stat()
	if err != nil || !st.Mode().IsRegular() {
		return signature.SumSizesSqroot(0, alg.Size(), rt.Protocol), nil
	}

	sh := signature.SumSizesSqroot(st.Size(), alg.Size(), rt.Protocol)
	data := make([]byte, st.Size())
	if _, err := local.ReadAt(data, 0); err != nil && st.Size() > 0 {
		rt.Logger.Printf("reading %s for signature: %v", f.Name, err)
		return signature.SumSizesSqroot(0, alg.Size(), rt.Protocol), nil
	}
	return sh, signature.Generate(data, sh, alg, rt.Seed)
}

func (rt *Transfer) restoreSymlink(f *File) error {
	local, err := rt.DestRoot.resolve(f.Name)
	if err != nil {
		return err
	}
	os.Remove(local)
	return symlink(f.LinkTarget, local)
}
