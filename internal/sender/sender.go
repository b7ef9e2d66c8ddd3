// Package sender implements the sender role of an rsync transfer: the
// side that walks a source tree, transmits the file list, and then
// answers each signature request from the generator with a delta token
// stream. Corresponds to rsync/sender.c.
package sender

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/filelist"
	"github.com/oferchen/gorsync/internal/filter"
	"github.com/oferchen/gorsync/internal/log"
	"github.com/oferchen/gorsync/internal/match"
	"github.com/oferchen/gorsync/internal/rsyncopts"
	"github.com/oferchen/gorsync/internal/rsynccompress"
	"github.com/oferchen/gorsync/internal/rsyncstats"
	"github.com/oferchen/gorsync/internal/rsyncwire"
	"github.com/oferchen/gorsync/internal/signature"
)

// Transfer holds the state needed to act as the sender for one session.
type Transfer struct {
	Logger log.Logger
	Opts   *rsyncopts.Options
	Conn   *rsyncwire.Conn
	Seed   int32
}

// RecvFilterList reads the exclusion/inclusion list the peer sends before
// the file list. It is a thin wrapper over internal/filter so call sites
// in this package and in rsyncd do not need to import filter directly.
func RecvFilterList(c *rsyncwire.Conn) (*filter.List, error) {
	return filter.RecvFilterList(c)
}

// Do walks root (restricted to paths, typically a single top-level
// directory or file), sends the resulting file list, and then serves
// signature requests until the generator sends its -1 terminator.
// Corresponds to rsync/main.c:do_server_sender / client_run's sender arm.
func (st *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, root string, paths []string, filters *filter.List) (*rsyncstats.TransferStats, error) {
	walkOpts := filelist.WalkOptions{
		PreserveLinks:     st.Opts.PreserveLinks(),
		PreserveDevices:   st.Opts.PreserveDevices(),
		PreserveSpecials:  st.Opts.PreserveSpecials(),
		PreserveHardlinks: st.Opts.PreserveHardLinks(),
		PreserveXattrs:    st.Opts.PreserveXattrs(),
		Recurse:           st.Opts.Recurse(),
	}

	var fileList []*filelist.File
	for _, p := range paths {
		walked, err := filelist.Walk(p, walkOpts)
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
		fileList = append(fileList, walked...)
	}

	if filters != nil {
		var filtered []*filelist.File
		for _, f := range fileList {
			if !filters.Match(f.Name, f.IsDir()) {
				filtered = append(filtered, f)
			}
		}
		fileList = filtered
	}

	if err := filelist.Encode(st.Conn, walkOpts, fileList); err != nil {
		return nil, fmt.Errorf("sending file list: %w", err)
	}

	alg := checksum.ByName(checksum.MD4)
	localRoot := root
	if len(paths) == 1 {
		localRoot = filepath.Dir(filepath.Clean(paths[0]))
		if filepath.Base(filepath.Clean(paths[0])) == "." {
			localRoot = paths[0]
		}
	}

	var codec rsynccompress.Codec
	if st.Opts.CompressEnabled() {
		c, err := rsynccompress.ByName(st.Opts.CompressChoice(), st.Opts.CompressLevel())
		if err != nil {
			return nil, fmt.Errorf("compression: %w", err)
		}
		codec = c
	}

	for {
		idx, err := st.Conn.ReadInt32()
		if err != nil {
			return nil, err
		}
		if idx == -1 {
			break
		}
		if int(idx) >= len(fileList) {
			return nil, fmt.Errorf("generator requested out-of-range index %d", idx)
		}
		f := fileList[idx]

		var sh signature.SumHead
		if err := sh.ReadFrom(st.Conn); err != nil {
			return nil, err
		}
		sums, err := signature.ReadBlockSums(st.Conn, sh)
		if err != nil {
			return nil, err
		}

		if err := st.sendFile(localRoot, f, sh, sums, alg, codec); err != nil {
			return nil, fmt.Errorf("sending %s: %w", f.Name, err)
		}
	}

	stats := &rsyncstats.TransferStats{
		Read:    crd.BytesRead,
		Written: cwr.BytesWritten,
	}
	for _, f := range fileList {
		stats.Size += f.Length
	}
	if err := st.Conn.WriteInt64(stats.Read); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Written); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Size); err != nil {
		return nil, err
	}

	return stats, nil
}

// sendFile transmits f's delta token stream: block-match tokens reference
// sh/sums and carry no data, literal tokens carry the bytes the generator's
// basis file lacks. When codec is non-nil (--compress negotiated), each
// literal run is compressed independently before it is framed, so the wire
// token value is the compressed length rather than the literal length;
// internal/receiver.recvToken reverses this with the same codec.
func (st *Transfer) sendFile(root string, f *filelist.File, sh signature.SumHead, sums []signature.BlockSum, alg checksum.StrongAlgorithm, codec rsynccompress.Codec) error {
	path := filepath.Join(root, f.Name)
	data, err := readWholeFile(path)
	if err != nil {
		return err
	}

	tokens := match.Sequence(data, sh, sums, alg, st.Seed)
	for _, t := range tokens {
		if t.Block >= 0 {
			if err := st.Conn.WriteInt32(-(t.Block + 1)); err != nil {
				return err
			}
			continue
		}
		literal := t.Literal
		if codec != nil {
			var buf bytes.Buffer
			cw, err := codec.NewWriter(&buf)
			if err != nil {
				return fmt.Errorf("compress: %w", err)
			}
			if _, err := cw.Write(literal); err != nil {
				return err
			}
			if err := cw.Close(); err != nil {
				return err
			}
			literal = buf.Bytes()
		}
		if err := st.Conn.WriteInt32(int32(len(literal))); err != nil {
			return err
		}
		if _, err := st.Conn.Writer.Write(literal); err != nil {
			return err
		}
	}
	if err := st.Conn.WriteInt32(0); err != nil {
		return err
	}

	whole := alg.Sum(data, st.Seed)
	for _, b := range whole {
		if err := st.Conn.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// readWholeFile loads a file entirely into memory. Corresponds to
// rsync/sender.c:map_file, which memory-maps the source file instead;
// we read it fully because match.Sequence operates on a []byte rather
// than a mapped region.
func readWholeFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
