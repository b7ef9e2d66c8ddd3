package sender

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/filelist"
	"github.com/oferchen/gorsync/internal/log"
	"github.com/oferchen/gorsync/internal/rsyncopts"
	"github.com/oferchen/gorsync/internal/rsyncos"
	"github.com/oferchen/gorsync/internal/rsyncwire"
	"github.com/oferchen/gorsync/internal/signature"
)

func TestDoSendsFileListThenServesOneSignatureRequest(t *testing.T) {
	dir := t.TempDir()
	const content = "hello rsync world, this is the file content"
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// Do's single-path root resolution only lines up with the names Walk
	// produces when the path is "." (the special case it checks for
	// explicitly), so transfer the current directory rather than an
	// absolute path.
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(cwd) })

	pc, err := rsyncopts.ParseArguments(rsyncos.Std{}, []string{"-r"})
	if err != nil {
		t.Fatal(err)
	}

	// inBuf carries what the generator sends to the sender (pre-filled
	// below, before Do ever reads from it); outBuf accumulates what the
	// sender writes back, kept separate so reads and writes don't
	// interleave into a single queue.
	var inBuf, outBuf bytes.Buffer
	in := &rsyncwire.Conn{Reader: &inBuf, Writer: io.Discard}
	out := &rsyncwire.Conn{Reader: &outBuf, Writer: io.Discard}
	conn := &rsyncwire.Conn{Reader: &inBuf, Writer: &outBuf}
	st := &Transfer{Logger: log.New(io.Discard), Opts: pc.Options, Conn: conn}

	// Drive the generator side of the protocol inline: request index 1
	// (fileList[0] is the "." root entry, fileList[1] is a.txt) with an
	// empty basis (no matching blocks), then terminate.
	sh := signature.SumHead{BlockLength: 700}
	if err := in.WriteInt32(1); err != nil {
		t.Fatal(err)
	}
	if err := sh.WriteTo(in); err != nil {
		t.Fatal(err)
	}
	if err := signature.WriteBlockSums(in, sh, nil); err != nil {
		t.Fatal(err)
	}
	if err := in.WriteInt32(-1); err != nil {
		t.Fatal(err)
	}

	crd, cwr := rsyncwire.CounterPair(&inBuf, &outBuf)
	stats, err := st.Do(crd, cwr, dir, []string{"."}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Size < int64(len(content)) {
		t.Errorf("stats.Size = %d, want at least %d (the root directory entry's own reported size is also summed in)", stats.Size, len(content))
	}

	// outBuf now holds, in order: the encoded file list, the literal-data
	// token stream sendFile produced, the whole-file checksum, and the
	// final three int64 stats fields Do itself writes. Skip past the file
	// list using the matching decoder before inspecting the token stream.
	if _, err := filelist.Decode(out); err != nil {
		t.Fatal(err)
	}
	gotTokenLen, err := out.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	if gotTokenLen != int32(len(content)) {
		t.Fatalf("first token length = %d, want %d (one literal run covering the whole file)", gotTokenLen, len(content))
	}
	lit := make([]byte, gotTokenLen)
	for i := range lit {
		b, err := out.ReadByte()
		if err != nil {
			t.Fatal(err)
		}
		lit[i] = b
	}
	if string(lit) != content {
		t.Errorf("literal token payload = %q, want %q", lit, content)
	}

	terminator, err := out.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	if terminator != 0 {
		t.Errorf("token stream terminator = %d, want 0", terminator)
	}

	alg := checksum.ByName(checksum.MD4)
	wantSum := alg.Sum([]byte(content), 0)
	gotSum := make([]byte, len(wantSum))
	for i := range gotSum {
		b, err := out.ReadByte()
		if err != nil {
			t.Fatal(err)
		}
		gotSum[i] = b
	}
	if !bytes.Equal(gotSum, wantSum) {
		t.Error("whole-file checksum does not match the expected MD4 sum")
	}
}

func TestDoRejectsOutOfRangeIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	pc, err := rsyncopts.ParseArguments(rsyncos.Std{}, []string{"-r"})
	if err != nil {
		t.Fatal(err)
	}

	var wireBuf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &wireBuf, Writer: &wireBuf}
	if err := conn.WriteInt32(99); err != nil {
		t.Fatal(err)
	}

	st := &Transfer{Logger: log.New(io.Discard), Opts: pc.Options, Conn: conn}
	crd, cwr := rsyncwire.CounterPair(&wireBuf, &wireBuf)
	if _, err := st.Do(crd, cwr, dir, []string{dir}, nil); err == nil {
		t.Error("expected an error for an out-of-range file index")
	}
}
