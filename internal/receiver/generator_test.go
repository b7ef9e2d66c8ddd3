package receiver

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/oferchen/gorsync/internal/filelist"
	"github.com/oferchen/gorsync/internal/log"
	"github.com/oferchen/gorsync/internal/rsyncwire"
	"github.com/oferchen/gorsync/internal/signature"
)

func TestGenerateFilesRequestsSignatureForNewFile(t *testing.T) {
	dest := t.TempDir()
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	rt := &Transfer{
		Logger:   log.New(io.Discard),
		Opts:     &TransferOpts{},
		Dest:     dest,
		Conn:     conn,
		DestRoot: NewRoot(dest),
	}

	fileList := []*File{
		{Name: "new.txt", Mode: filelist.ModeReg | 0o644, Length: 42},
	}

	if err := rt.GenerateFiles(fileList); err != nil {
		t.Fatal(err)
	}

	idx, err := conn.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0", idx)
	}
	var sh signature.SumHead
	if err := sh.ReadFrom(conn); err != nil {
		t.Fatal(err)
	}
	if sh.ChecksumCount != 0 {
		t.Errorf("ChecksumCount = %d, want 0 for a file with no local copy", sh.ChecksumCount)
	}
	sums, err := signature.ReadBlockSums(conn, sh)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 0 {
		t.Errorf("len(sums) = %d, want 0", len(sums))
	}

	terminator, err := conn.ReadInt32()
	if err != nil {
		t.Fatal(err)
	}
	if terminator != -1 {
		t.Errorf("terminator = %d, want -1", terminator)
	}
}

func TestGenerateFilesRequestsSignatureForExistingFile(t *testing.T) {
	dest := t.TempDir()
	const existing = "the previous contents of this file"
	if err := os.WriteFile(filepath.Join(dest, "old.txt"), []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	rt := &Transfer{
		Logger:   log.New(io.Discard),
		Opts:     &TransferOpts{},
		Dest:     dest,
		Conn:     conn,
		DestRoot: NewRoot(dest),
	}

	fileList := []*File{
		{Name: "old.txt", Mode: filelist.ModeReg | 0o644, Length: int64(len(existing))},
	}
	if err := rt.GenerateFiles(fileList); err != nil {
		t.Fatal(err)
	}

	if _, err := conn.ReadInt32(); err != nil { // idx
		t.Fatal(err)
	}
	var sh signature.SumHead
	if err := sh.ReadFrom(conn); err != nil {
		t.Fatal(err)
	}
	if sh.ChecksumCount == 0 {
		t.Error("expected a non-empty signature for a file with existing local content")
	}
}

func TestGenerateFilesCreatesDirectories(t *testing.T) {
	dest := t.TempDir()
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	rt := &Transfer{
		Logger:   log.New(io.Discard),
		Opts:     &TransferOpts{},
		Dest:     dest,
		Conn:     conn,
		DestRoot: NewRoot(dest),
	}

	fileList := []*File{
		{Name: "sub", Mode: filelist.ModeDir | 0o755},
	}
	if err := rt.GenerateFiles(fileList); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "sub")); err != nil {
		t.Errorf("expected sub directory to be created: %v", err)
	}
}

func TestGenerateFilesDryRunSkipsDirectoryCreation(t *testing.T) {
	dest := t.TempDir()
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	rt := &Transfer{
		Logger:   log.New(io.Discard),
		Opts:     &TransferOpts{DryRun: true},
		Dest:     dest,
		Conn:     conn,
		DestRoot: NewRoot(dest),
	}

	fileList := []*File{
		{Name: "sub", Mode: filelist.ModeDir | 0o755},
	}
	if err := rt.GenerateFiles(fileList); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dest, "sub")); err == nil {
		t.Error("expected no directory to be created in dry-run mode")
	}
}
