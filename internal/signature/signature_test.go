package signature

import (
	"bytes"
	"testing"

	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/rsyncwire"
)

func TestSumSizesSqrootFloor(t *testing.T) {
	sh := SumSizesSqroot(100, 16, 32)
	if sh.BlockLength != minBlockLength {
		t.Errorf("BlockLength = %d, want floor of %d for a small file", sh.BlockLength, minBlockLength)
	}
}

func TestSumSizesSqrootEmptyFile(t *testing.T) {
	sh := SumSizesSqroot(0, 16, 32)
	if sh.ChecksumCount != 0 {
		t.Errorf("ChecksumCount = %d, want 0 for an empty file", sh.ChecksumCount)
	}
}

func TestSumSizesSqrootCountsCoverWholeFile(t *testing.T) {
	const size = 10_000_000
	sh := SumSizesSqroot(size, 16, 32)
	covered := int64(sh.ChecksumCount-1)*int64(sh.BlockLength) + int64(sh.RemainderLength)
	if covered != size {
		t.Errorf("blocks cover %d bytes, want %d", covered, size)
	}
}

func TestGenerateProducesOneBlockSumPerBlock(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 2500)
	sh := SumHead{BlockLength: 1000, ChecksumLength: 16}
	alg := checksum.ByName(checksum.MD5)

	blocks := Generate(data, sh, alg, 0)
	if len(blocks) != 3 {
		t.Fatalf("len(blocks) = %d, want 3 (1000+1000+500)", len(blocks))
	}
	for i, b := range blocks {
		if b.Index != int32(i) {
			t.Errorf("blocks[%d].Index = %d, want %d", i, b.Index, i)
		}
		if len(b.Strong) != 16 {
			t.Errorf("blocks[%d].Strong has length %d, want 16", i, len(b.Strong))
		}
	}
}

func TestBlockSumWireRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0x7}, 3000)
	sh := SumHead{BlockLength: 1000, ChecksumLength: 16}
	alg := checksum.ByName(checksum.MD5)
	want := Generate(data, sh, alg, 42)
	sh.ChecksumCount = int32(len(want))

	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	if err := WriteBlockSums(conn, sh, want); err != nil {
		t.Fatal(err)
	}

	got, err := ReadBlockSums(conn, sh)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d block sums, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Rolling != want[i].Rolling {
			t.Errorf("block %d: rolling checksum mismatch", i)
		}
		if !bytes.Equal(got[i].Strong, want[i].Strong) {
			t.Errorf("block %d: strong checksum mismatch", i)
		}
	}
}

func TestSumHeadWireRoundTrip(t *testing.T) {
	want := SumHead{ChecksumCount: 7, BlockLength: 1000, ChecksumLength: 16, RemainderLength: 234}
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	if err := want.WriteTo(conn); err != nil {
		t.Fatal(err)
	}
	var got SumHead
	if err := got.ReadFrom(conn); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("SumHead round trip = %+v, want %+v", got, want)
	}
}
