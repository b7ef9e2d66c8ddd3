package match

import (
	"bytes"
	"testing"

	"github.com/oferchen/gorsync/internal/checksum"
	"github.com/oferchen/gorsync/internal/signature"
)

func TestSequenceIdenticalFileIsAllBlockTokens(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 3000)
	sh := signature.SumHead{BlockLength: 1000, ChecksumLength: 16}
	alg := checksum.ByName(checksum.MD5)
	const seed = 99

	sums := signature.Generate(data, sh, alg, seed)
	sh.ChecksumCount = int32(len(sums))

	tokens := Sequence(data, sh, sums, alg, seed)
	if len(tokens) != 3 {
		t.Fatalf("len(tokens) = %d, want 3 block-match tokens, got %+v", len(tokens), tokens)
	}
	for i, tok := range tokens {
		if tok.Block != int32(i) {
			t.Errorf("tokens[%d].Block = %d, want %d", i, tok.Block, i)
		}
		if tok.Literal != nil {
			t.Errorf("tokens[%d] unexpectedly carries literal data", i)
		}
	}
}

func TestSequenceEntirelyDifferentFileIsOneLiteralToken(t *testing.T) {
	basis := bytes.Repeat([]byte{0x01}, 2000)
	sh := signature.SumHead{BlockLength: 1000, ChecksumLength: 16}
	alg := checksum.ByName(checksum.MD5)
	sums := signature.Generate(basis, sh, alg, 0)
	sh.ChecksumCount = int32(len(sums))

	newData := bytes.Repeat([]byte{0x02}, 2000)
	tokens := Sequence(newData, sh, sums, alg, 0)

	for _, tok := range tokens {
		if tok.Block >= 0 {
			t.Fatalf("unexpected block match against entirely different data: %+v", tok)
		}
	}
	var literal []byte
	for _, tok := range tokens {
		literal = append(literal, tok.Literal...)
	}
	if !bytes.Equal(literal, newData) {
		t.Error("concatenated literal tokens do not reconstruct the original data")
	}
}

func TestSequenceChangedMiddleProducesLiteralBetweenMatches(t *testing.T) {
	basis := append(append(bytes.Repeat([]byte{0xA}, 1000), bytes.Repeat([]byte{0xB}, 1000)...), bytes.Repeat([]byte{0xC}, 1000)...)
	sh := signature.SumHead{BlockLength: 1000, ChecksumLength: 16}
	alg := checksum.ByName(checksum.MD5)
	sums := signature.Generate(basis, sh, alg, 0)
	sh.ChecksumCount = int32(len(sums))

	modified := append(append(bytes.Repeat([]byte{0xA}, 1000), bytes.Repeat([]byte{0xD}, 1000)...), bytes.Repeat([]byte{0xC}, 1000)...)
	tokens := Sequence(modified, sh, sums, alg, 0)

	var haveBlock0, haveBlock2, haveLiteral bool
	for _, tok := range tokens {
		switch {
		case tok.Block == 0:
			haveBlock0 = true
		case tok.Block == 2:
			haveBlock2 = true
		case tok.Block < 0:
			haveLiteral = true
		}
	}
	if !haveBlock0 || !haveBlock2 || !haveLiteral {
		t.Fatalf("expected unchanged first/last block matches plus a literal middle section, got %+v", tokens)
	}
}

func TestSequenceEmptyData(t *testing.T) {
	sh := signature.SumHead{BlockLength: 1000, ChecksumLength: 16}
	if tokens := Sequence(nil, sh, nil, checksum.ByName(checksum.MD5), 0); tokens != nil {
		t.Errorf("Sequence(nil, ...) = %+v, want nil", tokens)
	}
}
