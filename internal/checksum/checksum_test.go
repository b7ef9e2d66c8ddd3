package checksum

import (
	"bytes"
	"testing"
)

func TestRollEquivalentToRecompute(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	windowLen := uint32(8)

	var r Roller
	r.Update(data[:windowLen])

	for i := uint32(0); i+windowLen < uint32(len(data)); i++ {
		want := RollingChecksum(data[i+1 : i+1+windowLen])
		r.Roll(data[i], data[i+windowLen], windowLen)
		if got := r.Sum(); got != want {
			t.Fatalf("offset %d: Roll produced %d, want %d (direct recompute)", i, got, want)
		}
	}
}

func TestRollingChecksumDeterministic(t *testing.T) {
	a := RollingChecksum([]byte("hello world"))
	b := RollingChecksum([]byte("hello world"))
	if a != b {
		t.Errorf("RollingChecksum not deterministic: %d != %d", a, b)
	}
	c := RollingChecksum([]byte("hello worle"))
	if a == c {
		t.Errorf("RollingChecksum did not change for different input")
	}
}

func TestByNameKnownAlgorithms(t *testing.T) {
	for _, name := range []string{MD4, MD5, SHA1, SHA256, SHA512, XXH64} {
		algo := ByName(name)
		if algo == nil {
			t.Fatalf("ByName(%q) = nil", name)
		}
		if algo.Name() != name {
			t.Errorf("ByName(%q).Name() = %q", name, algo.Name())
		}
		sum := algo.Sum([]byte("payload"), 12345)
		if len(sum) != algo.Size() {
			t.Errorf("%s: Sum length = %d, want Size() = %d", name, len(sum), algo.Size())
		}
	}
}

func TestByNameUnknown(t *testing.T) {
	if ByName("bogus") != nil {
		t.Error("expected nil for an unrecognized algorithm name")
	}
}

func TestSumIsSeeded(t *testing.T) {
	algo := ByName(MD5)
	a := algo.Sum([]byte("payload"), 1)
	b := algo.Sum([]byte("payload"), 2)
	if bytes.Equal(a, b) {
		t.Error("different seeds produced identical sums")
	}
}

func TestNegotiate(t *testing.T) {
	if got := Negotiate(29, true); got.Name() != MD4 {
		t.Errorf("protocol 29 should negotiate MD4, got %s", got.Name())
	}
	if got := Negotiate(30, false); got.Name() != MD5 {
		t.Errorf("protocol 30 without XXH64 support should negotiate MD5, got %s", got.Name())
	}
	if got := Negotiate(31, true); got.Name() != XXH64 {
		t.Errorf("protocol 31 with XXH64 support should negotiate XXH64, got %s", got.Name())
	}
}
