package rsynccompress

import (
	"bytes"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"zlib", "zstd", "lz4"} {
		t.Run(name, func(t *testing.T) {
			codec, err := ByName(name, 0)
			if err != nil {
				t.Fatal(err)
			}

			want := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)

			var buf bytes.Buffer
			wc, err := codec.NewWriter(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := wc.Write(want); err != nil {
				t.Fatal(err)
			}
			if err := wc.Close(); err != nil {
				t.Fatal(err)
			}

			rc, err := codec.NewReader(&buf)
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()

			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("round trip mismatch for codec %s", name)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("bogus", 0); err == nil {
		t.Fatal("expected an error for an unknown codec name")
	}
}

func TestNegotiatePrefersOurFirstSharedChoice(t *testing.T) {
	got := Negotiate([]string{"zstd", "lz4", "zlib"}, []string{"lz4", "zlib"})
	if got != "lz4" {
		t.Errorf("Negotiate = %q, want lz4", got)
	}
}

func TestNegotiateFallsBackToZlib(t *testing.T) {
	got := Negotiate([]string{"zstd"}, []string{"lz4"})
	if got != "zlib" {
		t.Errorf("Negotiate = %q, want zlib fallback", got)
	}
}
