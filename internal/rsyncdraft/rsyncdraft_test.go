package rsyncdraft

import "testing"

func TestParseBundledShortFlags(t *testing.T) {
	opts, remaining, err := Parse([]string{"--server", "--sender", "-logDtpr", "."})
	if err != nil {
		t.Fatal(err)
	}
	if !opts.Server || !opts.Sender {
		t.Fatalf("opts = %+v, want Server and Sender set", opts)
	}
	if !opts.PreserveLinks || !opts.PreservePerms || !opts.PreserveTimes || !opts.Recurse {
		t.Fatalf("opts = %+v, want l/p/t/r all set from the bundled cluster", opts)
	}
	if !opts.PreserveDevices || !opts.PreserveSpecials {
		t.Fatalf("opts = %+v, want D to imply devices+specials", opts)
	}
	if len(remaining) != 1 || remaining[0] != "." {
		t.Errorf("remaining = %v, want [\".\"]", remaining)
	}
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	if _, _, err := Parse([]string{"--totally-unknown-flag"}); err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}
