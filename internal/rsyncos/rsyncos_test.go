package rsyncos

import (
	"bytes"
	"strings"
	"testing"
)

func TestEnvStdProjectsStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	in := strings.NewReader("input")
	e := &Env{Stdin: in, Stdout: &out, Stderr: &errOut}
	std := e.Std()
	if std.Stdin != in || std.Stdout != &out || std.Stderr != &errOut {
		t.Error("Std() did not project the same streams as Env")
	}
}

func TestEnvRestrictDefaultsToTrue(t *testing.T) {
	e := &Env{}
	if !e.Restrict() {
		t.Error("Restrict() should default to true when DontRestrict is unset")
	}
	e.DontRestrict = true
	if e.Restrict() {
		t.Error("Restrict() should be false once DontRestrict is set")
	}
}

func TestEnvLogfWritesToStderr(t *testing.T) {
	var errOut bytes.Buffer
	e := &Env{Stderr: &errOut}
	e.Logf("hello %s", "world")
	if !strings.Contains(errOut.String(), "hello world") {
		t.Errorf("Logf output = %q, want it to contain %q", errOut.String(), "hello world")
	}
}

func TestStdLogfWritesToStderr(t *testing.T) {
	var errOut bytes.Buffer
	s := Std{Stderr: &errOut}
	s.Logf("count=%d", 3)
	if !strings.Contains(errOut.String(), "count=3") {
		t.Errorf("Logf output = %q, want it to contain %q", errOut.String(), "count=3")
	}
}
