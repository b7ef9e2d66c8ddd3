package log

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestNewWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Printf("hello %s", "world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Errorf("output = %q, want it to contain %q", buf.String(), "hello world")
	}
}

func TestSetLoggerAndDefault(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(New(&buf))
	t.Cleanup(func() { SetLogger(New(io.Discard)) })

	Printf("count=%d", 3)
	if !strings.Contains(buf.String(), "count=3") {
		t.Errorf("output = %q, want it to contain %q", buf.String(), "count=3")
	}
}
