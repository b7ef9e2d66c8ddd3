// Package testlogger adapts testing.T.Logf to an io.Writer, so server
// code that writes diagnostics to an io.Writer can be pointed at a
// test's log instead of os.Stderr.
package testlogger

import (
	"bytes"
	"testing"
)

type writer struct {
	t *testing.T
}

// New returns an io.Writer that forwards each line it receives to
// t.Logf, trimming the trailing newline libraries like log.Logger add.
func New(t *testing.T) *writer {
	return &writer{t: t}
}

func (w *writer) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Logf("%s", bytes.TrimRight(p, "\n"))
	return len(p), nil
}
