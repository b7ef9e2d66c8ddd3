package version

import (
	"strings"
	"testing"
)

func TestReadReturnsNonEmptyVersionString(t *testing.T) {
	v := Read()
	if v == "" {
		t.Fatal("Read() returned an empty string")
	}
	if !strings.HasPrefix(v, "gorsync") {
		t.Errorf("Read() = %q, want it to start with %q", v, "gorsync")
	}
}
