package filter

import (
	"bytes"
	"testing"

	"github.com/oferchen/gorsync/internal/rsyncwire"
)

func TestParseIncludeExcludeShorthand(t *testing.T) {
	r, err := Parse("+ *.go")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Include || r.Pattern != "*.go" {
		t.Errorf("Parse(+ *.go) = %+v, want Include pattern *.go", r)
	}

	r, err = Parse("- *.o")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Exclude || r.Pattern != "*.o" {
		t.Errorf("Parse(- *.o) = %+v, want Exclude pattern *.o", r)
	}
}

func TestParseLongForm(t *testing.T) {
	r, err := Parse("include build/")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Include || r.Pattern != "build" || !r.DirOnly {
		t.Errorf("Parse(include build/) = %+v, want Include dir-only build", r)
	}
}

func TestParseBarePatternDefaultsToExclude(t *testing.T) {
	r, err := Parse("*.log")
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != Exclude || r.Pattern != "*.log" {
		t.Errorf("Parse(*.log) = %+v, want bare pattern to default to Exclude", r)
	}
}

func TestParseAnchoredAndDirOnly(t *testing.T) {
	r, err := Parse("- /build/")
	if err != nil {
		t.Fatal(err)
	}
	if !r.AnchoredToRoot || !r.DirOnly || r.Pattern != "build" {
		t.Errorf("Parse(- /build/) = %+v, want anchored dir-only pattern build", r)
	}
}

func TestParseDirMerge(t *testing.T) {
	r, err := Parse("dir-merge .rsync-filter")
	if err != nil {
		t.Fatal(err)
	}
	if r.DirMerge != ".rsync-filter" {
		t.Errorf("DirMerge = %q, want .rsync-filter", r.DirMerge)
	}
}

func TestParseAllSkipsCommentsAndBlankLines(t *testing.T) {
	l, err := ParseAll([]string{"", "# comment", "; also a comment", "- *.tmp"})
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Filters) != 1 {
		t.Fatalf("len(Filters) = %d, want 1", len(l.Filters))
	}
}

func TestMatchFirstRuleWins(t *testing.T) {
	l, err := ParseAll([]string{"+ keep.txt", "- *.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Match("keep.txt", false) {
		t.Error("keep.txt should be included by the earlier + rule")
	}
	if !l.Match("drop.txt", false) {
		t.Error("drop.txt should be excluded by the later - rule")
	}
}

func TestMatchUnmatchedDefaultsToIncluded(t *testing.T) {
	l, err := ParseAll([]string{"- *.tmp"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Match("keep.txt", false) {
		t.Error("a file matching no rule should not be excluded")
	}
}

func TestMatchDoubleStarCrossesDirectories(t *testing.T) {
	l, err := ParseAll([]string{"- **/*.log"})
	if err != nil {
		t.Fatal(err)
	}
	if !l.Match("a/b/c.log", false) {
		t.Error("**/*.log should match a nested .log file")
	}
	if !l.Match("c.log", false) {
		t.Error("**/*.log should also match a top-level .log file")
	}
}

func TestMatchDirOnlySkipsNonDirectories(t *testing.T) {
	l, err := ParseAll([]string{"- build/"})
	if err != nil {
		t.Fatal(err)
	}
	if l.Match("build", false) {
		t.Error("a dir-only rule must not match a plain file named build")
	}
	if !l.Match("build", true) {
		t.Error("a dir-only rule must match a directory named build")
	}
}

func TestMatchAnchoredOnlyMatchesAtRoot(t *testing.T) {
	l, err := ParseAll([]string{"- /secret.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if !l.Match("secret.txt", false) {
		t.Error("anchored pattern should match at the transfer root")
	}
	if l.Match("sub/secret.txt", false) {
		t.Error("anchored pattern should not match in a subdirectory")
	}
}

func TestFilterListWireRoundTrip(t *testing.T) {
	l, err := ParseAll([]string{"+ *.go", "- *.o", "- /secret/"})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	if err := SendFilterList(conn, l); err != nil {
		t.Fatal(err)
	}
	got, err := RecvFilterList(conn)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Filters) != 3 {
		t.Fatalf("got %d filters, want 3", len(got.Filters))
	}
	if got.Filters[0].Kind != Include || got.Filters[0].Pattern != "*.go" {
		t.Errorf("Filters[0] = %+v, want Include *.go", got.Filters[0])
	}
	if !got.Filters[2].AnchoredToRoot || !got.Filters[2].DirOnly || got.Filters[2].Pattern != "secret" {
		t.Errorf("Filters[2] = %+v, want anchored dir-only secret", got.Filters[2])
	}
}

func TestFilterListWireRoundTripEmpty(t *testing.T) {
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Reader: &buf, Writer: &buf}
	if err := SendFilterList(conn, nil); err != nil {
		t.Fatal(err)
	}
	got, err := RecvFilterList(conn)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Filters) != 0 {
		t.Errorf("got %d filters for an empty list, want 0", len(got.Filters))
	}
}
