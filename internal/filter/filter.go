// Package filter implements rsync's include/exclude rule grammar: pattern
// matching with the shell-glob-plus-** dialect documented in rsync(1)'s
// FILTER RULES section, rule precedence (first match wins), and parsing of
// per-directory merge-file (dir-merge) rules, whose files are not read.
// Corresponds to rsync/exclude.c.
package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/oferchen/gorsync/internal/rsyncwire"
)

// Kind distinguishes an include rule from an exclude rule.
type Kind int

const (
	Exclude Kind = iota
	Include
)

// Rule is one compiled filter rule.
type Rule struct {
	Kind Kind

	Pattern string

	// AnchoredToRoot is true for patterns beginning with "/": they only
	// match relative to the transfer root, not at every directory level.
	AnchoredToRoot bool

	// DirOnly is true for patterns ending with "/": they only match
	// directories.
	DirOnly bool

	// DirMerge names the per-directory merge-file (e.g. ".rsync-filter")
	// of a dir-merge directive. The directive is parsed and carried on the
	// wire, but the file is never read and Match skips the rule, so it
	// adds no rules. A zero value means this is an ordinary pattern rule,
	// not a dir-merge directive.
	DirMerge string
}

// List is an ordered set of rules plus the merge-file directives
// discovered while parsing them. Evaluation stops at the first matching
// rule (spec.md filter engine invariant: "first match wins").
type List struct {
	Filters []Rule
}

// Parse compiles one filter-rule line in rsync's grammar: "+ pattern",
// "- pattern", "include pattern", "exclude pattern", or
// "dir-merge filename" (and its abbreviation "merge,dir- filename" style
// forms are not supported; only the common prefixes below are).
func Parse(line string) (Rule, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Rule{}, fmt.Errorf("empty filter rule")
	}

	var kindTok, rest string
	if i := strings.IndexByte(line, ' '); i > 0 {
		kindTok, rest = line[:i], strings.TrimSpace(line[i+1:])
	} else {
		kindTok = line
	}

	switch kindTok {
	case "+", "include":
		return compilePattern(Include, rest), nil
	case "-", "exclude":
		return compilePattern(Exclude, rest), nil
	case "dir-merge", ".d":
		return Rule{DirMerge: rest}, nil
	default:
		// Bare patterns default to exclude, matching --exclude-from files.
		return compilePattern(Exclude, line), nil
	}
}

func compilePattern(kind Kind, pattern string) Rule {
	r := Rule{Kind: kind, Pattern: pattern}
	if strings.HasPrefix(pattern, "/") {
		r.AnchoredToRoot = true
		r.Pattern = strings.TrimPrefix(pattern, "/")
	}
	if strings.HasSuffix(r.Pattern, "/") {
		r.DirOnly = true
		r.Pattern = strings.TrimSuffix(r.Pattern, "/")
	}
	return r
}

// ParseAll compiles every non-comment, non-blank line of lines into a
// List.
func ParseAll(lines []string) (*List, error) {
	l := &List{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		r, err := Parse(line)
		if err != nil {
			return nil, err
		}
		l.Filters = append(l.Filters, r)
	}
	return l, nil
}

// Match reports whether name (relative to the transfer root, using "/" as
// separator) should be excluded, consulting rules in order and returning
// on the first match (spec.md's documented default: unmatched files are
// included).
func (l *List) Match(name string, isDir bool) bool {
	for _, r := range l.Filters {
		if r.DirMerge != "" {
			continue // dir-merge directives do not themselves match names
		}
		if r.DirOnly && !isDir {
			continue
		}
		if matchPattern(r.Pattern, name, r.AnchoredToRoot) {
			return r.Kind == Exclude
		}
	}
	return false
}

// matchPattern implements rsync's glob dialect: "**" matches any number of
// path segments (including none), "*" matches within a single segment,
// "?" matches one rune within a segment, and an unanchored pattern matches
// at any directory depth.
func matchPattern(pattern, name string, anchored bool) bool {
	if anchored {
		return globMatch(pattern, name)
	}
	segments := strings.Split(name, "/")
	for i := range segments {
		suffix := strings.Join(segments[i:], "/")
		if globMatch(pattern, suffix) {
			return true
		}
		if globMatch(pattern, segments[i]) {
			return true
		}
	}
	return false
}

func globMatch(pattern, name string) bool {
	if strings.Contains(pattern, "**") {
		return doubleStarMatch(pattern, name)
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func doubleStarMatch(pattern, name string) bool {
	parts := strings.SplitN(pattern, "**", 2)
	prefix, suffix := parts[0], ""
	if len(parts) > 1 {
		suffix = parts[1]
	}
	prefix = strings.TrimSuffix(prefix, "/")
	suffix = strings.TrimPrefix(suffix, "/")

	if prefix != "" {
		pOk, _ := path.Match(prefix+"/*", name+"/")
		if !strings.HasPrefix(name, prefix) && !pOk {
			return false
		}
	}
	if suffix == "" {
		return true
	}
	if suffix == "" {
		return true
	}
	return strings.HasSuffix(name, suffix) || globMatch(suffix, name)
}

// RecvFilterList reads the wire-encoded exclusion list a client sends
// before the file list: a sequence of length-prefixed pattern strings
// terminated by a zero-length entry (io.c:send_filter_list / recv side).
func RecvFilterList(c *rsyncwire.Conn) (*List, error) {
	l := &List{}
	for {
		length, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		if length == 0 {
			break
		}
		s, err := readN(c, int(length))
		if err != nil {
			return nil, err
		}
		r, err := Parse(s)
		if err != nil {
			return nil, err
		}
		l.Filters = append(l.Filters, r)
	}
	return l, nil
}

// SendFilterList writes l in the wire format RecvFilterList expects.
func SendFilterList(c *rsyncwire.Conn, l *List) error {
	if l != nil {
		for _, r := range l.Filters {
			line := encodeRule(r)
			if err := c.WriteInt32(int32(len(line))); err != nil {
				return err
			}
			if err := writeN(c, line); err != nil {
				return err
			}
		}
	}
	return c.WriteInt32(0)
}

func encodeRule(r Rule) string {
	if r.DirMerge != "" {
		return "dir-merge " + r.DirMerge
	}
	prefix := "-"
	if r.Kind == Include {
		prefix = "+"
	}
	pattern := r.Pattern
	if r.AnchoredToRoot {
		pattern = "/" + pattern
	}
	if r.DirOnly {
		pattern += "/"
	}
	return prefix + " " + pattern
}

func readN(c *rsyncwire.Conn, n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := c.ReadByte()
		if err != nil {
			return "", err
		}
		buf[i] = b
	}
	return string(buf), nil
}

func writeN(c *rsyncwire.Conn, s string) error {
	for i := 0; i < len(s); i++ {
		if err := c.WriteByte(s[i]); err != nil {
			return err
		}
	}
	return nil
}
