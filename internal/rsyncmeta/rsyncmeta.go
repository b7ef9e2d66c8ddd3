// Package rsyncmeta propagates extended attributes (and, through the
// same xattr-based encoding rsync itself uses, POSIX ACLs) between
// source and destination files. Grounded on SPEC_FULL.md §4.11, which
// names github.com/pkg/xattr as the library and the teacher's
// //go:build linux || darwin split (internal/receiver/generatorsymlink.go)
// as the platform-support pattern to follow.
package rsyncmeta

// XattrStore reads and writes a file's extended attributes. Get returns
// the stored value for one attribute name; Set stores one; List
// enumerates the attribute names present on path.
type XattrStore interface {
	Get(path, name string) ([]byte, error)
	Set(path, name string, val []byte) error
	List(path string) ([]string, error)
}

// Entry is one extended attribute captured from a source file for
// later replay on the destination.
type Entry struct {
	Name  string
	Value []byte
}

// Collect gathers every extended attribute set on path using store.
func Collect(store XattrStore, path string) ([]Entry, error) {
	names, err := store.List(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		val, err := store.Get(path, name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Value: val})
	}
	return entries, nil
}

// Apply replays entries onto path using store, overwriting any
// existing values with the same names.
func Apply(store XattrStore, path string, entries []Entry) error {
	for _, e := range entries {
		if err := store.Set(path, e.Name, e.Value); err != nil {
			return err
		}
	}
	return nil
}
