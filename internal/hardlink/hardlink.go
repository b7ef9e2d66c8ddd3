// Package hardlink tracks which destination path first received the
// bytes for a given (device, inode) pair observed on the source side,
// so later files sharing that pair can be recreated as hardlinks
// instead of being transferred again. Grounded on spec.md's "Hardlinks"
// paragraph (§4) and its "Ownership of cyclic dependencies" note: the
// tracker is a dictionary from (device, inode) to the first
// destination index, indexed into the file list rather than holding
// pointers, mirroring the teacher's preference for index-based
// cross-references in internal/filelist.
package hardlink

// Key identifies a source file by the (device, inode) pair the
// filesystem reports for it. Two files sharing a Key are the same
// inode, i.e. hardlinks of each other on the source.
type Key struct {
	Dev uint64
	Ino uint64
}

// Tracker maps each (device, inode) pair seen so far to the index, in
// the session's file list, of the first entry that transferred its
// content. It is mutated only on the receiver thread, per spec.md's
// "Shared resources" note, so it carries no internal locking.
type Tracker struct {
	first map[Key]int
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{first: make(map[Key]int)}
}

// Observe records that fileIndex is the file-list index of the entry
// with hardlink key k, if k has not been seen before. It reports the
// index of the first entry observed for k and whether this call was
// the first (dup==false) or a repeat (dup==true) requiring a hardlink
// rather than a full transfer.
func (t *Tracker) Observe(k Key, fileIndex int) (firstIndex int, dup bool) {
	if idx, ok := t.first[k]; ok {
		return idx, true
	}
	t.first[k] = fileIndex
	return fileIndex, false
}

// Reset discards all recorded associations, for reuse across sessions.
func (t *Tracker) Reset() {
	clear(t.first)
}

// Len reports how many distinct (device, inode) pairs have been
// observed so far.
func (t *Tracker) Len() int {
	return len(t.first)
}
