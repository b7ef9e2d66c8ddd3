package hardlink

import "testing"

func TestFirstOccurrenceIsNotADuplicate(t *testing.T) {
	tr := New()
	idx, dup := tr.Observe(Key{Dev: 1, Ino: 42}, 0)
	if dup {
		t.Fatal("first observation reported as a duplicate")
	}
	if idx != 0 {
		t.Errorf("firstIndex = %d, want 0", idx)
	}
}

func TestRepeatedInodeLinksToFirstIndex(t *testing.T) {
	tr := New()
	tr.Observe(Key{Dev: 1, Ino: 42}, 3)

	idx, dup := tr.Observe(Key{Dev: 1, Ino: 42}, 7)
	if !dup {
		t.Fatal("second observation of the same key should be a duplicate")
	}
	if idx != 3 {
		t.Errorf("firstIndex = %d, want 3 (the original entry)", idx)
	}
}

func TestDistinctDevicesDoNotCollide(t *testing.T) {
	tr := New()
	tr.Observe(Key{Dev: 1, Ino: 42}, 0)
	_, dup := tr.Observe(Key{Dev: 2, Ino: 42}, 1)
	if dup {
		t.Fatal("same inode number on a different device must not be treated as a hardlink")
	}
}

func TestResetClearsState(t *testing.T) {
	tr := New()
	tr.Observe(Key{Dev: 1, Ino: 42}, 0)
	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", tr.Len())
	}
	_, dup := tr.Observe(Key{Dev: 1, Ino: 42}, 5)
	if dup {
		t.Fatal("after Reset, a previously seen key should be treated as new")
	}
}
