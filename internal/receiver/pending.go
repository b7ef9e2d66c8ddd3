package receiver

import "github.com/google/renameio/v2"

// pendingFile wraps renameio's atomic write-then-rename pattern: data is
// written to a temp file in the same directory as the destination, and
// only becomes visible at the destination path once CloseAtomicallyReplace
// succeeds (spec.md §4.7 atomic commit invariant). Cleanup removes the
// temp file if it was never committed.
type pendingFile struct {
	*renameio.PendingFile
}

func newPendingFile(path string) (*pendingFile, error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithExistingPermissions(), renameio.WithPermissions(0o644))
	if err != nil {
		return nil, err
	}
	return &pendingFile{PendingFile: pf}, nil
}

// CloseAtomicallyReplace commits the pending file to its final path.
func (p *pendingFile) CloseAtomicallyReplace() error {
	return p.PendingFile.CloseAtomicallyReplace()
}

// Cleanup removes the temp file if CloseAtomicallyReplace was never
// called (or failed); safe to call after a successful commit too.
func (p *pendingFile) Cleanup() {
	p.PendingFile.Cleanup()
}
