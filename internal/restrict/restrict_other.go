//go:build !linux

// Package restrict can be used to restrict further file system access of the
// process if the operating system provides an API for that.
package restrict

// MaybeFileSystem is a no-op on platforms without a landlock-equivalent
// sandboxing API (darwin, the BSDs). Callers still check osenv.Restrict()
// before invoking it, but there is nothing to enforce here yet.
func MaybeFileSystem(roDirs []string, rwDirs []string) error {
	return nil
}
