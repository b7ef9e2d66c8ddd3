// Package rsyncos abstracts the process environment (standard streams,
// logging, sandboxing toggles) so that the rest of the module never touches
// os.Stdin/os.Stdout/os.Stderr or log.Printf directly. This mirrors the
// teacher's internal/rsyncos package: every entry point takes an *Env (or
// the read-only Std view of one) instead of reaching into package os.
package rsyncos

import (
	"io"
	"log"
)

// Std is the read-only subset of Env that transfer code needs: the three
// standard streams plus a logger. Command dispatch code gets the full Env,
// which additionally carries process-lifecycle flags.
type Std struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Env is the full process environment threaded through maincmd. Restrict
// and DontRestrict govern whether internal/restrict applies a landlock
// sandbox before touching the filesystem.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// DontRestrict disables the landlock sandbox even when the platform
	// supports it. Set by --gorsync.dont-restrict or when a parent process
	// already applied a ruleset.
	DontRestrict bool
}

// Std returns the read-only view of this environment.
func (e *Env) Std() Std {
	return Std{Stdin: e.Stdin, Stdout: e.Stdout, Stderr: e.Stderr}
}

// Restrict reports whether the filesystem sandbox should be applied.
func (e *Env) Restrict() bool {
	return !e.DontRestrict
}

// Logf writes a formatted diagnostic line to Stderr, falling back to the
// standard logger's default writer when Stderr is nil.
func (e *Env) Logf(format string, args ...any) {
	if e.Stderr == nil {
		log.Printf(format, args...)
		return
	}
	log.New(e.Stderr, "", log.LstdFlags).Printf(format, args...)
}

// Logf writes a formatted diagnostic line to Stderr, the same as Env.Logf.
func (s Std) Logf(format string, args ...any) {
	if s.Stderr == nil {
		log.Printf(format, args...)
		return
	}
	log.New(s.Stderr, "", log.LstdFlags).Printf(format, args...)
}
