// Package bwlimit implements the token-bucket bandwidth limiter shared
// between the sender-side writer and the receiver-side reader, per
// spec.md's description of a single limiter instance guarded by one
// lock so both directions of a session throttle against the same
// budget. Grounded on the teacher's own throttling-free I/O path
// (internal/rsyncwire.CountingReader/CountingWriter) which this package
// wraps rather than replaces.
package bwlimit

import (
	"sync"
	"time"
)

// minBurst is the smallest burst size the limiter will use regardless
// of how small a rate is configured, matching spec.md §4.9's "clamped
// to a minimum of 512".
const minBurst = 512

// minSleep is the smallest debt, expressed as a duration, worth
// sleeping for. Below this the limiter just keeps accruing debt rather
// than taking a sub-scheduler-resolution nap.
const minSleep = 100 * time.Microsecond

// Limiter throttles throughput to a target rate in bytes per second. A
// Limiter with rate 0 is disabled: RecommendedReadSize returns desired
// unchanged and Register never sleeps. The zero value is a disabled
// limiter.
type Limiter struct {
	mu sync.Mutex

	rateBytesPerSec float64
	burst           int
	debtBytes       float64
	now             func() time.Time
	sleep           func(time.Duration)
}

// New returns a Limiter enforcing rateBytesPerSec, with a burst size of
// burst bytes (0 selects a burst equal to the rate, i.e. roughly one
// second's worth of data). A rate of 0 disables throttling entirely,
// matching rsync's --bwlimit=0.
func New(rateBytesPerSec float64, burst int) *Limiter {
	if burst <= 0 {
		burst = int(rateBytesPerSec)
	}
	if burst < minBurst {
		burst = minBurst
	}
	return &Limiter{
		rateBytesPerSec: rateBytesPerSec,
		burst:           burst,
		now:             time.Now,
		sleep:           time.Sleep,
	}
}

// Disabled reports whether this limiter applies no throttling.
func (l *Limiter) Disabled() bool {
	return l == nil || l.rateBytesPerSec <= 0
}

// RecommendedReadSize returns the largest chunk size the caller should
// read or write in one go: min(desired, burst). Calling this on a
// disabled limiter returns desired unchanged.
func (l *Limiter) RecommendedReadSize(desired int) int {
	if l.Disabled() {
		return desired
	}
	if desired > l.burst {
		return l.burst
	}
	return desired
}

// Register records that n bytes were just transferred, accruing debt
// against the rate and sleeping when the accumulated debt exceeds the
// minimum-sleep threshold. Safe for concurrent use by both transfer
// directions of a session.
func (l *Limiter) Register(n int) {
	if l.Disabled() || n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.debtBytes += float64(n)
	debtSeconds := l.debtBytes / l.rateBytesPerSec
	if debtSeconds*float64(time.Second) < float64(minSleep) {
		return
	}

	sleepFor := time.Duration(debtSeconds * float64(time.Second))
	l.sleep(sleepFor)
	l.debtBytes -= sleepFor.Seconds() * l.rateBytesPerSec
	if l.debtBytes < 0 {
		l.debtBytes = 0
	}
}
