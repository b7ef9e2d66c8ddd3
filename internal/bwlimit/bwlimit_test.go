package bwlimit

import (
	"testing"
	"time"
)

func TestDisabledAtZeroRate(t *testing.T) {
	l := New(0, 0)
	if !l.Disabled() {
		t.Fatal("rate 0 should disable the limiter")
	}
	if got := l.RecommendedReadSize(1 << 20); got != 1<<20 {
		t.Errorf("RecommendedReadSize on disabled limiter = %d, want unchanged", got)
	}
	l.Register(1 << 30) // must not sleep or panic
}

func TestRecommendedReadSizeClampsToBurst(t *testing.T) {
	l := New(1000, 256)
	if got := l.RecommendedReadSize(1000); got != minBurst {
		t.Errorf("RecommendedReadSize = %d, want %d (burst 256 raised to minBurst)", got, minBurst)
	}
	if got := l.RecommendedReadSize(100); got != 100 {
		t.Errorf("RecommendedReadSize = %d, want 100 (below burst)", got)
	}
}

func TestBurstClampedToMinimum(t *testing.T) {
	l := New(10, 0)
	if l.burst != minBurst {
		t.Errorf("burst = %d, want minBurst = %d", l.burst, minBurst)
	}
}

func TestRegisterSleepsProportionalToDebt(t *testing.T) {
	l := New(1000, 1000) // 1000 B/s
	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }

	l.Register(1000) // one second's worth of debt
	if slept <= 0 {
		t.Fatalf("expected a sleep to be recorded, got %v", slept)
	}
	if slept < 900*time.Millisecond || slept > 1100*time.Millisecond {
		t.Errorf("slept = %v, want ~1s", slept)
	}
}

func TestRegisterBelowMinSleepDoesNotSleep(t *testing.T) {
	l := New(1e9, 0) // huge rate: even a big chunk is sub-threshold debt
	var slept time.Duration
	l.sleep = func(d time.Duration) { slept += d }

	l.Register(1024)
	if slept != 0 {
		t.Errorf("slept = %v, want 0 below the minimum-sleep threshold", slept)
	}
}
