package timeutil

import (
	"sync"
	"time"
)

// Clock is the wall clock used for last-active stamps and sweep cutoffs.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the process wall clock.
func System() Clock { return systemClock{} }

var (
	clockMu sync.RWMutex
	clock   Clock = systemClock{}
)

// Now returns the current time from the package clock.
func Now() time.Time {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock.Now()
}

// SetClock swaps the package clock and returns a func restoring the old one.
func SetClock(c Clock) func() {
	clockMu.Lock()
	prev := clock
	clock = c
	clockMu.Unlock()
	return func() {
		clockMu.Lock()
		clock = prev
		clockMu.Unlock()
	}
}

// Fixed is a manually driven clock for tests and replays.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// Set pins the clock to t.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}
