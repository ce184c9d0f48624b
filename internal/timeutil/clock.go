package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock so event sources and status code can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper cancels a pending AfterFunc call.
type Stopper interface {
	Stop() bool
}

type realClock struct{}

func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// FakeClock is a manually advanced Clock.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	at      time.Time
	fn      func()
	stopped bool
}

func NewFake(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.pending = append(c.pending, timer)
	return timer
}

// Set jumps the clock to value and fires every timer that became due.
func (c *FakeClock) Set(value time.Time) {
	c.mu.Lock()
	c.now = value
	due := make([]*fakeTimer, 0, len(c.pending))
	rest := c.pending[:0]
	for _, timer := range c.pending {
		if timer.stopped {
			continue
		}
		if !timer.at.After(value) {
			due = append(due, timer)
			continue
		}
		rest = append(rest, timer)
	}
	c.pending = rest
	c.mu.Unlock()

	for _, timer := range due {
		timer.fn()
	}
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
