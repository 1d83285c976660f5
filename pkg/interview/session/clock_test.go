package session

import (
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeScheduler captures AfterFunc calls so tests fire timers by hand. The
// returned timers are real but armed far in the future; firing an entry
// first stops the real timer so a callback the code already cancelled is
// never invoked.
type fakeScheduler struct {
	mu      sync.Mutex
	entries []*fakeTimer
}

type fakeTimer struct {
	d     time.Duration
	f     func()
	timer *time.Timer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) *time.Timer {
	t := time.AfterFunc(24*time.Hour, func() {})
	s.mu.Lock()
	s.entries = append(s.entries, &fakeTimer{d: d, f: f, timer: t})
	s.mu.Unlock()
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fire invokes the i-th scheduled callback if the code has not already
// stopped it. Reports whether it ran.
func (s *fakeScheduler) fire(i int) bool {
	s.mu.Lock()
	if i < 0 || i >= len(s.entries) {
		s.mu.Unlock()
		return false
	}
	e := s.entries[i]
	s.mu.Unlock()

	if !e.timer.Stop() {
		return false
	}
	e.f()
	return true
}

// fireLast fires the most recently scheduled pending callback.
func (s *fakeScheduler) fireLast() bool {
	s.mu.Lock()
	i := len(s.entries) - 1
	s.mu.Unlock()
	return s.fire(i)
}
