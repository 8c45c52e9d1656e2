package mock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RealClock uses the system time and real timers.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// AfterFunc runs f after d on its own goroutine.
func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Sleep waits for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MockClock is a controllable clock for tests of expiry and scheduling.
//
// Timers created with AfterFunc fire synchronously, in deadline order, during
// the Advance or Set call that moves time past their deadline. Sleep returns
// immediately after advancing the clock by d and records the duration.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
	timers  []*mockTimer
	sleeps  []time.Duration
	delays  []time.Duration
}

type mockTimer struct {
	deadline time.Time
	f        func()
	stopped  bool
	fired    bool
}

// NewMockClock creates a new mock clock initialized to the given time.
// If t is zero, the clock is initialized to the current time.
func NewMockClock(t time.Time) *MockClock {
	if t.IsZero() {
		t = time.Now()
	}
	return &MockClock{current: t}
}

// Now returns the current time according to this mock clock.
func (m *MockClock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AfterFunc registers f to run once the clock has advanced by d.
func (m *MockClock) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &mockTimer{deadline: m.current.Add(d), f: f}
	m.timers = append(m.timers, t)
	m.delays = append(m.delays, d)

	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// Sleep records d, advances the clock by d and returns. It returns ctx.Err()
// without advancing if ctx is already done.
func (m *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.sleeps = append(m.sleeps, d)
	m.mu.Unlock()
	m.Advance(d)
	return nil
}

// Advance moves the clock forward by the given duration and fires due timers.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	due := m.collectDueLocked()
	m.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

// Set sets the clock to a specific time and fires due timers.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	due := m.collectDueLocked()
	m.mu.Unlock()

	for _, timer := range due {
		timer.f()
	}
}

// Add is an alias for Advance for API familiarity.
func (m *MockClock) Add(d time.Duration) {
	m.Advance(d)
}

func (m *MockClock) collectDueLocked() []*mockTimer {
	var due, pending []*mockTimer
	for _, t := range m.timers {
		switch {
		case t.stopped:
		case !t.deadline.After(m.current):
			t.fired = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	m.timers = pending
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due
}

// Sleeps returns the durations passed to Sleep, in call order.
func (m *MockClock) Sleeps() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.sleeps...)
}

// TimerDelays returns the durations passed to AfterFunc, in call order.
func (m *MockClock) TimerDelays() []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.delays...)
}

// LastTimerDelay returns the most recent AfterFunc duration, or 0.
func (m *MockClock) LastTimerDelay() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.delays) == 0 {
		return 0
	}
	return m.delays[len(m.delays)-1]
}

// PendingTimers returns the number of armed, unfired, unstopped timers.
func (m *MockClock) PendingTimers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
