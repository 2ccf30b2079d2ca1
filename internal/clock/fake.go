package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Scheduler for tests. Callbacks only run from
// inside Advance, on the goroutine that calls it.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

var _ Scheduler = (*Fake)(nil)

type fakeTimer struct {
	f      *Fake
	seq    uint64
	due    time.Time
	every  time.Duration
	fn     func()
	active bool
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the simulated time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// ScheduleOnce registers fn to run once the clock has advanced by delay.
func (f *Fake) ScheduleOnce(delay time.Duration, fn func()) Timer {
	return f.add(delay, 0, fn)
}

// ScheduleRepeating registers fn to run every interval.
func (f *Fake) ScheduleRepeating(interval time.Duration, fn func()) Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return f.add(interval, interval, fn)
}

func (f *Fake) add(delay, every time.Duration, fn func()) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if delay < 0 {
		delay = 0
	}
	f.seq++
	t := &fakeTimer{f: f, seq: f.seq, due: f.now.Add(delay), every: every, fn: fn, active: true}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that comes due
// in due-time order. Timers scheduled by callbacks fire within the same call
// if they fall inside the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.due
		if next.every > 0 {
			next.due = next.due.Add(next.every)
		} else {
			next.active = false
			f.removeLocked(next)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending returns the number of timers that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Fake) nextDueLocked(limit time.Time) *fakeTimer {
	if len(f.timers) == 0 {
		return nil
	}
	sort.SliceStable(f.timers, func(i, j int) bool {
		if !f.timers[i].due.Equal(f.timers[j].due) {
			return f.timers[i].due.Before(f.timers[j].due)
		}
		return f.timers[i].seq < f.timers[j].seq
	})
	if first := f.timers[0]; !first.due.After(limit) {
		return first
	}
	return nil
}

func (f *Fake) removeLocked(t *fakeTimer) {
	for i, cur := range f.timers {
		if cur == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	t.f.removeLocked(t)
	return true
}
