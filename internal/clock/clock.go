// Package clock abstracts wall-clock time and timer scheduling so that
// time-driven components can run against a simulated clock in tests.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports whether the call stopped a timer
	// that had not yet fired (or, for repeating timers, was still active).
	Stop() bool
}

// Scheduler runs callbacks after a delay or at a fixed interval.
type Scheduler interface {
	Clock
	ScheduleOnce(delay time.Duration, fn func()) Timer
	ScheduleRepeating(interval time.Duration, fn func()) Timer
}

// Real is the production Scheduler backed by the time package.
type Real struct{}

var _ Scheduler = Real{}

// Now returns time.Now.
func (Real) Now() time.Time { return time.Now() }

// ScheduleOnce runs fn on its own goroutine after delay.
func (Real) ScheduleOnce(delay time.Duration, fn func()) Timer {
	return time.AfterFunc(delay, fn)
}

// ScheduleRepeating runs fn every interval until stopped. Ticks that arrive
// while fn is still running are dropped.
func (Real) ScheduleRepeating(interval time.Duration, fn func()) Timer {
	if interval <= 0 {
		interval = time.Second
	}
	t := &repeatingTimer{done: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return t
}

type repeatingTimer struct {
	once sync.Once
	done chan struct{}
}

func (t *repeatingTimer) Stop() bool {
	stopped := false
	t.once.Do(func() {
		close(t.done)
		stopped = true
	})
	return stopped
}
