package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/bigschom/ssportal/internal/clock"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	forced []bool
	err    error
}

func (r *recorder) check(_ context.Context, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced = append(r.forced, force)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forced)
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *clock.Fake, *VisibilityState) {
	t.Helper()
	fake := clock.NewFake(epoch)
	vis := NewVisibilityState(true)
	o := New(cfg, fake, vis, zaptest.NewLogger(t).Sugar())
	t.Cleanup(o.Stop)
	return o, fake, vis
}

var testConfig = Config{
	Interval:         2 * time.Minute,
	Throttle:         15 * time.Second,
	StartupDelay:     5 * time.Second,
	VisibilitySettle: 3 * time.Second,
}

func TestOrchestrator_StartupDelayThenInterval(t *testing.T) {
	o, fake, _ := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	fake.Advance(4 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("checks before startup delay = %d, want 0", rec.count())
	}
	fake.Advance(time.Second)
	if rec.count() != 1 {
		t.Fatalf("checks after startup delay = %d, want 1", rec.count())
	}
	fake.Advance(2 * time.Minute)
	if rec.count() != 2 {
		t.Fatalf("checks after first interval = %d, want 2", rec.count())
	}
	fake.Advance(4 * time.Minute)
	if rec.count() != 4 {
		t.Fatalf("checks after three intervals = %d, want 4", rec.count())
	}
	if o.State() != StateIdle {
		t.Fatalf("State = %v, want idle", o.State())
	}
}

func TestOrchestrator_StartTwiceFails(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := o.Start(rec.check, 0); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	if err := New(testConfig, nil, nil, nil).Start(nil, 0); err == nil {
		t.Fatal("Start(nil) returned nil error")
	}
}

func TestOrchestrator_ThrottleAndForce(t *testing.T) {
	o, fake, _ := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if !o.Trigger(false) {
		t.Fatal("first Trigger(false) did not run")
	}
	fake.Advance(10 * time.Second)
	if o.Trigger(false) {
		t.Fatal("Trigger(false) ran inside the throttle window")
	}
	if !o.Trigger(true) {
		t.Fatal("Trigger(true) did not bypass the throttle")
	}
	fake.Advance(16 * time.Second)
	if !o.Trigger(false) {
		t.Fatal("Trigger(false) did not run after the throttle window")
	}
	if got := o.LastCheck(); !got.Equal(epoch.Add(26 * time.Second)) {
		t.Fatalf("LastCheck = %v, want %v", got, epoch.Add(26*time.Second))
	}
}

func TestOrchestrator_StartupCheckThrottledAfterManualCheck(t *testing.T) {
	o, fake, _ := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	o.Trigger(true)
	fake.Advance(5 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("checks = %d, want startup check throttled", rec.count())
	}
}

func TestOrchestrator_HiddenSkipsChecks(t *testing.T) {
	o, fake, vis := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	vis.Set(false)
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	fake.Advance(10 * time.Minute)
	if o.Trigger(true) {
		t.Fatal("Trigger(true) ran while hidden")
	}
	if rec.count() != 0 {
		t.Fatalf("checks while hidden = %d, want 0", rec.count())
	}
}

func TestOrchestrator_VisibleSchedulesForcedCheck(t *testing.T) {
	o, fake, vis := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	fake.Advance(5 * time.Second) // startup check
	vis.Set(false)
	fake.Advance(time.Second)
	vis.Set(true)

	fake.Advance(2 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("checks before settle delay = %d, want 1", rec.count())
	}
	fake.Advance(time.Second)
	if rec.count() != 2 {
		t.Fatalf("checks after settle delay = %d, want 2", rec.count())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.forced[1] {
		t.Fatal("visibility check was not forced")
	}
}

func TestOrchestrator_OverlappingChecksDoNotRun(t *testing.T) {
	o := New(testConfig, clock.Real{}, nil, zaptest.NewLogger(t).Sugar())
	t.Cleanup(o.Stop)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	applied := 0
	check := func(ctx context.Context, force bool) error {
		entered <- struct{}{}
		<-release
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mu.Lock()
		applied++
		mu.Unlock()
		return nil
	}
	if err := o.Start(check, time.Hour); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	done := make(chan bool, 1)
	go func() { done <- o.Trigger(true) }()
	<-entered

	if o.State() != StateChecking {
		t.Fatalf("State = %v, want checking", o.State())
	}
	if o.Trigger(true) {
		t.Fatal("second forced Trigger ran while a check was in flight")
	}
	close(release)
	if ran := <-done; !ran {
		t.Fatal("first Trigger reported not run")
	}

	mu.Lock()
	defer mu.Unlock()
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
}

func TestOrchestrator_StopCancelsInFlightAndTimers(t *testing.T) {
	fake := clock.NewFake(epoch)
	vis := NewVisibilityState(true)
	o := New(testConfig, fake, vis, zaptest.NewLogger(t).Sugar())

	entered := make(chan struct{})
	result := make(chan error, 1)
	check := func(ctx context.Context, force bool) error {
		close(entered)
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}
	if err := o.Start(check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if vis.Listeners() != 1 {
		t.Fatalf("Listeners = %d, want 1", vis.Listeners())
	}

	done := make(chan bool, 1)
	go func() { done <- o.Trigger(true) }()
	<-entered
	o.Stop()

	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Fatalf("in-flight ctx err = %v, want context.Canceled", err)
	}
	if ran := <-done; !ran {
		t.Fatal("Trigger reported not run")
	}
	if o.State() != StateCancelled {
		t.Fatalf("State = %v, want cancelled", o.State())
	}
	if fake.Pending() != 0 {
		t.Fatalf("Pending timers = %d, want 0", fake.Pending())
	}
	if vis.Listeners() != 0 {
		t.Fatalf("Listeners = %d, want 0 after Stop", vis.Listeners())
	}
	if o.Trigger(true) {
		t.Fatal("Trigger ran after Stop")
	}
	o.Stop()
}

func TestOrchestrator_RestartWaitsForSupersededCheck(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig)

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	check := func(ctx context.Context, force bool) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		entered <- struct{}{}
		if n == 1 {
			<-release // ignores cancellation
		}
		return nil
	}
	if err := o.Start(check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	done := make(chan bool, 1)
	go func() { done <- o.Trigger(true) }()
	<-entered

	o.Stop()
	if err := o.Start(check, 0); err != nil {
		t.Fatalf("restart returned error: %v", err)
	}
	if o.Trigger(true) {
		t.Fatal("Trigger ran while the superseded check was still executing")
	}

	close(release)
	if ran := <-done; !ran {
		t.Fatal("superseded Trigger reported not run")
	}
	if o.State() != StateIdle {
		t.Fatalf("State = %v, want idle after restart", o.State())
	}
	if !o.Trigger(true) {
		t.Fatal("Trigger refused after the superseded check returned")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestOrchestrator_RestartAfterStop(t *testing.T) {
	o, fake, _ := newTestOrchestrator(t, testConfig)
	rec := &recorder{}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	o.Stop()
	if err := o.Start(rec.check, time.Minute); err != nil {
		t.Fatalf("restart returned error: %v", err)
	}
	fake.Advance(time.Minute)
	if rec.count() != 2 {
		t.Fatalf("checks after restart = %d, want startup + one interval", rec.count())
	}
}

func TestOrchestrator_FailuresAreSwallowed(t *testing.T) {
	o, fake, _ := newTestOrchestrator(t, testConfig)
	rec := &recorder{err: errors.New("backend down")}
	if err := o.Start(rec.check, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	fake.Advance(5 * time.Second)
	fake.Advance(2 * time.Minute)
	if rec.count() != 2 {
		t.Fatalf("checks = %d, want polling to continue after failures", rec.count())
	}
	if o.State() != StateIdle {
		t.Fatalf("State = %v, want idle", o.State())
	}
}

func TestOrchestrator_RecoversPanics(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, testConfig)
	if err := o.Start(func(context.Context, bool) error { panic("bad check") }, 0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !o.Trigger(true) {
		t.Fatal("Trigger did not run")
	}
	if o.State() != StateIdle {
		t.Fatalf("State = %v, want idle after panic", o.State())
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{StateIdle: "idle", StateChecking: "checking", StateCancelled: "cancelled", State(9): "State(9)"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
