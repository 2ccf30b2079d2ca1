package poll

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bigschom/ssportal/internal/clock"
)

const (
	defaultInterval         = 2 * time.Minute
	defaultThrottle         = 15 * time.Second
	defaultStartupDelay     = 5 * time.Second
	defaultVisibilitySettle = 3 * time.Second
)

// ErrAlreadyStarted is returned by Start on a running Orchestrator.
var ErrAlreadyStarted = errors.New("poller already started")

// Config controls check cadence. Zero values use defaults.
type Config struct {
	Interval         time.Duration
	Throttle         time.Duration
	StartupDelay     time.Duration
	VisibilitySettle time.Duration
}

// CheckFunc looks for updates. ctx is cancelled when the check is
// superseded or the orchestrator stops; force is set for operator-requested
// and visibility-triggered checks.
type CheckFunc func(ctx context.Context, force bool) error

// State is the orchestrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateChecking
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Orchestrator runs a CheckFunc on a timer while the console is visible,
// with at most one check in flight.
type Orchestrator struct {
	cfg   Config
	sched clock.Scheduler
	vis   Visibility
	log   *zap.SugaredLogger

	mu          sync.Mutex
	check       CheckFunc
	started     bool
	state       State
	root        context.Context
	stopRoot    context.CancelFunc
	startup     clock.Timer
	ticker      clock.Timer
	settle      clock.Timer
	unsubscribe func()
	lastCheck   time.Time
	generation  uint64
	cancelCheck context.CancelFunc
	running     bool // a check is executing, possibly from a stopped generation
}

// New builds an Orchestrator. A nil visibility is always visible.
func New(cfg Config, sched clock.Scheduler, vis Visibility, log *zap.SugaredLogger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = defaultThrottle
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = defaultStartupDelay
	}
	if cfg.VisibilitySettle <= 0 {
		cfg.VisibilitySettle = defaultVisibilitySettle
	}
	if sched == nil {
		sched = clock.Real{}
	}
	if vis == nil {
		vis = NewVisibilityState(true)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{cfg: cfg, sched: sched, vis: vis, log: log}
}

// Start schedules the startup check and the recurring timer. interval zero
// uses the configured interval.
func (o *Orchestrator) Start(check CheckFunc, interval time.Duration) error {
	if check == nil {
		return fmt.Errorf("check function is nil")
	}
	if interval <= 0 {
		interval = o.cfg.Interval
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true
	o.state = StateIdle
	o.check = check
	o.root, o.stopRoot = context.WithCancel(context.Background())
	o.startup = o.sched.ScheduleOnce(o.cfg.StartupDelay, func() { o.run(false) })
	o.ticker = o.sched.ScheduleRepeating(interval, func() { o.run(false) })
	o.unsubscribe = o.vis.Subscribe(o.onVisibility)

	o.log.Infow("poller started", "interval", interval, "startup_delay", o.cfg.StartupDelay)
	return nil
}

// Stop clears all timers, drops the visibility subscription and cancels any
// check in flight. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return
	}
	for _, t := range []clock.Timer{o.startup, o.ticker, o.settle} {
		if t != nil {
			t.Stop()
		}
	}
	o.startup, o.ticker, o.settle = nil, nil, nil
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	if o.cancelCheck != nil {
		o.cancelCheck()
		o.cancelCheck = nil
	}
	o.stopRoot()
	o.generation++
	o.started = false
	o.state = StateCancelled
	o.log.Infow("poller stopped")
}

// Trigger runs a check now on the calling goroutine. A forced check skips
// the throttle but never overlaps a check already in flight. It reports
// whether the check ran.
func (o *Orchestrator) Trigger(force bool) bool {
	return o.run(force)
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastCheck returns when the most recent check began.
func (o *Orchestrator) LastCheck() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastCheck
}

func (o *Orchestrator) onVisibility(visible bool) {
	if !visible {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.started {
		return
	}
	if o.settle != nil {
		o.settle.Stop()
	}
	o.settle = o.sched.ScheduleOnce(o.cfg.VisibilitySettle, func() { o.run(true) })
}

func (o *Orchestrator) run(force bool) bool {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return false
	}
	if !o.vis.Visible() {
		o.mu.Unlock()
		o.log.Debugw("check skipped", "reason", "hidden")
		return false
	}
	if o.running {
		o.mu.Unlock()
		o.log.Debugw("check skipped", "reason", "in progress", "force", force)
		return false
	}
	now := o.sched.Now()
	if !force && !o.lastCheck.IsZero() && now.Sub(o.lastCheck) < o.cfg.Throttle {
		o.mu.Unlock()
		o.log.Debugw("check skipped", "reason", "throttled")
		return false
	}
	o.generation++
	gen := o.generation
	ctx, cancel := context.WithCancel(o.root)
	o.cancelCheck = cancel
	o.state = StateChecking
	o.running = true
	o.lastCheck = now
	check := o.check
	o.mu.Unlock()

	id := uuid.NewString()
	err := o.invoke(ctx, check, force)

	o.mu.Lock()
	o.running = false
	if o.generation == gen {
		o.state = StateIdle
		o.cancelCheck = nil
	}
	o.mu.Unlock()
	superseded := ctx.Err() != nil
	cancel()

	switch {
	case err == nil:
		o.log.Debugw("check complete", "check_id", id, "force", force)
	case superseded || errors.Is(err, context.Canceled):
		o.log.Debugw("check superseded", "check_id", id)
	default:
		o.log.Warnw("check failed", "check_id", id, "force", force, "error", err)
	}
	return true
}

func (o *Orchestrator) invoke(ctx context.Context, check CheckFunc, force bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check panicked: %v", r)
			o.log.Errorw("check panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return check(ctx, force)
}
