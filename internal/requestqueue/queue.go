package requestqueue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bigschom/ssportal/internal/clock"
)

const (
	defaultMaxConcurrent   = 3
	defaultProcessingDelay = 300 * time.Millisecond
)

// ErrPanicked wraps a panic recovered from an operation.
var ErrPanicked = errors.New("operation panicked")

// Config controls queue admission.
type Config struct {
	MaxConcurrent   int           // zero uses 3
	ProcessingDelay time.Duration // zero uses 300ms
}

// Operation is the unit of work executed by the queue. The context carries
// the values of the caller that created the entry and is cancelled once every
// caller waiting on the entry has given up.
type Operation func(ctx context.Context) (any, error)

// Stats is a point-in-time view of queue activity.
type Stats struct {
	InFlight  int
	Waiting   int
	Started   uint64
	Coalesced uint64
	Failed    uint64
}

// Queue bounds the number of simultaneous operations and coalesces
// concurrent operations that share a key.
type Queue struct {
	maxConcurrent int
	delay         time.Duration
	sched         clock.Scheduler
	log           *zap.SugaredLogger

	mu        sync.Mutex
	calls     map[string]*call // waiting or in flight
	inFlight  int
	waiting   *list.List // of *call, FIFO
	drainTask clock.Timer
	stats     Stats
}

type call struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	op      Operation
	elem    *list.Element // set while waiting for a slot
	waiters int
	done    chan struct{}
	val     any
	err     error
}

// New builds a Queue. A nil scheduler uses the real clock and a nil logger
// discards output.
func New(cfg Config, sched clock.Scheduler, log *zap.SugaredLogger) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.ProcessingDelay <= 0 {
		cfg.ProcessingDelay = defaultProcessingDelay
	}
	if sched == nil {
		sched = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Queue{
		maxConcurrent: cfg.MaxConcurrent,
		delay:         cfg.ProcessingDelay,
		sched:         sched,
		log:           log,
		calls:         make(map[string]*call),
		waiting:       list.New(),
	}
}

// Enqueue runs op under key through q and returns its typed result.
func Enqueue[T any](ctx context.Context, q *Queue, key string, op func(context.Context) (T, error)) (T, error) {
	v, err := q.Do(ctx, key, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok && v != nil {
		var zero T
		return zero, fmt.Errorf("queue key %q: result has type %T", key, v)
	}
	return typed, nil
}

// Do runs op under key. If an operation for key is already waiting or in
// flight, the caller shares its outcome instead of starting another. If the
// queue is at capacity the operation waits its turn in FIFO order.
func (q *Queue) Do(ctx context.Context, key string, op Operation) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	if existing, ok := q.calls[key]; ok {
		existing.waiters++
		q.stats.Coalesced++
		q.mu.Unlock()
		q.log.Debugw("joined pending request", "key", key)
		return q.wait(ctx, existing)
	}

	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &call{key: key, ctx: opCtx, cancel: cancel, op: op, waiters: 1, done: make(chan struct{})}
	q.calls[key] = c
	if q.inFlight < q.maxConcurrent {
		q.startLocked(c)
	} else {
		c.elem = q.waiting.PushBack(c)
		q.log.Debugw("request queued", "key", key, "waiting", q.waiting.Len())
	}
	q.mu.Unlock()

	return q.wait(ctx, c)
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.InFlight = q.inFlight
	s.Waiting = q.waiting.Len()
	return s
}

func (q *Queue) wait(ctx context.Context, c *call) (any, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		q.leave(c)
		return nil, ctx.Err()
	}
}

// leave drops one waiter from c. When the last waiter goes the operation is
// cancelled and the key stops accepting joiners, so later callers start over.
func (q *Queue) leave(c *call) {
	q.mu.Lock()
	defer q.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	c.cancel()
	if q.calls[c.key] == c {
		delete(q.calls, c.key)
	}
	if c.elem != nil {
		q.waiting.Remove(c.elem)
		c.elem = nil
		c.err = context.Canceled
		close(c.done)
		q.log.Debugw("abandoned queued request", "key", c.key)
	}
}

func (q *Queue) startLocked(c *call) {
	c.elem = nil
	q.inFlight++
	q.stats.Started++
	go q.run(c)
}

func (q *Queue) run(c *call) {
	if err := c.ctx.Err(); err != nil {
		c.err = err
	} else {
		c.val, c.err = q.execute(c)
	}
	q.settle(c)
}

func (q *Queue) execute(c *call) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("request panicked", "key", c.key, "panic", r, "stack", string(debug.Stack()))
			val, err = nil, fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return c.op(c.ctx)
}

func (q *Queue) settle(c *call) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.calls[c.key] == c {
		delete(q.calls, c.key)
	}
	q.inFlight--
	if c.err != nil {
		q.stats.Failed++
	}
	c.cancel()
	close(c.done)

	q.startNextLocked()
	q.scheduleDrainLocked()
}

// startNextLocked admits the head of the waiting list if a slot is free.
func (q *Queue) startNextLocked() bool {
	if q.inFlight >= q.maxConcurrent {
		return false
	}
	front := q.waiting.Front()
	if front == nil {
		return false
	}
	q.waiting.Remove(front)
	q.startLocked(front.Value.(*call))
	return true
}

// scheduleDrainLocked defers the next admission attempt while entries remain
// so bursts do not admit the whole backlog in one pass.
func (q *Queue) scheduleDrainLocked() {
	if q.waiting.Len() == 0 || q.drainTask != nil {
		return
	}
	q.drainTask = q.sched.ScheduleOnce(q.delay, q.drain)
}

func (q *Queue) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drainTask = nil
	if q.startNextLocked() {
		q.scheduleDrainLocked()
	}
}
