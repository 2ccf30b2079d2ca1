package requestqueue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/bigschom/ssportal/internal/clock"
)

func newTestQueue(t *testing.T, max int, sched clock.Scheduler) *Queue {
	t.Helper()
	return New(Config{MaxConcurrent: max, ProcessingDelay: time.Millisecond}, sched, zaptest.NewLogger(t).Sugar())
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Defaults(t *testing.T) {
	q := New(Config{}, nil, nil)
	if q.maxConcurrent != defaultMaxConcurrent {
		t.Fatalf("maxConcurrent = %d, want %d", q.maxConcurrent, defaultMaxConcurrent)
	}
	if q.delay != defaultProcessingDelay {
		t.Fatalf("delay = %v, want %v", q.delay, defaultProcessingDelay)
	}
}

func TestEnqueue_ReturnsTypedResult(t *testing.T) {
	q := newTestQueue(t, 2, clock.Real{})
	got, err := Enqueue(context.Background(), q, "k", func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if got != 42 {
		t.Fatalf("Enqueue = %d, want 42", got)
	}
}

func TestEnqueue_ConcurrencyNeverExceedsLimit(t *testing.T) {
	const limit = 3
	q := newTestQueue(t, limit, clock.Real{})
	rng := rand.New(rand.NewSource(1))

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		delay := time.Duration(rng.Intn(5)) * time.Millisecond
		key := fmt.Sprintf("k%d", i%25)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Do(context.Background(), key, func(context.Context) (any, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(delay)
				atomic.AddInt32(&running, -1)
				return nil, nil
			})
		}()
		time.Sleep(time.Duration(rng.Intn(2)) * time.Millisecond)
	}
	wg.Wait()

	if peak > limit {
		t.Fatalf("peak concurrency = %d, want <= %d", peak, limit)
	}
	if s := q.Stats(); s.InFlight != 0 || s.Waiting != 0 {
		t.Fatalf("Stats after drain = %+v, want nothing in flight or waiting", s)
	}
}

func TestDo_CoalescesInFlightKey(t *testing.T) {
	q := newTestQueue(t, 3, clock.Real{})
	release := make(chan struct{})
	var calls int32

	op := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "shared", nil
	}

	results := make(chan any, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, _ := q.Do(context.Background(), "same", op)
			results <- v
		}()
	}
	waitFor(t, "join", func() bool { return q.Stats().Coalesced == 1 })
	close(release)

	for i := 0; i < 2; i++ {
		if v := <-results; v != "shared" {
			t.Fatalf("result = %v, want shared", v)
		}
	}
	if calls != 1 {
		t.Fatalf("operation ran %d times, want 1", calls)
	}
}

func TestDo_CoalescedCallersShareFailure(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	release := make(chan struct{})
	boom := errors.New("backend down")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := q.Do(context.Background(), "k", func(context.Context) (any, error) {
				<-release
				return nil, boom
			})
			errs <- err
		}()
	}
	waitFor(t, "join", func() bool { return q.Stats().Coalesced == 1 })
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	}
	if s := q.Stats(); s.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", s.Failed)
	}
}

func TestDo_FIFOAdmissionNotShortestFirst(t *testing.T) {
	q := newTestQueue(t, 2, clock.Real{})

	var mu sync.Mutex
	var started []string
	gates := map[string]chan struct{}{
		"A": make(chan struct{}),
		"B": make(chan struct{}),
		"C": make(chan struct{}),
	}
	op := func(name string) Operation {
		return func(context.Context) (any, error) {
			mu.Lock()
			started = append(started, name)
			mu.Unlock()
			<-gates[name]
			return name, nil
		}
	}
	startedCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(started)
	}

	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Do(context.Background(), name, op(name))
		}()
		waitFor(t, "enqueue "+name, func() bool {
			s := q.Stats()
			return s.InFlight+s.Waiting == int(name[0]-'A')+1
		})
	}

	waitFor(t, "A and B start", func() bool { return startedCount() == 2 })
	if s := q.Stats(); s.Waiting != 1 {
		t.Fatalf("Waiting = %d, want 1 (C held back)", s.Waiting)
	}
	time.Sleep(10 * time.Millisecond)
	if startedCount() != 2 {
		t.Fatalf("C started before a slot freed: %v", started)
	}

	close(gates["A"])
	waitFor(t, "C start", func() bool { return startedCount() == 3 })
	close(gates["B"])
	close(gates["C"])
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if started[2] != "C" {
		t.Fatalf("start order = %v, want C third", started)
	}
}

func TestDo_WaitingListStartsInArrivalOrder(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	block := make(chan struct{})

	var mu sync.Mutex
	var order []string
	record := func(name string) Operation {
		return func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Do(context.Background(), "blocker", func(context.Context) (any, error) {
			<-block
			return nil, nil
		})
	}()
	waitFor(t, "blocker in flight", func() bool { return q.Stats().InFlight == 1 })

	names := []string{"w1", "w2", "w3", "w4"}
	for i, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Do(context.Background(), name, record(name))
		}()
		want := i + 1
		waitFor(t, "queue "+name, func() bool { return q.Stats().Waiting == want })
	}

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, name := range names {
		if order[i] != name {
			t.Fatalf("order = %v, want %v", order, names)
		}
	}
}

func TestDo_FailureDoesNotStallQueue(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	_, err := q.Do(context.Background(), "bad", func(context.Context) (any, error) {
		return nil, errors.New("nope")
	})
	if err == nil {
		t.Fatal("Do returned nil error, want failure")
	}
	v, err := q.Do(context.Background(), "good", func(context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("Do after failure = (%v, %v), want (ok, nil)", v, err)
	}
}

func TestDo_RecoversPanic(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	_, err := q.Do(context.Background(), "p", func(context.Context) (any, error) {
		panic("kaboom")
	})
	if !errors.Is(err, ErrPanicked) {
		t.Fatalf("err = %v, want ErrPanicked", err)
	}
	if s := q.Stats(); s.InFlight != 0 {
		t.Fatalf("InFlight = %d after panic, want 0", s.InFlight)
	}
}

func TestDo_JoinerContextCancelLeavesOperationRunning(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	release := make(chan struct{})

	owner := make(chan any, 1)
	go func() {
		v, _ := q.Do(context.Background(), "k", func(context.Context) (any, error) {
			<-release
			return "done", nil
		})
		owner <- v
	}()
	waitFor(t, "owner in flight", func() bool { return q.Stats().InFlight == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Do(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("joiner err = %v, want context.Canceled", err)
	}

	close(release)
	if v := <-owner; v != "done" {
		t.Fatalf("owner result = %v, want done", v)
	}
}

func TestDo_OwnerCancelLeavesJoinerResult(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	release := make(chan struct{})

	ownerCtx, cancelOwner := context.WithCancel(context.Background())
	ownerErr := make(chan error, 1)
	go func() {
		_, err := q.Do(ownerCtx, "k", func(ctx context.Context) (any, error) {
			select {
			case <-release:
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
		ownerErr <- err
	}()
	waitFor(t, "owner in flight", func() bool { return q.Stats().InFlight == 1 })

	type result struct {
		v   any
		err error
	}
	joiner := make(chan result, 1)
	go func() {
		v, err := q.Do(context.Background(), "k", nil)
		joiner <- result{v, err}
	}()
	waitFor(t, "joiner attached", func() bool { return q.Stats().Coalesced == 1 })

	cancelOwner()
	if err := <-ownerErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("owner err = %v, want context.Canceled", err)
	}

	close(release)
	got := <-joiner
	if got.err != nil || got.v != "done" {
		t.Fatalf("joiner = (%v, %v), want (done, nil)", got.v, got.err)
	}
}

func TestDo_LastWaiterLeavingCancelsOperation(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	opErr := make(chan error, 1)
	callerErr := make(chan error, 1)
	go func() {
		_, err := q.Do(ctx, "k", func(ctx context.Context) (any, error) {
			<-ctx.Done()
			opErr <- ctx.Err()
			return nil, ctx.Err()
		})
		callerErr <- err
	}()
	waitFor(t, "operation in flight", func() bool { return q.Stats().InFlight == 1 })

	cancel()
	if err := <-callerErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("caller err = %v, want context.Canceled", err)
	}
	if err := <-opErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("operation ctx err = %v, want context.Canceled", err)
	}

	waitFor(t, "slot freed", func() bool { return q.Stats().InFlight == 0 })
	v, err := q.Do(context.Background(), "k", func(context.Context) (any, error) {
		return "fresh", nil
	})
	if err != nil || v != "fresh" {
		t.Fatalf("Do after abandoned call = (%v, %v), want (fresh, nil)", v, err)
	}
}

func TestDo_CancelledWhileWaitingSkipsOperation(t *testing.T) {
	q := newTestQueue(t, 1, clock.Real{})
	release := make(chan struct{})
	go func() {
		_, _ = q.Do(context.Background(), "blocker", func(context.Context) (any, error) {
			<-release
			return nil, nil
		})
	}()
	waitFor(t, "blocker in flight", func() bool { return q.Stats().InFlight == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	ran := int32(0)
	errs := make(chan error, 1)
	go func() {
		_, err := q.Do(ctx, "late", func(context.Context) (any, error) {
			atomic.StoreInt32(&ran, 1)
			return nil, nil
		})
		errs <- err
	}()
	waitFor(t, "late queued", func() bool { return q.Stats().Waiting == 1 })
	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	close(release)
	waitFor(t, "queue drained", func() bool {
		s := q.Stats()
		return s.InFlight == 0 && s.Waiting == 0
	})
	if atomic.LoadInt32(&ran) != 0 {
		t.Fatal("operation ran after its owner cancelled")
	}
}

func TestDrain_DeferredByProcessingDelay(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	q := New(Config{MaxConcurrent: 1, ProcessingDelay: 300 * time.Millisecond}, fake, zaptest.NewLogger(t).Sugar())

	release := make(chan struct{})
	go func() {
		_, _ = q.Do(context.Background(), "first", func(context.Context) (any, error) {
			<-release
			return nil, nil
		})
	}()
	waitFor(t, "first in flight", func() bool { return q.Stats().InFlight == 1 })

	for _, key := range []string{"second", "third"} {
		key := key
		go func() {
			_, _ = q.Do(context.Background(), key, func(context.Context) (any, error) {
				<-release
				return nil, nil
			})
		}()
	}
	waitFor(t, "two waiting", func() bool { return q.Stats().Waiting == 2 })

	close(release)
	waitFor(t, "drain scheduled", func() bool { return fake.Pending() == 1 })

	fake.Advance(300 * time.Millisecond)
	waitFor(t, "all settled", func() bool {
		s := q.Stats()
		return s.InFlight == 0 && s.Waiting == 0
	})
	if s := q.Stats(); s.Started != 3 {
		t.Fatalf("Started = %d, want 3", s.Started)
	}
}
