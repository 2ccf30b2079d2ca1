package respcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/bigschom/ssportal/internal/clock"
	"github.com/bigschom/ssportal/internal/requestqueue"
)

type responseErr struct{ status int }

func (e *responseErr) Error() string     { return fmt.Sprintf("status %d", e.status) }
func (e *responseErr) HasResponse() bool { return true }

func newTestCache(t *testing.T, cfg Config) (*Cache, *clock.Fake) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	fake := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	q := requestqueue.New(requestqueue.Config{MaxConcurrent: 2}, clock.Real{}, log)
	return New(cfg, q, fake, log), fake
}

type counter struct {
	calls int
	value func(n int) (string, error)
}

func (c *counter) fetch(context.Context) (string, error) {
	c.calls++
	return c.value(c.calls)
}

func TestGet_ServesFreshEntryWithinTTL(t *testing.T) {
	c, fake := newTestCache(t, Config{DefaultTTL: time.Second})
	src := &counter{value: func(n int) (string, error) { return fmt.Sprintf("v%d", n), nil }}
	ctx := context.Background()

	steps := []struct {
		advance   time.Duration
		want      string
		wantCalls int
	}{
		{0, "v1", 1},
		{500 * time.Millisecond, "v1", 1},
		{700 * time.Millisecond, "v2", 2},
	}
	for i, step := range steps {
		fake.Advance(step.advance)
		got, err := Get(ctx, c, "k", src.fetch)
		if err != nil {
			t.Fatalf("step %d: Get returned error: %v", i, err)
		}
		if got != step.want {
			t.Fatalf("step %d: Get = %q, want %q", i, got, step.want)
		}
		if src.calls != step.wantCalls {
			t.Fatalf("step %d: fetch calls = %d, want %d", i, src.calls, step.wantCalls)
		}
	}
}

func TestGetWithTTL_OverridesDefault(t *testing.T) {
	c, fake := newTestCache(t, Config{DefaultTTL: time.Second})
	src := &counter{value: func(n int) (string, error) { return fmt.Sprintf("v%d", n), nil }}
	ctx := context.Background()

	if _, err := GetWithTTL(ctx, c, "stats", 10*time.Second, src.fetch); err != nil {
		t.Fatalf("GetWithTTL returned error: %v", err)
	}
	fake.Advance(5 * time.Second)
	got, err := GetWithTTL(ctx, c, "stats", 10*time.Second, src.fetch)
	if err != nil {
		t.Fatalf("GetWithTTL returned error: %v", err)
	}
	if got != "v1" || src.calls != 1 {
		t.Fatalf("GetWithTTL = %q after %d calls, want cached v1 after 1 call", got, src.calls)
	}

	// The same entry is stale under the shorter default.
	got, err = Get(ctx, c, "stats", src.fetch)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "v2" {
		t.Fatalf("Get = %q, want v2", got)
	}
}

func TestGet_CachesResponseErrorsBriefly(t *testing.T) {
	c, fake := newTestCache(t, Config{DefaultTTL: 30 * time.Second, ErrorTTL: 5 * time.Second})
	failing := &responseErr{status: 503}
	src := &counter{value: func(n int) (string, error) {
		if n == 1 {
			return "", failing
		}
		return "recovered", nil
	}}
	ctx := context.Background()

	if _, err := Get(ctx, c, "k", src.fetch); !errors.Is(err, failing) {
		t.Fatalf("first Get err = %v, want %v", err, failing)
	}

	fake.Advance(4 * time.Second)
	if _, err := Get(ctx, c, "k", src.fetch); !errors.Is(err, failing) {
		t.Fatalf("Get within error window err = %v, want cached %v", err, failing)
	}
	if src.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1 while error is cached", src.calls)
	}

	fake.Advance(2 * time.Second)
	got, err := Get(ctx, c, "k", src.fetch)
	if err != nil {
		t.Fatalf("Get after error window returned error: %v", err)
	}
	if got != "recovered" || src.calls != 2 {
		t.Fatalf("Get = %q after %d calls, want recovered after 2", got, src.calls)
	}
}

func TestGet_DoesNotCacheTransportErrors(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	src := &counter{value: func(int) (string, error) { return "", errors.New("connection refused") }}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := Get(ctx, c, "k", src.fetch); err == nil {
			t.Fatalf("Get %d returned nil error", i)
		}
	}
	if src.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 (transport errors are not cached)", src.calls)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestGet_DoesNotCacheCancellation(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Get(ctx, c, "k", func(ctx context.Context) (string, error) {
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestErrorTTL_NeverOutlivesShortTTL(t *testing.T) {
	c, fake := newTestCache(t, Config{DefaultTTL: 2 * time.Second, ErrorTTL: 5 * time.Second})
	src := &counter{value: func(int) (string, error) { return "", &responseErr{status: 500} }}
	ctx := context.Background()

	_, _ = Get(ctx, c, "k", src.fetch)
	fake.Advance(2 * time.Second)
	_, _ = Get(ctx, c, "k", src.fetch)
	if src.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 once the entry TTL elapsed", src.calls)
	}
}

func TestErrorTTL_NegativeDisablesErrorCaching(t *testing.T) {
	c, _ := newTestCache(t, Config{ErrorTTL: -1})
	src := &counter{value: func(int) (string, error) { return "", &responseErr{status: 500} }}
	ctx := context.Background()

	_, _ = Get(ctx, c, "k", src.fetch)
	_, _ = Get(ctx, c, "k", src.fetch)
	if src.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", src.calls)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	src := &counter{value: func(n int) (string, error) { return fmt.Sprintf("v%d", n), nil }}
	ctx := context.Background()

	for _, key := range []string{"requests:open", "requests:mine", "stats"} {
		if _, err := Get(ctx, c, key, src.fetch); err != nil {
			t.Fatalf("Get(%q) returned error: %v", key, err)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("Len = %d, want 3", c.Len())
	}

	c.Invalidate("stats")
	if got, _ := Get(ctx, c, "stats", src.fetch); got != "v4" {
		t.Fatalf("Get after Invalidate = %q, want v4", got)
	}

	if n := c.InvalidatePrefix("requests:"); n != 2 {
		t.Fatalf("InvalidatePrefix removed %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len after InvalidatePrefix = %d, want 1", c.Len())
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", c.Len())
	}
}

func TestInvalidate_DiscardsFetchInFlight(t *testing.T) {
	cases := []struct {
		name       string
		key        string
		invalidate func(c *Cache)
	}{
		{"key", "requests:open", func(c *Cache) { c.Invalidate("requests:open") }},
		{"prefix", "requests:open", func(c *Cache) { c.InvalidatePrefix("requests:") }},
		{"clear", "requests:open", func(c *Cache) { c.Clear() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestCache(t, Config{DefaultTTL: time.Minute})
			ctx := context.Background()
			var fetches int32

			started := make(chan struct{})
			release := make(chan struct{})
			slow := func(context.Context) (string, error) {
				atomic.AddInt32(&fetches, 1)
				close(started)
				<-release
				return "before-write", nil
			}
			fresh := func(context.Context) (string, error) {
				atomic.AddInt32(&fetches, 1)
				return "after-write", nil
			}

			first := make(chan string, 1)
			go func() {
				v, _ := Get(ctx, c, tc.key, slow)
				first <- v
			}()
			<-started
			tc.invalidate(c)

			got, err := Get(ctx, c, tc.key, fresh)
			if err != nil {
				t.Fatalf("Get after invalidate returned error: %v", err)
			}
			if got != "after-write" || atomic.LoadInt32(&fetches) != 2 {
				t.Fatalf("Get after invalidate = %q, fetches=%d, want after-write and 2", got, atomic.LoadInt32(&fetches))
			}

			close(release)
			if v := <-first; v != "before-write" {
				t.Fatalf("in-flight Get = %q, want before-write", v)
			}

			got, _ = Get(ctx, c, tc.key, fresh)
			if got != "after-write" || atomic.LoadInt32(&fetches) != 2 {
				t.Fatalf("cached Get = %q, fetches=%d, want after-write kept and 2", got, atomic.LoadInt32(&fetches))
			}
		})
	}
}

func TestGet_TypeMismatchRefetches(t *testing.T) {
	c, _ := newTestCache(t, Config{})
	ctx := context.Background()
	if _, err := Get(ctx, c, "k", func(context.Context) (int, error) { return 7, nil }); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	got, err := Get(ctx, c, "k", func(context.Context) (string, error) { return "seven", nil })
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "seven" {
		t.Fatalf("Get = %q, want seven", got)
	}
}
