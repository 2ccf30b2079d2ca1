// Package respcache caches recent backend responses for a bounded time and
// routes misses through the shared request queue.
//
// Failures that carry a backend response are cached too, for a much shorter
// window, so that a burst of retries against a failing endpoint is answered
// from memory. A caller may therefore keep seeing a cached failure for up to
// ErrorTTL after the backend recovers.
//
// Invalidation covers fetches already in flight: their results still reach
// their own callers but are not stored, and reads after the invalidation
// start a new fetch.
package respcache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bigschom/ssportal/internal/clock"
	"github.com/bigschom/ssportal/internal/requestqueue"
)

const (
	defaultTTL      = 30 * time.Second
	defaultErrorTTL = 5 * time.Second

	queueKeyPrefix = "request_"
)

// ResponseError is implemented by errors that carry a structured backend
// response. Only such errors are cached.
type ResponseError interface {
	error
	HasResponse() bool
}

// Config controls entry lifetimes.
type Config struct {
	DefaultTTL time.Duration // zero uses 30s
	// ErrorTTL is how long a failed response is served from the cache.
	// Zero uses 5s; negative disables error caching.
	ErrorTTL time.Duration
}

type entry struct {
	data     any
	err      error
	storedAt time.Time
}

// keyState tracks fetches in flight for a key. Invalidation bumps epoch, and
// a fetch may only store its result if the epoch it started under is current.
type keyState struct {
	epoch    uint64
	inFlight int
}

// Cache is a keyed TTL cache in front of a requestqueue.Queue.
type Cache struct {
	defaultTTL time.Duration
	errorTTL   time.Duration
	queue      *requestqueue.Queue
	clk        clock.Clock
	log        *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]entry
	keys    map[string]*keyState
}

// New builds a Cache over q.
func New(cfg Config, q *requestqueue.Queue, clk clock.Clock, log *zap.SugaredLogger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.ErrorTTL == 0 {
		cfg.ErrorTTL = defaultErrorTTL
	}
	if cfg.ErrorTTL < 0 {
		cfg.ErrorTTL = 0
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Cache{
		defaultTTL: cfg.DefaultTTL,
		errorTTL:   cfg.ErrorTTL,
		queue:      q,
		clk:        clk,
		log:        log,
		entries:    make(map[string]entry),
		keys:       make(map[string]*keyState),
	}
}

// Get returns the cached value for key or fetches it with op using the
// default TTL.
func Get[T any](ctx context.Context, c *Cache, key string, op func(context.Context) (T, error)) (T, error) {
	return GetWithTTL(ctx, c, key, 0, op)
}

// GetWithTTL is Get with a per-call TTL. A ttl of zero uses the default.
func GetWithTTL[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if e, ok := c.lookup(key, ttl); ok {
		if e.err != nil {
			return zero, e.err
		}
		if v, ok := e.data.(T); ok {
			return v, nil
		}
	}

	epoch := c.begin(key)
	defer c.end(key)

	v, err := c.queue.Do(ctx, queueKey(key, epoch), func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		c.storeError(key, epoch, err)
		return zero, err
	}
	c.store(key, epoch, entry{data: v, storedAt: c.clk.Now()})

	typed, _ := v.(T)
	return typed, nil
}

// Invalidate drops the entry for key. A fetch for key already in flight will
// not store its result, and later reads start a new fetch.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	if st, ok := c.keys[key]; ok {
		st.epoch++
	}
}

// InvalidatePrefix drops every entry whose key starts with prefix and returns
// how many were dropped. Fetches in flight under such keys are discarded.
func (c *Cache) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	for key, st := range c.keys {
		if strings.HasPrefix(key, prefix) {
			st.epoch++
		}
	}
	return n
}

// Clear drops all entries and discards every fetch in flight.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	for _, st := range c.keys {
		st.epoch++
	}
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// begin registers a fetch for key and returns the epoch it runs under.
func (c *Cache) begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.keys[key]
	if !ok {
		st = &keyState{}
		c.keys[key] = st
	}
	st.inFlight++
	return st.epoch
}

func (c *Cache) end(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.keys[key]
	if !ok {
		return
	}
	st.inFlight--
	if st.inFlight <= 0 {
		delete(c.keys, key)
	}
}

// store writes e unless key was invalidated after the fetch began.
func (c *Cache) store(key string, epoch uint64, e entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.keys[key]; !ok || st.epoch != epoch {
		c.log.Debugw("discarded response fetched before invalidation", "key", key)
		return false
	}
	c.entries[key] = e
	return true
}

func queueKey(key string, epoch uint64) string {
	return queueKeyPrefix + key + "#" + strconv.FormatUint(epoch, 10)
}

func (c *Cache) lookup(key string, ttl time.Duration) (entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return entry{}, false
	}

	life := ttl
	if e.err != nil {
		life = min(c.errorTTL, ttl)
	}
	if c.clk.Now().Sub(e.storedAt) >= life {
		return entry{}, false
	}
	return e, true
}

func (c *Cache) storeError(key string, epoch uint64, err error) {
	if c.errorTTL <= 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	var respErr ResponseError
	if !errors.As(err, &respErr) || !respErr.HasResponse() {
		return
	}
	if c.store(key, epoch, entry{err: err, storedAt: c.clk.Now()}) {
		c.log.Debugw("cached failed response", "key", key, "ttl", c.errorTTL, "error", err)
	}
}
