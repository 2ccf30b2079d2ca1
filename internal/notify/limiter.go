package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/bigschom/ssportal/internal/clock"
)

const (
	defaultMaxPerMinute      = 5
	defaultRateWindow        = time.Minute
	defaultTagCooldown       = 2 * time.Minute
	defaultGroupingWindow    = 5 * time.Minute
	defaultGroupingThreshold = 3
	defaultRetention         = time.Hour
)

// Config controls notification throttling. Zero values use defaults.
type Config struct {
	MaxPerMinute      int
	RateWindow        time.Duration
	TagCooldown       time.Duration
	GroupingWindow    time.Duration
	GroupingThreshold int
	Retention         time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPerMinute <= 0 {
		c.MaxPerMinute = defaultMaxPerMinute
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if c.TagCooldown <= 0 {
		c.TagCooldown = defaultTagCooldown
	}
	if c.GroupingWindow <= 0 {
		c.GroupingWindow = defaultGroupingWindow
	}
	if c.GroupingThreshold <= 0 {
		c.GroupingThreshold = defaultGroupingThreshold
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	return c
}

// RateLimiter decides whether a notification may be shown. It applies a
// global cap over a rolling window and a per-tag cooldown.
type RateLimiter struct {
	cfg Config
	clk clock.Clock

	mu        sync.Mutex
	lastShown map[string]time.Time
	shownAt   []time.Time // show times inside the rate window, oldest first
}

// NewRateLimiter builds a RateLimiter. A nil clock uses the real clock.
func NewRateLimiter(cfg Config, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &RateLimiter{
		cfg:       cfg.withDefaults(),
		clk:       clk,
		lastShown: make(map[string]time.Time),
	}
}

// Config returns the effective configuration.
func (l *RateLimiter) Config() Config {
	return l.cfg
}

// CanShow reports whether a notification tagged tag may be shown now.
func (l *RateLimiter) CanShow(tag string) bool {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trimWindowLocked(now)
	if len(l.shownAt) >= l.cfg.MaxPerMinute {
		return false
	}
	if last, ok := l.lastShown[tag]; ok && now.Sub(last) < l.cfg.TagCooldown {
		return false
	}
	return true
}

// RecordShown notes that a notification tagged tag was displayed. Call it
// once per displayed notification, grouped or not.
func (l *RateLimiter) RecordShown(tag string) {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trimWindowLocked(now)
	l.shownAt = append(l.shownAt, now)
	l.lastShown[tag] = now
}

// ShouldGroup reports whether enough notifications whose tags start with
// prefix were shown recently that new ones should be aggregated.
func (l *RateLimiter) ShouldGroup(prefix string) bool {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for tag, at := range l.lastShown {
		if strings.HasPrefix(tag, prefix) && now.Sub(at) < l.cfg.GroupingWindow {
			n++
		}
	}
	return n >= l.cfg.GroupingThreshold
}

// PruneExpired forgets tags last shown longer ago than the retention window.
func (l *RateLimiter) PruneExpired() {
	now := l.clk.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for tag, at := range l.lastShown {
		if now.Sub(at) > l.cfg.Retention {
			delete(l.lastShown, tag)
		}
	}
	l.trimWindowLocked(now)
}

// tracked returns the number of remembered tags.
func (l *RateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lastShown)
}

func (l *RateLimiter) trimWindowLocked(now time.Time) {
	cut := 0
	for cut < len(l.shownAt) && now.Sub(l.shownAt[cut]) >= l.cfg.RateWindow {
		cut++
	}
	if cut > 0 {
		l.shownAt = append(l.shownAt[:0], l.shownAt[cut:]...)
	}
}
