package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bigschom/ssportal/internal/clock"
)

// ErrUnavailable is returned by a Sink that cannot display notifications
// right now. It is expected and suppresses the rest of a batch quietly.
var ErrUnavailable = errors.New("notifications unavailable")

// Event is a candidate notification produced by an update check.
type Event struct {
	Kind  string // tag type prefix, e.g. "new-request"
	Tag   string // unique per subject, e.g. "new-request-42"
	Title string
	Body  string
	// Plural names the subject in grouped titles ("new requests").
	// Empty falls back to the kind.
	Plural string
}

// Notification is what reaches the Sink.
type Notification struct {
	ID        string
	Kind      string
	Tag       string
	Title     string
	Body      string
	Count     int
	Grouped   bool
	CreatedAt time.Time
}

// Sink displays notifications.
type Sink interface {
	Show(ctx context.Context, n Notification) error
}

// Dispatcher filters check results through a RateLimiter and collapses
// bursts of similar events into one grouped notification.
type Dispatcher struct {
	limiter *RateLimiter
	sink    Sink
	clk     clock.Clock
	log     *zap.SugaredLogger
	enabled atomic.Bool
}

// NewDispatcher builds a Dispatcher. A nil sink behaves as unavailable.
func NewDispatcher(limiter *RateLimiter, sink Sink, clk clock.Clock, log *zap.SugaredLogger) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	d := &Dispatcher{limiter: limiter, sink: sink, clk: clk, log: log}
	d.enabled.Store(true)
	return d
}

// SetEnabled mutes or unmutes notifications.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.enabled.Store(enabled)
}

// Enabled reports whether notifications are shown.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// Dispatch shows what the limiter allows from events and returns the
// notifications that were actually displayed.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) []Notification {
	d.limiter.PruneExpired()
	if len(events) == 0 || !d.Enabled() {
		return nil
	}

	var shown []Notification
	for _, candidate := range d.collapse(events) {
		if ctx.Err() != nil {
			return shown
		}
		if !d.limiter.CanShow(candidate.Tag) {
			d.log.Debugw("notification throttled", "tag", candidate.Tag)
			continue
		}
		if d.sink == nil {
			return shown
		}
		if err := d.sink.Show(ctx, candidate); err != nil {
			if errors.Is(err, ErrUnavailable) {
				d.log.Debugw("notification sink unavailable", "tag", candidate.Tag)
				return shown
			}
			d.log.Warnw("notification failed", "tag", candidate.Tag, "error", err)
			continue
		}
		d.limiter.RecordShown(candidate.Tag)
		if candidate.Grouped {
			d.log.Infow("grouped notification shown", "kind", candidate.Kind, "count", candidate.Count)
		}
		shown = append(shown, candidate)
	}
	return shown
}

// collapse turns events into display candidates, one grouped candidate per
// kind when the kind is busy.
func (d *Dispatcher) collapse(events []Event) []Notification {
	var order []string
	byKind := make(map[string][]Event)
	for _, ev := range events {
		if _, seen := byKind[ev.Kind]; !seen {
			order = append(order, ev.Kind)
		}
		byKind[ev.Kind] = append(byKind[ev.Kind], ev)
	}

	threshold := d.limiter.Config().GroupingThreshold
	now := d.clk.Now()
	var out []Notification
	for _, kind := range order {
		batch := byKind[kind]
		if len(batch) >= threshold || (len(batch) >= 2 && d.limiter.ShouldGroup(kind)) {
			out = append(out, grouped(kind, batch, now))
			continue
		}
		for _, ev := range batch {
			out = append(out, Notification{
				ID:        uuid.NewString(),
				Kind:      ev.Kind,
				Tag:       ev.Tag,
				Title:     ev.Title,
				Body:      ev.Body,
				Count:     1,
				CreatedAt: now,
			})
		}
	}
	return out
}

func grouped(kind string, batch []Event, now time.Time) Notification {
	plural := batch[0].Plural
	if plural == "" {
		plural = strings.ReplaceAll(kind, "-", " ")
	}
	titles := make([]string, 0, len(batch))
	for _, ev := range batch {
		titles = append(titles, ev.Title)
	}
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Tag:       kind + "-grouped",
		Title:     fmt.Sprintf("You have %d %s", len(batch), plural),
		Body:      strings.Join(titles, "; "),
		Count:     len(batch),
		Grouped:   true,
		CreatedAt: now,
	}
}
