package app

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bigschom/ssportal/internal/notify"
	"github.com/bigschom/ssportal/internal/portal"
	"github.com/bigschom/ssportal/internal/state"
)

// Notification kinds emitted by the checker.
const (
	KindNewRequest   = "new-request"
	KindStatusChange = "status-change"
	KindAssigned     = "assigned"
)

// RequestSource is the read side of portal.Service.
type RequestSource interface {
	ListRequests(ctx context.Context, filter portal.RequestFilter) ([]portal.ServiceRequest, error)
	Stats(ctx context.Context) (*portal.DeskStats, error)
	Refresh()
}

// Notifier turns events into shown notifications.
type Notifier interface {
	Dispatch(ctx context.Context, events []notify.Event) []notify.Notification
}

type seenRequest struct {
	req        portal.ServiceRequest
	status     string
	assignedTo string
}

// Checker is the update check run by the poll orchestrator. It refreshes the
// store and raises notifications for requests that changed since the
// previous successful check.
type Checker struct {
	source   RequestSource
	store    *state.Store
	notifier Notifier
	operator string
	log      *zap.SugaredLogger

	mu     sync.Mutex
	seen   map[int64]seenRequest
	primed bool
}

// NewChecker builds a Checker. operator, when set, enables assignment
// notifications. notifier may be nil.
func NewChecker(source RequestSource, store *state.Store, notifier Notifier, operator string, log *zap.SugaredLogger) *Checker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Checker{
		source:   source,
		store:    store,
		notifier: notifier,
		operator: strings.TrimSpace(operator),
		log:      log,
		seen:     make(map[int64]seenRequest),
	}
}

// Check fetches open requests and desk stats. force drops cached responses
// first. Results arriving after ctx ends are discarded.
func (c *Checker) Check(ctx context.Context, force bool) error {
	if force {
		c.source.Refresh()
	}

	var (
		requests []portal.ServiceRequest
		stats    *portal.DeskStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		requests, err = c.source.ListRequests(gctx, portal.OpenFilter())
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = c.source.Stats(gctx)
		if err != nil {
			return fmt.Errorf("fetch stats: %w", err)
		}
		return nil
	})
	err := g.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		c.store.Update(nil, nil, err)
		return err
	}

	events := c.diff(requests)
	c.store.Update(requests, stats, nil)

	if len(events) == 0 || c.notifier == nil {
		return nil
	}
	shown := c.notifier.Dispatch(ctx, events)
	c.store.PushNotifications(shown)
	c.log.Debugw("check produced events", "events", len(events), "shown", len(shown))
	return nil
}

// diff records requests as seen and returns events for what changed. The
// first call only primes the baseline.
func (c *Checker) diff(requests []portal.ServiceRequest) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[int64]seenRequest, len(requests))
	var events []notify.Event
	for _, req := range requests {
		cur := seenRequest{req: req, status: req.Status, assignedTo: strings.TrimSpace(req.AssignedTo)}
		next[req.ID] = cur
		if !c.primed {
			continue
		}
		prev, ok := c.seen[req.ID]
		if !ok {
			events = append(events, newRequestEvent(req))
			continue
		}
		if prev.status != cur.status {
			events = append(events, statusChangeEvent(req))
		}
		if c.isOperator(cur.assignedTo) && !c.isOperator(prev.assignedTo) {
			events = append(events, assignedEvent(req))
		}
	}

	// Only open requests are listed, so one that drops out was closed.
	if c.primed {
		var closed []int64
		for id := range c.seen {
			if _, ok := next[id]; !ok {
				closed = append(closed, id)
			}
		}
		slices.Sort(closed)
		for _, id := range closed {
			events = append(events, closedEvent(c.seen[id].req))
		}
	}
	c.seen = next
	c.primed = true
	return events
}

func (c *Checker) isOperator(who string) bool {
	return c.operator != "" && strings.EqualFold(who, c.operator)
}

func newRequestEvent(req portal.ServiceRequest) notify.Event {
	return notify.Event{
		Kind:   KindNewRequest,
		Tag:    KindNewRequest + "-" + strconv.FormatInt(req.ID, 10),
		Title:  fmt.Sprintf("New %s request", strings.ToLower(portal.ServiceLabel(req.ServiceType))),
		Body:   requestSummary(req),
		Plural: "new requests",
	}
}

func statusChangeEvent(req portal.ServiceRequest) notify.Event {
	return notify.Event{
		Kind:   KindStatusChange,
		Tag:    KindStatusChange + "-" + strconv.FormatInt(req.ID, 10),
		Title:  fmt.Sprintf("%s is now %s", reference(req), portal.StatusLabel(req.Status)),
		Body:   requestSummary(req),
		Plural: "status changes",
	}
}

func closedEvent(req portal.ServiceRequest) notify.Event {
	return notify.Event{
		Kind:   KindStatusChange,
		Tag:    KindStatusChange + "-" + strconv.FormatInt(req.ID, 10),
		Title:  fmt.Sprintf("%s is no longer open", reference(req)),
		Body:   requestSummary(req),
		Plural: "status changes",
	}
}

func assignedEvent(req portal.ServiceRequest) notify.Event {
	return notify.Event{
		Kind:   KindAssigned,
		Tag:    KindAssigned + "-" + strconv.FormatInt(req.ID, 10),
		Title:  fmt.Sprintf("%s assigned to you", reference(req)),
		Body:   requestSummary(req),
		Plural: "requests assigned to you",
	}
}

func reference(req portal.ServiceRequest) string {
	if ref := strings.TrimSpace(req.ReferenceNumber); ref != "" {
		return ref
	}
	return "#" + strconv.FormatInt(req.ID, 10)
}

func requestSummary(req portal.ServiceRequest) string {
	parts := []string{reference(req), portal.ServiceLabel(req.ServiceType)}
	if name := strings.TrimSpace(req.FullName); name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, " · ")
}
