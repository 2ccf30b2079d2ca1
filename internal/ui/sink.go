package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bigschom/ssportal/internal/notify"
)

var _ notify.Sink = (*Sink)(nil)

// Sink delivers notifications to the running UI. It never blocks: when the
// buffer is full or the UI has gone away Show returns notify.ErrUnavailable.
type Sink struct {
	ch   chan notify.Notification
	done chan struct{}
	once sync.Once
}

// NewSink creates a Sink holding up to buffer undelivered notifications.
func NewSink(buffer int) *Sink {
	if buffer <= 0 {
		buffer = SinkBuffer
	}
	return &Sink{
		ch:   make(chan notify.Notification, buffer),
		done: make(chan struct{}),
	}
}

// Show queues n for display.
func (s *Sink) Show(ctx context.Context, n notify.Notification) error {
	select {
	case <-s.done:
		return notify.ErrUnavailable
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.ch <- n:
		return nil
	default:
		return notify.ErrUnavailable
	}
}

// Close marks the UI as gone. Later Show calls return ErrUnavailable.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
}

type notificationMsg notify.Notification

// wait returns a command that delivers the next notification, or nil once
// the sink is closed.
func (s *Sink) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case n := <-s.ch:
			return notificationMsg(n)
		case <-s.done:
			return nil
		}
	}
}
