package poll

import "sync"

// Visibility reports whether the operator can currently see the console and
// announces changes.
type Visibility interface {
	Visible() bool
	Subscribe(fn func(visible bool)) (cancel func())
}

// VisibilityState is a settable Visibility. The zero value is not usable;
// use NewVisibilityState.
type VisibilityState struct {
	mu        sync.Mutex
	visible   bool
	nextID    int
	listeners map[int]func(bool)
}

// NewVisibilityState returns a VisibilityState with the given initial value.
func NewVisibilityState(visible bool) *VisibilityState {
	return &VisibilityState{visible: visible, listeners: make(map[int]func(bool))}
}

// Visible reports the current state.
func (v *VisibilityState) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Set updates the state and notifies subscribers when it changes.
func (v *VisibilityState) Set(visible bool) {
	v.mu.Lock()
	if v.visible == visible {
		v.mu.Unlock()
		return
	}
	v.visible = visible
	fns := make([]func(bool), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn(visible)
	}
}

// Subscribe registers fn for changes until the returned cancel is called.
func (v *VisibilityState) Subscribe(fn func(bool)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Listeners returns the number of active subscriptions.
func (v *VisibilityState) Listeners() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners)
}
