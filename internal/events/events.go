// Package events implements the synchronous message bus that connects the
// navigation controller with the widgets reacting to page transitions.
//
// Handlers run on the emitting goroutine, in registration order. A handler
// must not rely on running before or after another handler of the same event.
package events

import (
	"context"
	"log"
	"sync"
)

// Name identifies an event type.
type Name string

const (
	// PageNavigate asks the navigation controller to load URL.
	PageNavigate Name = "page-navigate"
	// PageLoadBefore fires before the fetch of a content transition begins.
	PageLoadBefore Name = "page-load-before"
	// PageLoaded fires after the DOM has been synchronized and history updated.
	PageLoaded Name = "page-loaded"
	// PopState fires after the window location moved through history.
	PopState Name = "popstate"
	// DOMContentLoaded fires once a full document has been loaded into the window.
	DOMContentLoaded Name = "dom-content-loaded"
)

// Event is the payload carried by every event. URL is the path + query +
// fragment the event refers to.
type Event struct {
	Name Name
	URL  string
}

// Handler receives events.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id int
	fn Handler
}

// Bus dispatches events to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]subscription
	nextID   int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Name][]subscription),
	}
}

// Subscribe registers fn for events named name. The returned function removes
// the subscription; calling it more than once is harmless.
func (b *Bus) Subscribe(name Name, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[name]
		for i, s := range subs {
			if s.id == id {
				b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers ev to every handler subscribed at the time of the call.
// Handlers may subscribe, unsubscribe or emit from within a handler.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[ev.Name]))
	copy(subs, b.handlers[ev.Name])
	b.mu.RUnlock()

	for _, s := range subs {
		b.dispatch(ctx, s, ev)
	}
}

func (b *Bus) dispatch(ctx context.Context, s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Error: %s handler panicked: %v", ev.Name, r)
		}
	}()
	s.fn(ctx, ev)
}

// Len returns the number of handlers subscribed to name.
func (b *Bus) Len(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}
